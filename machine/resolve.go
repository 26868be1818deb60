package machine

import (
	"strings"

	"github.com/pkg/errors"
)

// resolveSymbols is the assembler's second pass: it walks every instruction
// slot across every assembled segment and rewrites operand tokens that
// reference labels, variables, or segment aliases into the register- and
// offset-qualified text the EU's ParseOperand expects. Grounded on
// original_source/emulator/assembler.py's final resolution walk.
func resolveSymbols(prog *AssembledProgram) error {
	for _, img := range prog.Images {
		for i, slot := range img.Slots {
			instr, ok := slot.(InstrSlot)
			if !ok {
				continue
			}
			resolved, err := resolveOperandTokens(instr.Mnemonic, instr.Operands, prog.Symbols)
			if err != nil {
				return errors.Wrapf(err, "resolving %s", instr.Mnemonic)
			}
			instr.Operands = resolved
			img.Slots[i] = instr
		}
	}
	return nil
}

func lookupSymbol(sym *SymbolTable, name string) (Symbol, bool) {
	if s, ok := sym.Labels[name]; ok {
		return s, true
	}
	if s, ok := sym.Variables[name]; ok {
		return s, true
	}
	return Symbol{}, false
}

// resolveOperandTokens resolves one instruction's operand token list:
// SEG/OFFSET/TYPE pair substitution first, then either transfer-of-control
// label resolution (for transferControlInstr-class mnemonics) or generic
// variable/segment-alias token rewriting (for every other mnemonic).
func resolveOperandTokens(mnemonic string, toks []string, sym *SymbolTable) ([]string, error) {
	merged, err := resolveSegOffsetTypePairs(toks, sym)
	if err != nil {
		return nil, err
	}

	if transferControlInstr[mnemonic] {
		return resolveControlLabels(merged, sym)
	}
	return resolveVariableTokens(merged, sym)
}

// resolveSegOffsetTypePairs collapses "SEG name" / "OFFSET name" / "TYPE
// name" token pairs into one resolved token each.
func resolveSegOffsetTypePairs(toks []string, sym *SymbolTable) ([]string, error) {
	out := make([]string, 0, len(toks))
	i := 0
	for i < len(toks) {
		t := toks[i]
		if (t == "SEG" || t == "OFFSET" || t == "TYPE") && i+1 < len(toks) {
			val, err := resolveSegOffsetType(t, toks[i+1], sym)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
			i += 2
			continue
		}
		out = append(out, t)
		i++
	}
	return out, nil
}

func resolveSegOffsetType(kind, name string, sym *SymbolTable) (string, error) {
	switch kind {
	case "SEG":
		if s, ok := lookupSymbol(sym, name); ok {
			return FormatNumber(int64(sym.SegmentAddress[s.Seg])), nil
		}
		if reg, ok := sym.SegmentID[name]; ok {
			return FormatNumber(int64(sym.SegmentAddress[reg])), nil
		}
		return "", errors.Wrapf(ErrUnknownSymbol, "SEG %s", name)
	case "OFFSET":
		s, ok := lookupSymbol(sym, name)
		if !ok {
			return "", errors.Wrapf(ErrUnknownSymbol, "OFFSET %s", name)
		}
		return FormatNumber(int64(s.Offset)), nil
	case "TYPE":
		if _, ok := lookupSymbol(sym, name); !ok {
			return "", errors.Wrapf(ErrUnknownSymbol, "TYPE %s", name)
		}
		return "0", nil
	default:
		return "", errors.Errorf("unknown attribute keyword %q", kind)
	}
}

// resolveControlLabels strips the non-semantic SHORT/NEAR qualifiers and any
// PTR not preceded by BYTE/WORD/DWORD (a width pair is kept for the EU's
// getOpbyte, which is how a DWORD PTR memory target becomes a far indirect
// jump), tracks an explicit FAR marker, and substitutes any label token with
// its offset (or "SEGREG:OFFSET" when FAR) so the EU never needs to carry a
// symbol table at run time.
func resolveControlLabels(toks []string, sym *SymbolTable) ([]string, error) {
	out := make([]string, 0, len(toks))
	far := false
	for _, t := range toks {
		switch t {
		case "SHORT", "NEAR":
			continue
		case "PTR":
			if n := len(out); n > 0 && (out[n-1] == "BYTE" || out[n-1] == "WORD" || out[n-1] == "DWORD") {
				out = append(out, t)
			}
			continue
		case "FAR":
			far = true
			continue
		default:
			if lbl, ok := lookupSymbol(sym, t); ok {
				if far {
					out = append(out, lbl.Seg+":"+FormatNumber(int64(lbl.Offset)))
				} else {
					out = append(out, FormatNumber(int64(lbl.Offset)))
				}
				far = false
				continue
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// resolveVariableTokens rewrites data-operand tokens that reference a
// variable or a bare segment alias. A bare variable name becomes
// "REG:[offset]"; a variable name appearing inside a bracketed memory
// expression has just that term replaced by its offset, with the segment
// register prefixed onto the brackets if none was already present; a bare
// segment-label token (referencing a SEGMENT block by its user-chosen name,
// not through ASSUME) becomes that segment's numeric paragraph address.
func resolveVariableTokens(toks []string, sym *SymbolTable) ([]string, error) {
	out := make([]string, len(toks))
	for i, t := range toks {
		resolved, err := resolveVariableToken(t, sym)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func resolveVariableToken(t string, sym *SymbolTable) (string, error) {
	if v, ok := sym.Variables[t]; ok {
		return v.Seg + ":[" + FormatNumber(int64(v.Offset)) + "]", nil
	}
	if reg, ok := sym.SegmentID[t]; ok {
		return FormatNumber(int64(sym.SegmentAddress[reg])), nil
	}
	if !strings.Contains(t, "[") {
		return t, nil
	}
	return resolveBracketedToken(t, sym)
}

func resolveBracketedToken(t string, sym *SymbolTable) (string, error) {
	open := strings.Index(t, "[")
	shut := strings.LastIndex(t, "]")
	if open < 0 || shut < 0 || shut < open {
		return t, nil
	}
	prefix := t[:open]
	inner := t[open+1 : shut]
	suffix := t[shut+1:]

	seg := strings.TrimSuffix(prefix, ":")
	terms := splitSigned(inner)
	var usedVarSeg string
	for i, term := range terms {
		if v, ok := sym.Variables[term]; ok {
			terms[i] = FormatNumber(int64(v.Offset))
			usedVarSeg = v.Seg
			continue
		}
		if l, ok := sym.Labels[term]; ok {
			terms[i] = FormatNumber(int64(l.Offset))
			usedVarSeg = l.Seg
		}
	}
	if seg == "" && usedVarSeg != "" {
		seg = usedVarSeg
	}
	var rb strings.Builder
	for i, term := range terms {
		if i > 0 && !strings.HasPrefix(term, "-") {
			rb.WriteByte('+')
		}
		rb.WriteString(term)
	}
	rebuilt := rb.String()
	if rebuilt == "" {
		rebuilt = "0"
	}
	result := "[" + rebuilt + "]"
	if seg != "" {
		result = seg + ":" + result
	}
	return result + suffix, nil
}
