package machine

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Operand is the sum type the Design Notes call for: a register, an
// immediate, a memory reference, a label, or a far (segment:offset)
// pointer. The assembler's second pass resolves every label/variable
// reference down to one of these textual shapes before the EU ever parses
// operand text, so by execution time a LabelOperand should never actually
// occur — it exists for robustness and for unit-testing the parser in
// isolation.
type Operand interface {
	isOperand()
}

// RegOperand names one general, segment, or half register.
type RegOperand struct {
	Name string
}

func (RegOperand) isOperand() {}

// ImmOperand is a literal value, already parsed to its numeric form.
type ImmOperand struct {
	Value int64
}

func (ImmOperand) isOperand() {}

// MemOperand is an indirect memory reference: seg:[base+index+disp].
// Base/Index are register names drawn from {BX, SI, DI, BP} or empty.
type MemOperand struct {
	Seg   string
	Base  string
	Index string
	Disp  int64
}

func (MemOperand) isOperand() {}

// FarOperand is an explicit segment:offset pointer, the late-bound shape a
// FAR label reference (or a literal far constant) resolves to. A resolved
// FAR label carries the segment as a register name (SegReg), since its
// paragraph value is only known once that register is loaded at run time; a
// literal far constant carries a fixed Seg value instead.
type FarOperand struct {
	SegReg string
	Seg    int64
	Offset int64
}

func (FarOperand) isOperand() {}

// LabelOperand is an unresolved symbol reference. Should not survive past
// assembly's second pass in a well-formed program.
type LabelOperand struct {
	Name string
	Far  bool
}

func (LabelOperand) isOperand() {}

var generalRegisters = map[string]bool{
	"AX": true, "BX": true, "CX": true, "DX": true,
	"SP": true, "BP": true, "SI": true, "DI": true,
	"AH": true, "AL": true, "BH": true, "BL": true,
	"CH": true, "CL": true, "DH": true, "DL": true,
}

var segmentRegisters = map[string]bool{
	"CS": true, "DS": true, "SS": true, "ES": true,
}

// IsRegisterName reports whether name is a general, half, or segment
// register name.
func IsRegisterName(name string) bool {
	u := strings.ToUpper(name)
	return generalRegisters[u] || segmentRegisters[u]
}

// baseIndexRegisters are the only registers usable inside [] as a base or
// index component, matching the source's get_address.
var baseIndexRegisters = map[string]bool{"BX": true, "SI": true, "DI": true, "BP": true}

// ParseOperand converts one resolved operand token into an Operand value.
func ParseOperand(tok string) (Operand, error) {
	s := strings.TrimSpace(tok)
	if s == "" {
		return nil, errors.Wrap(ErrBadOperand, "empty operand")
	}
	up := strings.ToUpper(s)

	if IsRegisterName(up) {
		return RegOperand{Name: up}, nil
	}

	if strings.Contains(s, "[") {
		return parseMemOperand(up)
	}

	if idx := strings.Index(up, ":"); idx >= 0 && !strings.Contains(up, "[") {
		segPart, offPart := up[:idx], up[idx+1:]
		if off, err2 := ParseNumericLiteral(offPart); err2 == nil {
			if segmentRegisters[segPart] {
				return FarOperand{SegReg: segPart, Offset: off}, nil
			}
			if seg, err := ParseNumericLiteral(segPart); err == nil {
				return FarOperand{Seg: seg, Offset: off}, nil
			}
		}
	}

	if v, ok := ParseCharLiteral(up); ok {
		return ImmOperand{Value: v}, nil
	}

	if IsNumericLiteral(up) {
		v, err := ParseNumericLiteral(up)
		if err != nil {
			return nil, err
		}
		return ImmOperand{Value: v}, nil
	}

	// Not a register, memory ref, or literal: treat as an unresolved label.
	return LabelOperand{Name: up}, nil
}

// parseMemOperand parses "[SEGREG:][BASE][+INDEX][+DISP]" forms such as
// "DS:[BX+SI+4]", "[BX+4]", "SS:[BP]", or a direct address "[1234]".
func parseMemOperand(up string) (Operand, error) {
	seg := ""
	rest := up
	if i := strings.Index(up, "["); i > 0 {
		prefix := strings.TrimSuffix(up[:i], ":")
		if segmentRegisters[prefix] {
			seg = prefix
		}
		rest = up[i:]
	}

	open := strings.Index(rest, "[")
	closeIdx := strings.LastIndex(rest, "]")
	if open < 0 || closeIdx < 0 || closeIdx < open {
		return nil, errors.Wrapf(ErrBadOperand, "malformed memory operand %q", up)
	}
	inner := rest[open+1 : closeIdx]

	var base, index string
	var disp int64
	hasDisp := false

	for _, term := range splitSigned(inner) {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		switch {
		case baseIndexRegisters[term]:
			if base == "" {
				base = term
			} else {
				index = term
			}
		case IsNumericLiteral(strings.TrimPrefix(term, "-")):
			v, err := ParseNumericLiteral(term)
			if err != nil {
				return nil, err
			}
			disp += v
			hasDisp = true
		default:
			// A bare identifier inside brackets that is not a register is a
			// variable/label reference that should have been resolved to a
			// numeric displacement by the assembler's second pass; surface
			// it unresolved rather than guess.
			return nil, errors.Wrapf(ErrUnknownSymbol, "%q", term)
		}
	}

	if seg == "" {
		if base == "BP" {
			seg = "SS"
		} else {
			seg = "DS"
		}
	}

	if !hasDisp {
		disp = 0
	}
	return MemOperand{Seg: seg, Base: base, Index: index, Disp: disp}, nil
}

// splitSigned splits "BX+SI+4" / "BX+SI-4" into ["BX","SI","4"] /
// ["BX","SI","-4"], keeping sign on negative displacement terms.
func splitSigned(s string) []string {
	var out []string
	start := 0
	for i := 1; i < len(s); i++ {
		if s[i] == '+' || s[i] == '-' {
			out = append(out, s[start:i])
			start = i
			if s[i] == '-' {
				continue
			}
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// FormatNumber renders a resolved symbol value or `$` cursor position as
// operand text: plain decimal, as strconv.FormatInt produces, kept in one
// place so every call site renders numbers the same way.
func FormatNumber(v int64) string {
	return strconv.FormatInt(v, 10)
}
