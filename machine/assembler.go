package machine

import (
	"strings"

	"github.com/pkg/errors"
)

// Symbol is one resolved label/variable entry: which segment register it
// lives in and its slot offset within that segment (one slot per data byte
// or per instruction, per the slot-granular IP model). Type is always 0 (the
// source's TYPE attribute is unused beyond satisfying the TYPE operand
// keyword); kept as a field for fidelity with SPEC_FULL.md §3's SymbolTable
// entity.
type Symbol struct {
	Seg    string
	Offset int
	Type   int
}

// SymbolTable is the assembler's output alongside the segment images: see
// SPEC_FULL.md §3.
type SymbolTable struct {
	SegmentID      map[string]string
	SegmentAddress map[string]uint16
	SegmentLength  map[string]int
	Labels         map[string]Symbol
	Variables      map[string]Symbol
}

// AssembledProgram bundles the per-register segment images with the symbol
// table and the resolved entry point.
type AssembledProgram struct {
	Images   map[string]*SegmentImage
	Symbols  *SymbolTable
	EntryIP  uint16
	EntrySeg string
}

// Assembler is the one-pass textual assembler described in SPEC_FULL.md
// §4.2, grounded on original_source/emulator/assembler.py.
type Assembler struct {
	init map[string]uint16
}

// NewAssembler returns an assembler that will use the given initial
// paragraph addresses for DS/CS/SS/ES.
func NewAssembler(initSegments map[string]uint16) *Assembler {
	return &Assembler{init: initSegments}
}

type pendingSymbol struct {
	userSeg string
	offset  int
}

type scanState struct {
	images    map[string]*SegmentImage
	cursor    map[string]int
	labels    map[string]pendingSymbol
	variables map[string]pendingSymbol
	segmentID map[string]string
	order     []string
	curSeg    string
}

func newScanState() *scanState {
	return &scanState{
		images:    map[string]*SegmentImage{},
		cursor:    map[string]int{},
		labels:    map[string]pendingSymbol{},
		variables: map[string]pendingSymbol{},
		segmentID: map[string]string{},
	}
}

// Assemble runs all three phases described in SPEC_FULL.md §4.2: preprocess,
// directive scan, and per-segment assembly, then resolves symbols.
func (a *Assembler) Assemble(source string) (*AssembledProgram, error) {
	lines := Preprocess(source)
	st := newScanState()
	entryLabel := ""

	for _, ln := range lines {
		toks := ln.Tokens
		if len(toks) == 0 {
			continue
		}
		if st.curSeg != "" {
			if len(toks) >= 2 && toks[1] == "ENDS" {
				st.curSeg = ""
				continue
			}
			if err := a.processSegmentLine(ln, st); err != nil {
				return nil, err
			}
			continue
		}

		switch {
		case toks[0] == "NAME" || toks[0] == "TITLE":
			// recorded for fidelity only; no code effect.
		case toks[0] == "ASSUME":
			for _, t := range toks[1:] {
				parts := strings.SplitN(t, ":", 2)
				if len(parts) != 2 {
					continue
				}
				reg, userSeg := parts[0], parts[1]
				if segmentRegisters[reg] {
					st.segmentID[userSeg] = reg
				}
			}
		case len(toks) >= 2 && toks[1] == "SEGMENT":
			st.curSeg = toks[0]
			if _, ok := st.images[st.curSeg]; !ok {
				st.images[st.curSeg] = NewSegmentImage()
				st.cursor[st.curSeg] = 0
				st.order = append(st.order, st.curSeg)
			}
		case toks[0] == "END":
			if len(toks) > 1 {
				entryLabel = toks[1]
			}
		default:
			return nil, newAssembleError(ln.LineNo, "unexpected line outside any segment",
				errors.Errorf("%v", toks))
		}
	}

	if st.curSeg != "" {
		return nil, newAssembleError(0, "unterminated segment", ErrUnterminatedSegment)
	}

	return st.finish(entryLabel, a.init)
}

func (a *Assembler) processSegmentLine(ln SourceLine, st *scanState) error {
	toks := ln.Tokens
	first := toks[0]
	seg := st.curSeg

	switch {
	case first == "ORG":
		if len(toks) < 2 {
			return newAssembleError(ln.LineNo, "ORG requires an operand", ErrBadOperand)
		}
		n, err := ParseNumericLiteral(toks[1])
		if err != nil {
			return newAssembleError(ln.LineNo, "ORG operand", err)
		}
		st.cursor[seg] = int(n)
		return nil

	case first == "EVEN":
		p := st.cursor[seg]
		st.cursor[seg] = p + (p % 2)
		return nil

	case first == "ALIGN":
		if len(toks) < 2 {
			return newAssembleError(ln.LineNo, "ALIGN requires an operand", ErrBadOperand)
		}
		n, err := ParseNumericLiteral(toks[1])
		if err != nil {
			return newAssembleError(ln.LineNo, "ALIGN operand", err)
		}
		if n <= 0 || n&(n-1) != 0 {
			return newAssembleError(ln.LineNo, "ALIGN operand", ErrAlignNotPowerOfTwo)
		}
		p := st.cursor[seg]
		rem := p % int(n)
		if rem != 0 {
			st.cursor[seg] = p + (int(n) - rem)
		}
		return nil

	case first == "DB" || first == "DW" || first == "DD":
		return a.emitDataLine(st, first, ln)

	case strings.HasSuffix(first, ":"):
		label := strings.TrimSuffix(first, ":")
		st.labels[label] = pendingSymbol{userSeg: seg, offset: st.cursor[seg]}
		if len(toks) > 1 {
			return a.emitAfterLabel(st, toks[1:], ln)
		}
		return nil

	case len(toks) >= 2 && (toks[1] == "DB" || toks[1] == "DW" || toks[1] == "DD"):
		st.variables[first] = pendingSymbol{userSeg: seg, offset: st.cursor[seg]}
		return a.emitDataLine(st, toks[1], ln)

	default:
		return a.emitInstruction(st, toks, ln)
	}
}

func (a *Assembler) emitAfterLabel(st *scanState, toks []string, ln SourceLine) error {
	if toks[0] == "DB" || toks[0] == "DW" || toks[0] == "DD" {
		return a.emitDataLine(st, toks[0], ln)
	}
	return a.emitInstruction(st, toks, ln)
}

func (a *Assembler) emitInstruction(st *scanState, toks []string, ln SourceLine) error {
	seg := st.curSeg
	p := st.cursor[seg]
	mnemonic := toks[0]
	operands := append([]string(nil), toks[1:]...)
	for i, op := range operands {
		if op == "$" {
			operands[i] = FormatNumber(int64(p))
		}
	}
	st.images[seg].Slots[p] = InstrSlot{Mnemonic: mnemonic, Operands: operands}
	st.cursor[seg] = p + 1
	return nil
}

func (a *Assembler) emitDataLine(st *scanState, kind string, ln SourceLine) error {
	remainder := afterKeyword(ln.Origin, kind)
	terms := splitDataTerms(remainder)
	if len(terms) == 0 {
		return newAssembleError(ln.LineNo, "data definition has no operands", ErrBadOperand)
	}
	seg := st.curSeg
	p := st.cursor[seg]
	img := st.images[seg]
	for _, term := range terms {
		bytes, err := expandDataTerm(kind, term)
		if err != nil {
			return newAssembleError(ln.LineNo, "data definition", err)
		}
		for _, b := range bytes {
			img.Slots[p] = DataSlot{Byte: b}
			p++
		}
	}
	st.cursor[seg] = p
	return nil
}

func expandDataTerm(kind, term string) ([]byte, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.Wrap(ErrBadOperand, "empty data term")
	}
	if term == "?" {
		term = "0"
	}
	if isQuoted(term) {
		if kind != "DB" {
			return nil, errors.Wrapf(ErrBadOperand, "quoted string only valid for DB, got %s", kind)
		}
		return []byte(term[1 : len(term)-1]), nil
	}
	if n, inner, ok := parseDup(term); ok {
		one, err := expandDataTerm(kind, inner)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(one)*n)
		for i := 0; i < n; i++ {
			out = append(out, one...)
		}
		return out, nil
	}
	v, err := ParseNumericLiteral(term)
	if err != nil {
		if cv, ok := ParseCharLiteral(term); ok {
			v = cv
		} else {
			return nil, err
		}
	}
	switch kind {
	case "DB":
		return []byte{byte(v & 0xFF)}, nil
	case "DW":
		return []byte{byte(v & 0xFF), byte((v >> 8) & 0xFF)}, nil
	case "DD":
		return []byte{byte(v & 0xFF), byte((v >> 8) & 0xFF), byte((v >> 16) & 0xFF), byte((v >> 24) & 0xFF)}, nil
	default:
		return nil, errors.Wrapf(ErrBadOperand, "unknown data directive %q", kind)
	}
}

func (st *scanState) finish(entryLabel string, initSegments map[string]uint16) (*AssembledProgram, error) {
	sym := &SymbolTable{
		SegmentID:      st.segmentID,
		SegmentAddress: map[string]uint16{},
		SegmentLength:  map[string]int{},
		Labels:         map[string]Symbol{},
		Variables:      map[string]Symbol{},
	}
	images := map[string]*SegmentImage{}

	for _, userSeg := range st.order {
		reg, ok := st.segmentID[userSeg]
		if !ok {
			return nil, newAssembleError(0, "segment never referenced by ASSUME",
				errors.Errorf("%s", userSeg))
		}
		images[reg] = st.images[userSeg]
		sym.SegmentLength[reg] = st.cursor[userSeg]
		sym.SegmentAddress[reg] = initSegments[reg]
	}

	for name, p := range st.labels {
		reg, ok := st.segmentID[p.userSeg]
		if !ok {
			continue
		}
		sym.Labels[name] = Symbol{Seg: reg, Offset: p.offset}
	}
	for name, p := range st.variables {
		reg, ok := st.segmentID[p.userSeg]
		if !ok {
			continue
		}
		sym.Variables[name] = Symbol{Seg: reg, Offset: p.offset}
	}

	prog := &AssembledProgram{Images: images, Symbols: sym}

	if entryLabel != "" {
		lbl, ok := sym.Labels[entryLabel]
		if !ok {
			return nil, newAssembleError(0, "unknown entry label", errors.Errorf("%s", entryLabel))
		}
		prog.EntryIP = uint16(lbl.Offset)
		prog.EntrySeg = lbl.Seg
	}

	if err := resolveSymbols(prog); err != nil {
		return nil, err
	}
	return prog, nil
}
