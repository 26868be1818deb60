package machine

import (
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(format, args...)
	}
}

var defaultTestSegments = map[string]uint16{
	"DS": 0x2000, "CS": 0x3000, "SS": 0x5000, "ES": 0x7000,
}

func assembleAndCheck(t *testing.T, source string) *AssembledProgram {
	t.Helper()
	prog, err := NewAssembler(defaultTestSegments).Assemble(source)
	assert(t, err == nil, "assemble failed: %v", err)
	return prog
}

func TestAssembleSimpleMoveProgram(t *testing.T) {
	prog := assembleAndCheck(t, `
		NAME TEST1
		ASSUME CS:CODESEG

		CODESEG SEGMENT
		START:
			MOV AX, 5
			MOV BX, AX
			HLT
		CODESEG ENDS

		END START
	`)

	assert(t, prog.EntrySeg == "CS", "expected entry segment CS, got %q", prog.EntrySeg)
	assert(t, prog.EntryIP == 0, "expected entry IP 0, got %d", prog.EntryIP)

	img, ok := prog.Images["CS"]
	assert(t, ok, "expected a CS segment image")

	first, ok := img.Slots[0].(InstrSlot)
	assert(t, ok, "slot 0 is not an instruction")
	assert(t, first.Mnemonic == "MOV", "expected MOV, got %s", first.Mnemonic)
	assert(t, first.Operands[0] == "AX" && first.Operands[1] == "5",
		"unexpected operands: %v", first.Operands)
}

func TestAssembleDataSegmentAndVariableReference(t *testing.T) {
	prog := assembleAndCheck(t, `
		NAME TEST2
		ASSUME CS:CODESEG, DS:DATASEG

		DATASEG SEGMENT
		COUNT DW 10
		MSG DB 'HI', 13, 10, '$'
		DATASEG ENDS

		CODESEG SEGMENT
		START:
			MOV AX, DATASEG
			MOV DS, AX
			MOV AX, COUNT
			MOV DX, OFFSET MSG
			HLT
		CODESEG ENDS

		END START
	`)

	dsImg, ok := prog.Images["DS"]
	assert(t, ok, "expected a DS segment image")
	b0, ok := dsImg.Slots[2].(DataSlot)
	assert(t, ok, "expected MSG's first byte to be a data slot")
	assert(t, b0.Byte == 'H', "expected 'H', got %q", b0.Byte)

	codeImg := prog.Images["CS"]
	movAX, ok := codeImg.Slots[0].(InstrSlot)
	assert(t, ok, "slot 0 is not an instruction")
	assert(t, movAX.Operands[1] == "8192",
		"bare segment-label token did not resolve to its numeric paragraph address: %v", movAX.Operands)

	movCount, ok := codeImg.Slots[2].(InstrSlot)
	assert(t, ok, "slot 2 is not an instruction")
	assert(t, movCount.Operands[1] == "DS:[0]", "expected variable reference DS:[0], got %v", movCount.Operands)

	movOffset, ok := codeImg.Slots[3].(InstrSlot)
	assert(t, ok, "slot 3 is not an instruction")
	assert(t, movOffset.Operands[1] == "2", "expected OFFSET MSG to resolve to 2, got %v", movOffset.Operands)
}

func TestAssembleSegmentAddressPopulated(t *testing.T) {
	prog := assembleAndCheck(t, `
		ASSUME CS:CODESEG, DS:DATASEG
		DATASEG SEGMENT
		DATASEG ENDS
		CODESEG SEGMENT
		START: HLT
		CODESEG ENDS
		END START
	`)
	assert(t, prog.Symbols.SegmentAddress["CS"] == 0x3000,
		"expected CS base 0x3000, got %#x", prog.Symbols.SegmentAddress["CS"])
	assert(t, prog.Symbols.SegmentAddress["DS"] == 0x2000,
		"expected DS base 0x2000, got %#x", prog.Symbols.SegmentAddress["DS"])
}

func TestAssembleUnterminatedSegmentFails(t *testing.T) {
	_, err := NewAssembler(defaultTestSegments).Assemble(`
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START: HLT
	`)
	assert(t, err != nil, "expected an error for a missing ENDS")
}

func TestAssembleControlTransferLabelResolution(t *testing.T) {
	prog := assembleAndCheck(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			JMP DONE
			NOP
		DONE:
			HLT
		CODESEG ENDS
		END START
	`)
	img := prog.Images["CS"]
	jmp, ok := img.Slots[0].(InstrSlot)
	assert(t, ok, "slot 0 is not an instruction")
	assert(t, jmp.Operands[0] == "2", "expected JMP target resolved to offset 2, got %v", jmp.Operands)
}
