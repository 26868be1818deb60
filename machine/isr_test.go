package machine

import "testing"

func TestLoadInterruptVectorTablePopulatesUniformEntries(t *testing.T) {
	mem := NewMemory()
	err := LoadInterruptVectorTable(mem)
	assert(t, err == nil, "loading IVT: %v", err)

	for _, vector := range []int{0, 1, 2, 3, 4, 5, 0x21, 0x7C, 0xFF} {
		ip, err := mem.ReadWord(vector * 4)
		assert(t, err == nil, "reading IVT offset for vector %#x: %v", vector, err)
		assert(t, int(ip) == vector*isrSlotSize,
			"vector %#x: expected IP %#x, got %#x", vector, vector*isrSlotSize, ip)

		cs, err := mem.ReadWord(vector*4 + 2)
		assert(t, err == nil, "reading IVT segment for vector %#x: %v", vector, err)
		assert(t, cs == isrBase, "vector %#x: expected CS %#x, got %#x", vector, isrBase, cs)
	}
}

func TestLoadInterruptVectorTableBlitsSupportedStubs(t *testing.T) {
	mem := NewMemory()
	assert(t, LoadInterruptVectorTable(mem) == nil, "loading IVT failed")

	for _, vector := range []int{0, 1, 2, 3, 4, 0x7C} {
		base := int(isrBase)*16 + vector*isrSlotSize
		slot, err := mem.ReadSlot(base)
		assert(t, err == nil, "reading stub slot for vector %#x: %v", vector, err)
		_, ok := slot.(InstrSlot)
		assert(t, ok, "expected vector %#x's handler entry to hold an instruction, got %T", vector, slot)
	}
}

func TestUnsupportedVectorHasNoBlittedCode(t *testing.T) {
	mem := NewMemory()
	assert(t, LoadInterruptVectorTable(mem) == nil, "loading IVT failed")

	base := int(isrBase)*16 + 5*isrSlotSize
	assert(t, mem.IsEmpty(base), "expected vector 5 to have no stub code, memory was written at %#x", base)
}

func TestDivideErrorPrintsDiagnosticThroughRealISR(t *testing.T) {
	con := &fakeConsole{}
	cpu := buildWithConsole(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 1
			MOV BX, 0
			DIV BX
			HLT
		CODESEG ENDS
		END START
	`, con)
	assert(t, con.out.String() == "Divide error\r\n",
		"expected the vector 0 stub's diagnostic string, got %q", con.out.String())
	assert(t, cpu.eu.Shutdown(),
		"expected the ISR's IRET to return control cleanly to the caller's HLT")
}
