package machine

import "testing"

func TestUnsupportedSoftwareInterruptFails(t *testing.T) {
	prog := assembleAndCheck(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			INT 5
			HLT
		CODESEG ENDS
		END START
	`)

	mem := NewMemory()
	for reg, img := range prog.Images {
		base := prog.Symbols.SegmentAddress[reg]
		assert(t, mem.LoadImage(base, img) == nil, "failed to load %s image", reg)
	}

	bus := NewBIU(mem, defaultTestSegments["CS"], defaultTestSegments["DS"],
		defaultTestSegments["SS"], defaultTestSegments["ES"], prog.EntryIP)
	eu := NewEU(bus)
	cpu := NewCPU(bus, eu)

	err := cpu.Run()
	assert(t, err != nil, "expected INT 5 (an unsupported vector) to fail, got nil")
	rerr, ok := err.(*RuntimeError)
	assert(t, ok, "expected a *RuntimeError, got %T", err)
	assert(t, rerr.Kind == KindDecode, "expected KindDecode, got %v", rerr.Kind)
}
