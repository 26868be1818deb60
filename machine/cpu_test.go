package machine

import "testing"

func buildAndRun(t *testing.T, source string) *CPU {
	t.Helper()
	prog := assembleAndCheck(t, source)

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
	assert(t, err == nil, "run failed: %v", err)
	return cpu
}

func TestArithmeticAndHalt(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 10
			MOV BX, 20
			ADD AX, BX
			HLT
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.AX == 30, "expected AX=30, got %d", cpu.eu.AX)
	assert(t, cpu.eu.Shutdown(), "expected shutdown after HLT")
}

func TestLoopDecrementsAndAccumulates(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV CX, 5
			MOV AX, 0
		AGAIN:
			ADD AX, 1
			LOOP AGAIN
			HLT
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.AX == 5, "expected AX=5 after 5 loop iterations, got %d", cpu.eu.AX)
	assert(t, cpu.eu.CX == 0, "expected CX=0 after loop exhausts, got %d", cpu.eu.CX)
}

func TestConditionalJumpTakesBranchOnZero(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 1
			SUB AX, 1
			JZ ZEROED
			MOV BX, 1
			HLT
		ZEROED:
			MOV BX, 2
			HLT
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.BX == 2, "expected the JZ branch to set BX=2, got %d", cpu.eu.BX)
}

func TestCallAndRetRoundTrip(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 1
			CALL ADDONE
			CALL ADDONE
			HLT
		ADDONE:
			ADD AX, 1
			RET
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.AX == 3, "expected AX=3 after two CALLs, got %d", cpu.eu.AX)
	assert(t, cpu.eu.SP == 0, "expected SP restored to 0 after matched CALL/RET pairs, got %d", cpu.eu.SP)
}

func TestMul16BitUsesFullWidth(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 1000
			MOV BX, 1000
			MUL BX
			HLT
		CODESEG ENDS
		END START
	`)
	// 1000*1000 = 1,000,000 = 0x0F4240: AX should hold the low word, DX the
	// high word, neither truncated to 8 bits.
	assert(t, cpu.eu.AX == 0x4240, "expected AX=0x4240, got %#x", cpu.eu.AX)
	assert(t, cpu.eu.DX == 0x000F, "expected DX=0x000F, got %#x", cpu.eu.DX)
}

func TestDiv16BitReassemblesDividendWithFullShift(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV DX, 1
			MOV AX, 0
			MOV BX, 2
			DIV BX
			HLT
		CODESEG ENDS
		END START
	`)
	// DX:AX = 0x00010000 = 65536; divided by 2 = 32768 quotient, 0 remainder.
	assert(t, cpu.eu.AX == 32768, "expected AX=32768 (quotient), got %d", cpu.eu.AX)
	assert(t, cpu.eu.DX == 0, "expected DX=0 (remainder), got %d", cpu.eu.DX)
}

func TestDivideByZeroRaisesInterrupt0(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 10
			MOV BX, 0
			DIV BX
			HLT
		CODESEG ENDS
		END START
	`)
	// No stub is loaded at vector 0 in this bare memory image, so the
	// handler's fetch finds nothing and the pipeline simply runs dry;
	// what matters here is that DIV by zero does not panic or wedge,
	// and that it actually redirected control instead of falling through
	// to HLT with AX unmodified.
	assert(t, cpu.eu.AX == 10, "DIV by zero must not execute the DIV itself: AX changed unexpectedly to %d", cpu.eu.AX)
	assert(t, !cpu.eu.Shutdown(), "DIV by zero fell through to HLT instead of entering the vector 0 handler")
}

func TestStringMoveWithRepCopiesBuffer(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG, DS:DATASEG, ES:DATASEG
		DATASEG SEGMENT
		SRC DB 1, 2, 3, 4, 5
		DST DB 0, 0, 0, 0, 0
		DATASEG ENDS
		CODESEG SEGMENT
		START:
			MOV AX, DATASEG
			MOV DS, AX
			MOV ES, AX
			CLD
			MOV SI, OFFSET SRC
			MOV DI, OFFSET DST
			MOV CX, 5
			REP MOVSB
			HLT
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.CX == 0, "expected CX exhausted after REP MOVSB, got %d", cpu.eu.CX)
	// ASSUME maps DATASEG to the last register naming it (ES), so the
	// segment is loaded at ES's base; the program points DS and ES there.
	dstBase := int(cpu.bus.ES)*16 + 5
	for i := 0; i < 5; i++ {
		b, err := cpu.bus.ReadByte(dstBase + i)
		assert(t, err == nil, "reading copied byte %d: %v", i, err)
		assert(t, int(b) == i+1, "expected copied byte %d to be %d, got %d", i, i+1, b)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 42
			PUSH AX
			MOV AX, 0
			POP AX
			HLT
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.AX == 42, "expected AX restored to 42 via PUSH/POP, got %d", cpu.eu.AX)
}
