package machine

import "testing"

func TestShiftSetsSignZeroParityFlags(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 0FFFFH
			SHL AX, 1
			HLT
		CODESEG ENDS
		END START
	`)
	// 0xFFFF << 1 = 0xFFFE: top bit set (SF), result nonzero (ZF clear),
	// low byte 0xFE has 7 set bits (PF clear).
	assert(t, cpu.eu.FR.Sign, "expected SF set after SHL AX,1 on 0xFFFF")
	assert(t, !cpu.eu.FR.Zero, "expected ZF clear, result is 0xFFFE")
	assert(t, !cpu.eu.FR.Parity, "expected PF clear, low byte 0xFE has odd parity")
}

func TestShiftToZeroSetsZeroFlag(t *testing.T) {
	cpu := buildAndRun(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AX, 1
			SHR AX, 1
			HLT
		CODESEG ENDS
		END START
	`)
	assert(t, cpu.eu.FR.Zero, "expected ZF set after SHR AX,1 shifts 1 to 0")
	assert(t, !cpu.eu.FR.Sign, "expected SF clear, result is 0")
}
