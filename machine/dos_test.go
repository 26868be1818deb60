package machine

import (
	"strings"
	"testing"
)

// fakeConsole is a test double for ConsoleDevice: writes accumulate in a
// buffer instead of touching the real terminal, reads are served from a
// preloaded queue.
type fakeConsole struct {
	out     strings.Builder
	inQueue []byte
}

func (f *fakeConsole) ReadByte() (byte, error) {
	if len(f.inQueue) == 0 {
		return 0, nil
	}
	b := f.inQueue[0]
	f.inQueue = f.inQueue[1:]
	return b, nil
}

func (f *fakeConsole) ReadLine() (string, error) { return "", nil }

func (f *fakeConsole) WriteByte(b byte) error {
	f.out.WriteByte(b)
	return nil
}

func (f *fakeConsole) WriteString(s string) error {
	f.out.WriteString(s)
	return nil
}

func (f *fakeConsole) InPort(uint16) (uint16, error) { return 0, nil }
func (f *fakeConsole) OutPort(uint16, uint16) error  { return nil }

func buildWithConsole(t *testing.T, source string, con *fakeConsole) *CPU {
	t.Helper()
	prog := assembleAndCheck(t, source)

	mem := NewMemory()
	assert(t, LoadInterruptVectorTable(mem) == nil, "loading IVT failed")
	for reg, img := range prog.Images {
		base := prog.Symbols.SegmentAddress[reg]
		assert(t, mem.LoadImage(base, img) == nil, "failed to load %s image", reg)
	}

	bus := NewBIU(mem, defaultTestSegments["CS"], defaultTestSegments["DS"],
		defaultTestSegments["SS"], defaultTestSegments["ES"], prog.EntryIP)
	eu := NewEU(bus)
	eu.SetConsole(con)
	cpu := NewCPU(bus, eu)

	err := cpu.Run()
	assert(t, err == nil, "run failed: %v", err)
	return cpu
}

func TestDOSWriteStringStopsAtDollarSign(t *testing.T) {
	con := &fakeConsole{}
	buildWithConsole(t, `
		ASSUME CS:CODESEG, DS:DATASEG
		DATASEG SEGMENT
		MSG DB 'HELLO', '$'
		DATASEG ENDS
		CODESEG SEGMENT
		START:
			MOV AX, DATASEG
			MOV DS, AX
			MOV AH, 9
			MOV DX, OFFSET MSG
			INT 21H
			HLT
		CODESEG ENDS
		END START
	`, con)
	assert(t, con.out.String() == "HELLO", "expected \"HELLO\", got %q", con.out.String())
}

func TestDOSWriteCharacterWritesOneByte(t *testing.T) {
	con := &fakeConsole{}
	buildWithConsole(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AH, 2
			MOV DL, 65
			INT 21H
			HLT
		CODESEG ENDS
		END START
	`, con)
	assert(t, con.out.String() == "A", "expected \"A\", got %q", con.out.String())
}

func TestDOSReadCharacterFillsAL(t *testing.T) {
	con := &fakeConsole{inQueue: []byte{'Z'}}
	cpu := buildWithConsole(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AH, 1
			INT 21H
			HLT
		CODESEG ENDS
		END START
	`, con)
	assert(t, cpu.eu.AX&0xFF == uint16('Z'), "expected AL='Z', got AX=%#x", cpu.eu.AX)
}

func TestDOSExitWithCodeSetsExitCodeAndShutsDown(t *testing.T) {
	con := &fakeConsole{}
	cpu := buildWithConsole(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AH, 0x4C
			MOV AL, 7
			INT 21H
		CODESEG ENDS
		END START
	`, con)
	assert(t, cpu.eu.ExitCode() == 7, "expected exit code 7, got %d", cpu.eu.ExitCode())
	assert(t, cpu.eu.Shutdown(), "expected shutdown after INT 21h/AH=4C")
}

func TestDOSGetVectorReturnsIVTEntry(t *testing.T) {
	con := &fakeConsole{}
	cpu := buildWithConsole(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AH, 0x35
			MOV AL, 0
			INT 21H
			HLT
		CODESEG ENDS
		END START
	`, con)
	assert(t, cpu.eu.BX == uint16(0*isrSlotSize), "expected BX=0 for vector 0's IP, got %#x", cpu.eu.BX)
	assert(t, cpu.bus.ES == isrBase, "expected ES=%#x for vector 0's CS, got %#x", isrBase, cpu.bus.ES)
}

func TestBIOSTeletypeWritesALToConsole(t *testing.T) {
	con := &fakeConsole{}
	buildWithConsole(t, `
		ASSUME CS:CODESEG
		CODESEG SEGMENT
		START:
			MOV AH, 0x0E
			MOV AL, 88
			INT 10H
			HLT
		CODESEG ENDS
		END START
	`, con)
	assert(t, con.out.String() == "X", "expected \"X\", got %q", con.out.String())
}
