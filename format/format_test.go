package format

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"8086emu/machine"
)

func TestRegistersRendersBothLines(t *testing.T) {
	r := machine.RegisterSnapshot{
		AX: 0x1234, BX: 0x5678, CX: 0x9ABC, DX: 0xDEF0,
		SP: 0x0100, BP: 0x0200, SI: 0x0300, DI: 0x0400,
		CS: 0x3000, DS: 0x2000, SS: 0x5000, ES: 0x7000, IP: 0x0010,
	}
	out := Registers(r)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "AX=1234") || !strings.Contains(lines[0], "DI=0400") {
		t.Fatalf("first line missing expected fields: %q", lines[0])
	}
	if !strings.Contains(lines[1], "CS=3000") || !strings.Contains(lines[1], "IP=0010") {
		t.Fatalf("second line missing expected fields: %q", lines[1])
	}
}

func TestFlagsRendersSetAndClearPositions(t *testing.T) {
	fr := machine.FlagRegister{Zero: true, Carry: true}
	got := Flags(fr)
	expected := []byte("---------")
	expected[5] = 'Z'
	expected[8] = 'C'
	if got != string(expected) {
		t.Fatalf("Flags(%+v) = %q, want %q", fr, got, string(expected))
	}
}

func TestSlotRendersAllThreeKinds(t *testing.T) {
	if got := Slot(nil); got != "." {
		t.Fatalf("empty slot: got %q, want \".\"", got)
	}
	if got := Slot(machine.DataSlot{Byte: 0xAB}); got != "AB" {
		t.Fatalf("data slot: got %q, want \"AB\"", got)
	}
	instr := machine.InstrSlot{Mnemonic: "MOV", Operands: []string{"AX", "5"}}
	if got := Slot(instr); got != "MOV AX,5" {
		t.Fatalf("instr slot: got %q, want \"MOV AX,5\"", got)
	}
}

func TestMemoryWindowWrapsEveryEightSlots(t *testing.T) {
	mem := machine.NewMemory()
	for i := 0; i < 10; i++ {
		if err := mem.WriteByte(i, byte(i)); err != nil {
			t.Fatalf("writing slot %d: %v", i, err)
		}
	}
	out := MemoryWindow(mem, 0, 10)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines for 10 slots at 8/line, got %d: %q", len(lines), out)
	}
}

func TestCPUSnapshotMatchesExpectedRegisterState(t *testing.T) {
	bus := machine.NewBIU(machine.NewMemory(), 0x3000, 0x2000, 0x5000, 0x7000, 0)
	eu := machine.NewEU(bus)
	cpu := machine.NewCPU(bus, eu)

	want := machine.RegisterSnapshot{
		CS: 0x3000, DS: 0x2000, SS: 0x5000, ES: 0x7000,
	}
	got := cpu.Snapshot()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("fresh CPU snapshot mismatch (-want +got):\n%s", diff)
	}
}
