// Package format renders CPU-visible state as human-readable text. The -i
// trace logger and CPU.PrintState do not call it; they format their own
// output.
package format

import (
	"fmt"
	"strings"

	"8086emu/machine"
)

// Registers renders the general-purpose and segment registers on two lines,
// hex-padded to their natural width, in the style of the teacher's
// PrintRegisters dumps.
func Registers(r machine.RegisterSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "AX=%04X BX=%04X CX=%04X DX=%04X SP=%04X BP=%04X SI=%04X DI=%04X\n",
		r.AX, r.BX, r.CX, r.DX, r.SP, r.BP, r.SI, r.DI)
	fmt.Fprintf(&b, "CS=%04X DS=%04X SS=%04X ES=%04X IP=%04X",
		r.CS, r.DS, r.SS, r.ES, r.IP)
	return b.String()
}

// Flags renders the nine named flags as a fixed-order letter string, '-'
// where clear, matching convention in x86 register dumps (ODITSZAPC).
func Flags(fr machine.FlagRegister) string {
	bit := func(set bool, ch byte) byte {
		if set {
			return ch
		}
		return '-'
	}
	buf := []byte{
		bit(fr.Overflow, 'O'),
		bit(fr.Direction, 'D'),
		bit(fr.Interrupt, 'I'),
		bit(fr.Trap, 'T'),
		bit(fr.Sign, 'S'),
		bit(fr.Zero, 'Z'),
		bit(fr.Auxiliary, 'A'),
		bit(fr.Parity, 'P'),
		bit(fr.Carry, 'C'),
	}
	return string(buf)
}

// Slot renders one memory cell: "." for an unwritten location, a two-digit
// hex byte for a DataSlot, or "MNEM op1,op2" for an InstrSlot.
func Slot(s machine.Slot) string {
	switch v := s.(type) {
	case nil:
		return "."
	case machine.DataSlot:
		return fmt.Sprintf("%02X", v.Byte)
	case machine.InstrSlot:
		if len(v.Operands) == 0 {
			return v.Mnemonic
		}
		return v.Mnemonic + " " + strings.Join(v.Operands, ",")
	default:
		return "?"
	}
}

// MemoryWindow renders count consecutive slots starting at base, 8 per
// line, each line prefixed with the physical address of its first slot.
func MemoryWindow(mem *machine.Memory, base, count int) string {
	var b strings.Builder
	for i := 0; i < count; i++ {
		if i%8 == 0 {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%05X: ", base+i)
		}
		slot, err := mem.ReadSlot(base + i)
		if err != nil {
			b.WriteString("!! ")
			continue
		}
		fmt.Fprintf(&b, "%-12s", Slot(slot))
	}
	return b.String()
}
