package machine

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
)

// CPU drives the BIU/EU pipeline: each tick refills the prefetch queue (BIU)
// then executes one instruction from it (EU). Grounded on
// original_source/emulator/cpu.py's iterate/fetch_cycle/execute_cycle split.
type CPU struct {
	bus *BIU
	eu  *EU
}

// NewCPU wires a BIU and EU together into a driver.
func NewCPU(bus *BIU, eu *EU) *CPU {
	return &CPU{bus: bus, eu: eu}
}

// fetchCycle fills the prefetch queue as far as it will go this tick.
func (c *CPU) fetchCycle() error {
	return c.bus.Run()
}

// executeCycle runs exactly one instruction from the queue, if one is ready.
func (c *CPU) executeCycle() error {
	if c.bus.QueueEmpty() {
		return nil
	}
	return c.eu.Run()
}

// Done reports whether the pipeline has nothing left to do: the EU has
// halted or exited, or the queue is empty and no further instruction is
// reachable from the prefetch cursor.
func (c *CPU) Done() bool {
	if c.eu.Shutdown() || c.eu.Interrupted() {
		return true
	}
	return c.bus.QueueEmpty() && !c.bus.RemainingInstruction()
}

// Tick runs one fetch/execute cycle pair.
func (c *CPU) Tick() error {
	if err := c.fetchCycle(); err != nil {
		return err
	}
	return c.executeCycle()
}

// Run drives ticks until Done, disabling the garbage collector for the
// duration the way the teacher's bytecode driver does: the machine's working
// set (memory image, symbol tables) is allocated up front, and the tight
// fetch/execute loop that follows allocates almost nothing per tick, so a
// GC pause mid-run only costs time for no benefit.
func (c *CPU) Run() error {
	restore := suspendGC()
	defer restore()

	for !c.Done() {
		if err := c.Tick(); err != nil {
			return err
		}
	}
	return nil
}

// suspendGC disables the garbage collector and returns a function that
// restores whatever percentage GOGC named (or the Go default of 100 if GOGC
// was unset or unparsable).
func suspendGC() func() {
	restorePercent := 100
	if v, ok := os.LookupEnv("GOGC"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			restorePercent = n
		}
	}
	debug.SetGCPercent(-1)
	return func() { debug.SetGCPercent(restorePercent) }
}

// RegisterSnapshot is a point-in-time copy of the CPU-visible state, used for
// trace output and the exit summary.
type RegisterSnapshot struct {
	AX, BX, CX, DX uint16
	SP, BP, SI, DI uint16
	CS, DS, SS, ES uint16
	IP             uint16
	Flags          FlagRegister
}

// Snapshot captures the current register file.
func (c *CPU) Snapshot() RegisterSnapshot {
	return RegisterSnapshot{
		AX: c.eu.AX, BX: c.eu.BX, CX: c.eu.CX, DX: c.eu.DX,
		SP: c.eu.SP, BP: c.eu.BP, SI: c.eu.SI, DI: c.eu.DI,
		CS: c.bus.CS, DS: c.bus.DS, SS: c.bus.SS, ES: c.bus.ES,
		IP: c.bus.IP, Flags: c.eu.FR,
	}
}

// PrintState writes a two-line register/flag dump to w, the Go analogue of
// the source's print_state/show_regs pairing.
func (c *CPU) PrintState(w *os.File) {
	r := c.Snapshot()
	fmt.Fprintf(w, "AX=%04X BX=%04X CX=%04X DX=%04X SP=%04X BP=%04X SI=%04X DI=%04X\n",
		r.AX, r.BX, r.CX, r.DX, r.SP, r.BP, r.SI, r.DI)
	fmt.Fprintf(w, "CS=%04X DS=%04X SS=%04X ES=%04X IP=%04X  %s\n",
		r.CS, r.DS, r.SS, r.ES, r.IP, flagSummary(r.Flags))
}

func flagSummary(fr FlagRegister) string {
	bit := func(set bool, ch string) string {
		if set {
			return ch
		}
		return "-"
	}
	return bit(fr.Overflow, "O") + bit(fr.Direction, "D") + bit(fr.Interrupt, "I") +
		bit(fr.Trap, "T") + bit(fr.Sign, "S") + bit(fr.Zero, "Z") +
		bit(fr.Auxiliary, "A") + bit(fr.Parity, "P") + bit(fr.Carry, "C")
}

// PrintEndState writes the final register dump plus exit status, the
// analogue of the source's print_end_state.
func (c *CPU) PrintEndState(w *os.File) {
	c.PrintState(w)
	if c.eu.Interrupted() {
		fmt.Fprintln(w, "stopped: breakpoint")
		return
	}
	fmt.Fprintf(w, "exit code: %d\n", c.eu.ExitCode())
}

// EU exposes the underlying execution unit, used by callers that need to
// install a console/trace sink before Run.
func (c *CPU) EU() *EU { return c.eu }

// BIU exposes the underlying bus interface unit.
func (c *CPU) BIU() *BIU { return c.bus }
