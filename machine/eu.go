package machine

import (
	"strings"

	"github.com/pkg/errors"
)

// ConsoleDevice is the narrow surface the EU needs for character-oriented
// I/O: INT 21h AH=01/02/09, IN/OUT, and the bios teletype handler. Backed by
// console.go's Console at run time.
type ConsoleDevice interface {
	ReadByte() (byte, error)
	ReadLine() (string, error)
	WriteByte(b byte) error
	WriteString(s string) error
	InPort(port uint16) (uint16, error)
	OutPort(port uint16, value uint16) error
}

// TraceSink receives EU trace lines when tracing is enabled; backed by the
// zerolog logger wired in main.go.
type TraceSink interface {
	Trace(format string, args ...any)
}

type noopTrace struct{}

func (noopTrace) Trace(string, ...any) {}

// EU is the Execution Unit: general-purpose registers, the flag register,
// and the instruction-dispatch control circuit. Grounded on
// original_source/emulator/pipeline_units/execution_unit.py.
type EU struct {
	bus *BIU

	AX, BX, CX, DX uint16
	SP, BP, SI, DI uint16
	FR             FlagRegister

	opcode string
	opd    []string
	opbyte int

	interrupt    bool
	shutdown     bool
	exitCode     int
	traceEnabled bool

	console ConsoleDevice
	trace   TraceSink
}

// NewEU constructs an EU bound to bus. Tracing is off and the console is a
// discardConsole until SetConsole is called.
func NewEU(bus *BIU) *EU {
	return &EU{bus: bus, trace: noopTrace{}, console: discardConsole{}}
}

// SetConsole installs the device backing IN/OUT and DOS/BIOS character I/O.
func (e *EU) SetConsole(c ConsoleDevice) { e.console = c }

// SetTrace installs a sink for per-instruction/per-interrupt trace lines and
// toggles the interrupt-message verbosity the original gates on int_msg.
func (e *EU) SetTrace(sink TraceSink, enabled bool) {
	if sink != nil {
		e.trace = sink
	}
	e.traceEnabled = enabled
}

// Shutdown reports whether the EU has executed HLT or a terminating DOS
// service call.
func (e *EU) Shutdown() bool { return e.shutdown }

// Interrupted reports whether the EU has hit a software breakpoint (INT 3)
// or a bare INT with no operand; once set, the flag is never cleared.
func (e *EU) Interrupted() bool { return e.interrupt }

// ExitCode returns the program's requested exit status (INT 21h AH=4Ch).
func (e *EU) ExitCode() int { return e.exitCode }

// Run executes exactly one instruction from the head of the BIU's prefetch
// queue, advancing IP first the way the source does (self.bus.registers['IP']
// += 1 before dispatch, so relative operands resolved against the *next*
// instruction's IP see the already-advanced value).
func (e *EU) Run() error {
	instr, ok := e.bus.NextInstruction()
	if !ok {
		return errors.New("execution unit: no instruction available")
	}
	e.bus.IP++
	e.opcode = instr.Mnemonic
	e.opd = append([]string(nil), instr.Operands...)
	e.getOpbyte()
	return e.controlCircuit()
}

// getOpbyte derives the effective operand width: half-register operands or a
// string-instruction B suffix force byte width; an explicit BYTE/WORD/DWORD
// PTR keyword pair (which the assembler's resolve pass leaves in place)
// overrides the default word width.
func (e *EU) getOpbyte() {
	e.opbyte = 2
	for _, pr := range e.opd {
		switch pr {
		case "AL", "AH", "BL", "BH", "CL", "CH", "DL", "DH":
			e.opbyte = 1
		}
	}
	if idx := indexOf(e.opd, "PTR"); idx >= 0 {
		e.opd = removeAt(e.opd, idx)
		switch {
		case indexOf(e.opd, "BYTE") >= 0:
			e.opbyte = 1
			e.opd = removeAt(e.opd, indexOf(e.opd, "BYTE"))
		case indexOf(e.opd, "WORD") >= 0:
			e.opbyte = 2
			e.opd = removeAt(e.opd, indexOf(e.opd, "WORD"))
		case indexOf(e.opd, "DWORD") >= 0:
			e.opbyte = 4
			e.opd = removeAt(e.opd, indexOf(e.opd, "DWORD"))
		}
	}
	if stringManipulationInstr[e.opcode] {
		if strings.Contains(e.opcode, "B") {
			e.opbyte = 1
		} else {
			e.opbyte = 2
		}
	}
}

func indexOf(ss []string, v string) int {
	for i, s := range ss {
		if s == v {
			return i
		}
	}
	return -1
}

func removeAt(ss []string, i int) []string {
	return append(ss[:i], ss[i+1:]...)
}

// readReg reads any general, half, or BIU-owned segment/IP register by name.
func (e *EU) readReg(reg string) uint16 {
	switch reg {
	case "CS":
		return e.bus.CS
	case "DS":
		return e.bus.DS
	case "SS":
		return e.bus.SS
	case "ES":
		return e.bus.ES
	case "IP":
		return e.bus.IP
	case "AX":
		return e.AX
	case "BX":
		return e.BX
	case "CX":
		return e.CX
	case "DX":
		return e.DX
	case "SP":
		return e.SP
	case "BP":
		return e.BP
	case "SI":
		return e.SI
	case "DI":
		return e.DI
	case "AH":
		return (e.AX >> 8) & 0xFF
	case "AL":
		return e.AX & 0xFF
	case "BH":
		return (e.BX >> 8) & 0xFF
	case "BL":
		return e.BX & 0xFF
	case "CH":
		return (e.CX >> 8) & 0xFF
	case "CL":
		return e.CX & 0xFF
	case "DH":
		return (e.DX >> 8) & 0xFF
	case "DL":
		return e.DX & 0xFF
	default:
		return 0
	}
}

// writeReg writes any general, half, or BIU-owned segment/IP register by
// name. Writing CS or IP flushes the BIU's prefetch queue.
func (e *EU) writeReg(reg string, num uint16) {
	switch reg {
	case "CS":
		e.bus.SetSegmentValue("CS", num)
	case "DS":
		e.bus.SetSegmentValue("DS", num)
	case "SS":
		e.bus.SetSegmentValue("SS", num)
	case "ES":
		e.bus.SetSegmentValue("ES", num)
	case "IP":
		e.bus.SetIP(num)
	case "AX":
		e.AX = num
	case "BX":
		e.BX = num
	case "CX":
		e.CX = num
	case "DX":
		e.DX = num
	case "SP":
		e.SP = num
	case "BP":
		e.BP = num
	case "SI":
		e.SI = num
	case "DI":
		e.DI = num
	case "AH":
		e.AX = (e.AX & 0xFF) | ((num & 0xFF) << 8)
	case "AL":
		e.AX = (e.AX & 0xFF00) | (num & 0xFF)
	case "BH":
		e.BX = (e.BX & 0xFF) | ((num & 0xFF) << 8)
	case "BL":
		e.BX = (e.BX & 0xFF00) | (num & 0xFF)
	case "CH":
		e.CX = (e.CX & 0xFF) | ((num & 0xFF) << 8)
	case "CL":
		e.CX = (e.CX & 0xFF00) | (num & 0xFF)
	case "DH":
		e.DX = (e.DX & 0xFF) | ((num & 0xFF) << 8)
	case "DL":
		e.DX = (e.DX & 0xFF00) | (num & 0xFF)
	}
}

func (e *EU) incReg(reg string, delta int) {
	e.writeReg(reg, uint16(int(e.readReg(reg))+delta))
}

// ssSP returns the physical address of the current top of stack.
func (e *EU) ssSP() int {
	return int(e.bus.SS)*16 + int(e.SP)
}

// address returns the physical memory address a MemOperand denotes, applying
// the default-segment rule (SS if BP is the base, DS otherwise) that
// parseMemOperand already bakes into op.Seg.
func (e *EU) address(op MemOperand) int {
	segVal := e.readReg(op.Seg)
	addr := int(segVal) * 16
	if op.Base != "" {
		addr += int(e.readReg(op.Base))
	}
	if op.Index != "" {
		addr += int(e.readReg(op.Index))
	}
	addr += int(op.Disp)
	return addr
}

// offset returns a MemOperand's address without the segment component, for
// LEA.
func (e *EU) offset(op MemOperand) int {
	off := int(op.Disp)
	if op.Base != "" {
		off += int(e.readReg(op.Base))
	}
	if op.Index != "" {
		off += int(e.readReg(op.Index))
	}
	return off
}

// operand parses one raw token into an Operand.
func (e *EU) operand(tok string) (Operand, error) {
	return ParseOperand(tok)
}

// getInt reads the value an operand token denotes, honoring the current
// opbyte for memory reads.
func (e *EU) getInt(tok string) (int64, error) {
	op, err := e.operand(tok)
	if err != nil {
		return 0, err
	}
	switch v := op.(type) {
	case RegOperand:
		return int64(e.readReg(v.Name)), nil
	case ImmOperand:
		return v.Value, nil
	case MemOperand:
		return e.readMem(e.address(v))
	case FarOperand:
		if v.SegReg != "" {
			return int64(e.readReg(v.SegReg)), nil
		}
		return v.Seg, nil
	case LabelOperand:
		return 0, errors.Wrapf(ErrUnknownSymbol, "unresolved label %q at execution time", v.Name)
	default:
		return 0, errors.Errorf("unsupported operand %T", op)
	}
}

// getIntFromAddr reads a value of the current opbyte width directly from a
// physical address, used for stack/IVT reads that already know their
// address.
func (e *EU) getIntFromAddr(addr int) (int64, error) {
	return e.readMem(addr)
}

func (e *EU) readMem(addr int) (int64, error) {
	switch e.opbyte {
	case 1:
		v, err := e.bus.ReadByte(addr)
		return int64(v), err
	case 2:
		v, err := e.bus.ReadWord(addr)
		return int64(v), err
	case 4:
		v, err := e.bus.ReadDWord(addr)
		return int64(v), err
	default:
		return 0, errors.Errorf("unsupported opbyte %d", e.opbyte)
	}
}

func (e *EU) writeMem(addr int, val int64) error {
	switch e.opbyte {
	case 1:
		return e.bus.WriteByte(addr, uint8(val))
	case 2:
		return e.bus.WriteWord(addr, uint16(val))
	case 4:
		return e.bus.WriteDWord(addr, uint32(val))
	default:
		return errors.Errorf("unsupported opbyte %d", e.opbyte)
	}
}

// putInt writes a value to whatever an operand token denotes: a register or
// a memory location. Immediate/label destinations are a decode error.
func (e *EU) putInt(tok string, val int64) error {
	op, err := e.operand(tok)
	if err != nil {
		return err
	}
	switch v := op.(type) {
	case RegOperand:
		e.writeReg(v.Name, e.maskToUnsigned(val))
		return nil
	case MemOperand:
		return e.writeMem(e.address(v), val)
	default:
		return errors.Wrapf(ErrBadOperand, "cannot write to operand %q", tok)
	}
}

// maskToUnsigned truncates val to the current opbyte's bit width.
func (e *EU) maskToUnsigned(val int64) uint16 {
	switch e.opbyte {
	case 1:
		return uint16(val) & 0xFF
	case 4:
		return uint16(val) & 0xFFFF
	default:
		return uint16(val) & 0xFFFF
	}
}

func (e *EU) mask() int64 {
	switch e.opbyte {
	case 1:
		return 0xFF
	case 4:
		return 0xFFFFFFFF
	default:
		return 0xFFFF
	}
}

func (e *EU) signBit() uint {
	return uint(e.opbyte*8 - 1)
}

func (e *EU) toSigned(num int64) int64 {
	bits := uint(e.opbyte * 8)
	num &= (int64(1) << bits) - 1
	signMask := int64(1) << (bits - 1)
	if num&signMask != 0 {
		return num - (int64(1) << bits)
	}
	return num
}

func (e *EU) toUnsigned(num int64) int64 {
	return num & e.mask()
}

func (e *EU) isOverflowingAdd(result int64) bool {
	bits := uint(e.opbyte * 8)
	low := -(int64(1) << (bits - 1))
	high := (int64(1) << (bits - 1)) - 1
	return result > high || result < low
}

func popcount(v int64) int {
	cnt := 0
	for v > 0 {
		cnt++
		v &= v - 1
	}
	return cnt
}

func (e *EU) setPF(result int64) {
	e.FR.Parity = popcount(result&0xFF)%2 == 0
}

func (e *EU) setOF(result int64) {
	e.FR.Overflow = e.isOverflowingAdd(result)
}

func (e *EU) setSF(result int64) {
	e.FR.Sign = e.toSigned(result&e.mask()) < 0
}

func (e *EU) setZF(result int64) {
	e.FR.Zero = (result & e.mask()) == 0
}

func (e *EU) setCF(cond bool) {
	e.FR.Carry = cond
}

// controlCircuit dispatches to one of the ten instruction-class handlers,
// then flushes the prefetch queue if CS:IP changed underneath it (a CALL,
// JMP, interrupt, or branch taken).
func (e *EU) controlCircuit() error {
	e.trace.Trace("exec %s %v", e.opcode, e.opd)

	var err error
	switch {
	case dataTransferInstr[e.opcode]:
		err = e.dataTransferIns()
	case arithmeticInstr[e.opcode]:
		err = e.arithmeticIns()
	case logicalInstr[e.opcode]:
		err = e.logicalIns()
	case rotateShiftInstr[e.opcode]:
		err = e.rotateShiftIns()
	case transferControlInstr[e.opcode]:
		err = e.transferControlIns()
	case stringManipulationInstr[e.opcode]:
		err = e.stringManipulationIns()
	case flagManipulationInstr[e.opcode]:
		err = e.flagManipulationIns()
	case stackRelatedInstr[e.opcode]:
		err = e.stackRelatedIns()
	case inputOutputInstr[e.opcode]:
		err = e.inputOutputIns()
	case miscellaneousInstr[e.opcode]:
		err = e.miscellaneousIns()
	default:
		err = errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
	return err
}

// dataTransferIns covers MOV, XCHG, LEA, LDS, LES.
func (e *EU) dataTransferIns() error {
	switch e.opcode {
	case "MOV":
		v, err := e.getInt(e.opd[1])
		if err != nil {
			return err
		}
		return e.putInt(e.opd[0], v)

	case "XCHG":
		v1, err := e.getInt(e.opd[0])
		if err != nil {
			return err
		}
		v2, err := e.getInt(e.opd[1])
		if err != nil {
			return err
		}
		if err := e.putInt(e.opd[0], v2); err != nil {
			return err
		}
		return e.putInt(e.opd[1], v1)

	case "LEA":
		op, err := e.operand(e.opd[1])
		if err != nil {
			return err
		}
		mem, ok := op.(MemOperand)
		if !ok {
			return errors.Wrapf(ErrBadOperand, "LEA requires a memory operand, got %q", e.opd[1])
		}
		return e.putInt(e.opd[0], int64(e.offset(mem)))

	case "LDS", "LES":
		op, err := e.operand(e.opd[1])
		if err != nil {
			return err
		}
		mem, ok := op.(MemOperand)
		if !ok {
			return errors.Wrapf(ErrBadOperand, "%s requires a memory operand, got %q", e.opcode, e.opd[1])
		}
		addr := e.address(mem)
		lo, err := e.readMem(addr)
		if err != nil {
			return err
		}
		e.writeReg(regOperandName(e.opd[0]), uint16(lo))
		hi, err := e.readMem(addr + 2)
		if err != nil {
			return err
		}
		if e.opcode == "LDS" {
			e.writeReg("DS", uint16(hi))
		} else {
			e.writeReg("ES", uint16(hi))
		}
		return nil

	default:
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
}

func regOperandName(tok string) string {
	return strings.ToUpper(strings.TrimSpace(tok))
}

type discardConsole struct{}

func (discardConsole) ReadByte() (byte, error)     { return 0, nil }
func (discardConsole) ReadLine() (string, error)   { return "", nil }
func (discardConsole) WriteByte(byte) error        { return nil }
func (discardConsole) WriteString(string) error    { return nil }
func (discardConsole) InPort(uint16) (uint16, error) { return 0, nil }
func (discardConsole) OutPort(uint16, uint16) error  { return nil }
