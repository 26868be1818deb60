package machine

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// pushWord/popWord implement the stack push/pop primitive independent of the
// current instruction's derived opbyte: CS, IP, and the flag word are always
// 16 bits wide regardless of what width the user instruction that triggered
// a CALL/interrupt happened to decode to.
func (e *EU) pushWord(v uint16) error {
	e.incReg("SP", -2)
	return e.bus.WriteWord(e.ssSP(), v)
}

func (e *EU) popWord() (uint16, error) {
	v, err := e.bus.ReadWord(e.ssSP())
	if err != nil {
		return 0, err
	}
	e.incReg("SP", 2)
	return v, nil
}

// stackRelatedIns covers PUSH, POP, PUSHF, POPF.
func (e *EU) stackRelatedIns() error {
	switch e.opcode {
	case "PUSH":
		v, err := e.getInt(e.opd[0])
		if err != nil {
			return err
		}
		return e.pushWord(uint16(v))

	case "POP":
		v, err := e.popWord()
		if err != nil {
			return err
		}
		op, err := e.operand(e.opd[0])
		if err != nil {
			return err
		}
		switch dst := op.(type) {
		case MemOperand:
			return e.writeMem(e.address(dst), int64(v))
		case RegOperand:
			e.writeReg(dst.Name, v)
			return nil
		default:
			return errors.Wrapf(ErrBadOperand, "POP requires a register or memory destination, got %q", e.opd[0])
		}

	case "PUSHF":
		return e.pushWord(e.FR.Pack())

	case "POPF":
		v, err := e.popWord()
		if err != nil {
			return err
		}
		e.FR.Unpack(v)
		return nil

	default:
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
}

// transferControlIns covers JMP, LOOP family, CALL, RET, RETF, and the
// conditional jumps.
//
// CALL's far-vs-near decision is made from the parsed operand type rather
// than the source's "':' in self.opcode[0]" check, which tested the first
// character of the literal string "CALL" and could never be true.
func (e *EU) transferControlIns() error {
	switch e.opcode {
	case "JMP":
		return e.doJump(e.opd[0])

	case "LOOP":
		e.incReg("CX", -1)
		if e.CX != 0 {
			return e.doJump(e.opd[0])
		}
		return nil

	case "LOOPE", "LOOPZ":
		e.incReg("CX", -1)
		if e.CX != 0 && e.FR.Zero {
			return e.doJump(e.opd[0])
		}
		return nil

	case "LOOPNE", "LOOPNZ":
		e.incReg("CX", -1)
		if e.CX != 0 && !e.FR.Zero {
			return e.doJump(e.opd[0])
		}
		return nil

	case "CALL":
		op, err := e.operand(e.opd[0])
		if err != nil {
			return err
		}
		_, isFar := op.(FarOperand)
		isFar = isFar || e.opbyte == 4
		if isFar {
			if err := e.pushWord(e.bus.CS); err != nil {
				return err
			}
		}
		if err := e.pushWord(e.bus.IP); err != nil {
			return err
		}
		return e.doJump(e.opd[0])

	case "RET":
		ip, err := e.popWord()
		if err != nil {
			return err
		}
		e.writeReg("IP", ip)
		return nil

	case "RETF":
		ip, err := e.popWord()
		if err != nil {
			return err
		}
		e.writeReg("IP", ip)
		cs, err := e.popWord()
		if err != nil {
			return err
		}
		e.writeReg("CS", cs)
		return nil

	default:
		if conditionalJumpInstr[e.opcode] {
			if e.jumpCondition(e.opcode) {
				return e.doJump(e.opd[0])
			}
			return nil
		}
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
}

// doJump handles the three jump-target shapes: indirect through memory
// (word near, or far when opbyte is 4), an explicit "SEGREG:OFFSET" far
// pointer, or a plain near offset.
func (e *EU) doJump(tok string) error {
	op, err := e.operand(tok)
	if err != nil {
		return err
	}
	switch v := op.(type) {
	case MemOperand:
		addr := e.address(v)
		if e.opbyte == 4 {
			e.opbyte = 2
			hi, err := e.readMem(addr + 2)
			if err != nil {
				return err
			}
			e.writeReg("CS", uint16(hi))
		}
		lo, err := e.readMem(addr)
		if err != nil {
			return err
		}
		e.writeReg("IP", uint16(lo))
		return nil

	case FarOperand:
		if v.SegReg != "" {
			e.writeReg("CS", e.readReg(v.SegReg))
		} else {
			e.writeReg("CS", uint16(v.Seg))
		}
		e.writeReg("IP", uint16(v.Offset))
		return nil

	default:
		off, err := e.getInt(tok)
		if err != nil {
			return err
		}
		e.writeReg("IP", uint16(off))
		return nil
	}
}

func (e *EU) jumpCondition(mnemonic string) bool {
	cf, zf, sf, of, pf := e.FR.Carry, e.FR.Zero, e.FR.Sign, e.FR.Overflow, e.FR.Parity
	switch mnemonic {
	case "JA", "JNBE":
		return !cf && !zf
	case "JAE", "JNB", "JNC":
		return !cf
	case "JB", "JNAE", "JC":
		return cf
	case "JBE", "JNA":
		return cf || zf
	case "JCXZ":
		return e.CX == 0
	case "JE", "JZ":
		return zf
	case "JG", "JNLE":
		return !zf && sf == of
	case "JGE", "JNL":
		return sf == of
	case "JL", "JNGE":
		return sf != of
	case "JLE", "JNG":
		return sf != of || zf
	case "JNE", "JNZ":
		return !zf
	case "JNO":
		return !of
	case "JNP", "JPO":
		return !pf
	case "JNS":
		return !sf
	case "JO":
		return of
	case "JP", "JPE":
		return pf
	case "JS":
		return sf
	default:
		return false
	}
}

// stringManipulationIns covers MOVSB/W, CMPSB/W, LODSB/W, STOSB/W, SCASB/W,
// and the REP/REPE/REPZ/REPNE/REPNZ prefixes.
func (e *EU) stringManipulationIns() error {
	step := 1
	if e.opbyte == 2 {
		step = 2
	}
	if e.FR.Direction {
		step = -step
	}

	switch e.opcode {
	case "MOVSB", "MOVSW":
		src := int(e.bus.DS)*16 + int(e.SI)
		dst := int(e.bus.ES)*16 + int(e.DI)
		v, err := e.readMem(src)
		if err != nil {
			return err
		}
		if err := e.writeMem(dst, v); err != nil {
			return err
		}
		e.incReg("SI", step)
		e.incReg("DI", step)
		return nil

	case "CMPSB", "CMPSW":
		src := int(e.bus.DS)*16 + int(e.SI)
		dst := int(e.bus.ES)*16 + int(e.DI)
		res1, err := e.readMem(src)
		if err != nil {
			return err
		}
		res2, err := e.readMem(dst)
		if err != nil {
			return err
		}
		e.compareResult(res1, res2)
		e.incReg("SI", step)
		e.incReg("DI", step)
		return nil

	case "LODSB", "LODSW":
		src := int(e.bus.DS)*16 + int(e.SI)
		v, err := e.readMem(src)
		if err != nil {
			return err
		}
		if e.opbyte == 1 {
			e.writeReg("AL", uint16(v))
		} else {
			e.writeReg("AX", uint16(v))
		}
		e.incReg("SI", step)
		return nil

	case "STOSB", "STOSW":
		dst := int(e.bus.ES)*16 + int(e.DI)
		var v int64
		if e.opbyte == 1 {
			v = int64(e.readReg("AL"))
		} else {
			v = int64(e.readReg("AX"))
		}
		if err := e.writeMem(dst, v); err != nil {
			return err
		}
		e.incReg("DI", step)
		return nil

	case "SCASB", "SCASW":
		dst := int(e.bus.ES)*16 + int(e.DI)
		var res1 int64
		if e.opbyte == 1 {
			res1 = int64(e.readReg("AL"))
		} else {
			res1 = int64(e.readReg("AX"))
		}
		res2, err := e.readMem(dst)
		if err != nil {
			return err
		}
		e.compareResult(res1, res2)
		e.incReg("DI", step)
		return nil

	case "REP", "REPE", "REPZ", "REPNE", "REPNZ":
		return e.repeat(e.opcode)

	default:
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
}

func (e *EU) compareResult(res1, res2 int64) {
	result := (res1 - res2) & e.mask()
	e.setOF(res1 - res2)
	e.setCF(e.toUnsigned(res1) < e.toUnsigned(res2))
	e.setPF(result)
	e.setZF(result)
	e.setSF(result)
}

func (e *EU) repeat(prefix string) error {
	if len(e.opd) == 0 {
		return errors.Wrapf(ErrBadOperand, "%s requires a repeated opcode", prefix)
	}
	e.opcode = e.opd[0]
	if len(e.opd) > 1 {
		e.opd = e.opd[1:]
	} else {
		e.opd = nil
	}
	e.getOpbyte()

	for e.readReg("CX") != 0 {
		if err := e.controlCircuit(); err != nil {
			return err
		}
		e.writeReg("CX", e.readReg("CX")-1)
		switch prefix {
		case "REPE", "REPZ":
			if !e.FR.Zero {
				return nil
			}
		case "REPNE", "REPNZ":
			if e.FR.Zero {
				return nil
			}
		}
	}
	return nil
}

// flagManipulationIns covers STC, CLC, CMC, STD, CLD, STI, CLI, LAHF/SAHF
// (the source's LANF/SANF spelling is kept as an accepted synonym).
func (e *EU) flagManipulationIns() error {
	switch e.opcode {
	case "STC":
		e.FR.Carry = true
	case "CLC":
		e.FR.Carry = false
	case "CMC":
		e.FR.Carry = !e.FR.Carry
	case "STD":
		e.FR.Direction = true
	case "CLD":
		e.FR.Direction = false
	case "STI":
		e.FR.Interrupt = true
	case "CLI":
		e.FR.Interrupt = false
	case "LAHF", "LANF":
		e.writeReg("AH", uint16(e.FR.PackLow()))
	case "SAHF", "SANF":
		e.FR.UnpackLow(uint8(e.readReg("AH")))
	default:
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
	return nil
}

// inputOutputIns covers IN and OUT, backed by the installed ConsoleDevice.
func (e *EU) inputOutputIns() error {
	switch e.opcode {
	case "IN":
		port, err := e.getInt(e.opd[1])
		if err != nil {
			return err
		}
		val, err := e.console.InPort(uint16(port))
		if err != nil {
			return err
		}
		return e.putInt(e.opd[0], int64(val))

	case "OUT":
		port, err := e.getInt(e.opd[0])
		if err != nil {
			return err
		}
		val, err := e.getInt(e.opd[1])
		if err != nil {
			return err
		}
		return e.console.OutPort(uint16(port), uint16(val))

	default:
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
}

// interruptHandler performs the common interrupt-entry sequence: push
// flags, clear TF and IF, push CS, push IP, then load CS:IP from the
// interrupt vector table entry at physical address intType*4.
func (e *EU) interruptHandler(intType int) error {
	if err := e.pushWord(e.FR.Pack()); err != nil {
		return err
	}
	e.FR.Trap = false
	e.FR.Interrupt = false
	if err := e.pushWord(e.bus.CS); err != nil {
		return err
	}
	if err := e.pushWord(e.bus.IP); err != nil {
		return err
	}

	ivtAddr := intType * 4
	ip, err := e.bus.ReadWord(ivtAddr)
	if err != nil {
		return err
	}
	cs, err := e.bus.ReadWord(ivtAddr + 2)
	if err != nil {
		return err
	}
	e.writeReg("IP", ip)
	e.writeReg("CS", cs)

	if e.traceEnabled {
		e.trace.Trace("interrupt 0x%x: vector -> CS=0x%04x IP=0x%04x", intType, cs, ip)
	}
	return nil
}

// miscellaneousIns covers NOP, INT, IRET, XLAT, HLT, ESC, INTO, LOCK, WAIT.
func (e *EU) miscellaneousIns() error {
	switch e.opcode {
	case "NOP", "XLAT", "ESC", "LOCK", "WAIT":
		return nil

	case "HLT":
		e.shutdown = true
		return nil

	case "INT":
		if len(e.opd) == 0 {
			e.interrupt = true
			return nil
		}
		intType, err := ParseNumericLiteral(e.opd[0])
		if err != nil {
			return err
		}
		switch intType {
		case 3:
			e.interrupt = true
			return nil
		case 0x10:
			return e.biosISR10h()
		case 0x21:
			return e.dosISR21h()
		case 0x7C:
			return e.interruptHandler(0x7C)
		default:
			return newRuntimeError(KindDecode, e.opcode, e.opd, ErrUnknownInterrupt)
		}

	case "IRET":
		ip, err := e.popWord()
		if err != nil {
			return err
		}
		e.writeReg("IP", ip)
		cs, err := e.popWord()
		if err != nil {
			return err
		}
		e.writeReg("CS", cs)
		flags, err := e.popWord()
		if err != nil {
			return err
		}
		e.FR.Unpack(flags)
		return nil

	case "INTO":
		if e.FR.Overflow {
			return e.interruptHandler(4)
		}
		return nil

	default:
		return errors.Wrapf(ErrUnknownMnemonic, "%q", e.opcode)
	}
}

// biosISR10h implements the one BIOS teletype service SPEC_FULL.md keeps
// (AH=0x0E, write character to the console and advance nothing else — no
// video memory or cursor state is modeled).
func (e *EU) biosISR10h() error {
	ah := e.readReg("AH")
	if ah == 0x0E {
		return e.console.WriteByte(byte(e.readReg("AL")))
	}
	return nil
}

// dosISR21h implements the subset of INT 21h services SPEC_FULL.md names:
// 0x00 reset/exit, 0x01 read character, 0x02 write character, 0x09 write
// $-terminated string, 0x2A get date, 0x2C get time, 0x35 get interrupt
// vector, 0x4C exit with code.
func (e *EU) dosISR21h() error {
	ah := e.readReg("AH")
	al := e.readReg("AL")
	if e.traceEnabled {
		e.trace.Trace("DOS interrupt 21h, AH=0x%x", ah)
	}

	switch ah {
	case 0x00:
		e.shutdown = true
		return nil

	case 0x01:
		b, err := e.console.ReadByte()
		if err != nil {
			return err
		}
		e.writeReg("AL", uint16(b))
		return nil

	case 0x02:
		return e.console.WriteByte(byte(e.readReg("DL")))

	case 0x09:
		addr := int(e.readReg("DS"))*16 + int(e.readReg("DX"))
		var sb strings.Builder
		for count := 0; count < 500; count++ {
			b, err := e.bus.ReadByte(addr)
			if err != nil {
				return err
			}
			if b == '$' {
				break
			}
			sb.WriteByte(b)
			addr++
		}
		return e.console.WriteString(sb.String())

	case 0x2A:
		now := time.Now()
		e.writeReg("CX", uint16(now.Year()))
		e.writeReg("DH", uint16(now.Month()))
		e.writeReg("DL", uint16(now.Day()))
		return nil

	case 0x2C:
		now := time.Now()
		e.writeReg("CH", uint16(now.Hour()))
		e.writeReg("CL", uint16(now.Minute()))
		e.writeReg("DH", uint16(now.Second()))
		e.writeReg("DL", uint16(now.Nanosecond()/10000000))
		return nil

	case 0x35:
		intType := int(al)
		ip, err := e.bus.ReadWord(intType * 4)
		if err != nil {
			return err
		}
		cs, err := e.bus.ReadWord(intType*4 + 2)
		if err != nil {
			return err
		}
		e.writeReg("BX", ip)
		e.writeReg("ES", cs)
		return nil

	case 0x4C:
		e.exitCode = int(al)
		e.shutdown = true
		return nil

	default:
		return errors.Wrapf(ErrUnknownMnemonic, "INT 21h AH=0x%x", ah)
	}
}
