package machine

import "github.com/pkg/errors"

// Kind identifies one of the error categories the emulator can raise.
type Kind int

const (
	KindAssembly Kind = iota
	KindAddress
	KindDecode
	KindArithmeticTrap
	KindUserInterrupt
)

func (k Kind) String() string {
	switch k {
	case KindAssembly:
		return "assembly error"
	case KindAddress:
		return "address error"
	case KindDecode:
		return "decode error"
	case KindArithmeticTrap:
		return "arithmetic trap"
	case KindUserInterrupt:
		return "user interrupt"
	default:
		return "unknown error"
	}
}

// AssembleError reports a problem found while assembling source text. Line is
// the 1-based source line the error was attributed to, or 0 when no specific
// line applies (e.g. a missing ENDS discovered at end of input).
type AssembleError struct {
	Line    int
	Context string
	Cause   error
}

func (e *AssembleError) Error() string {
	if e.Line > 0 {
		return errors.Wrapf(e.Cause, "line %d: %s", e.Line, e.Context).Error()
	}
	return errors.Wrap(e.Cause, e.Context).Error()
}

func (e *AssembleError) Unwrap() error { return e.Cause }

func newAssembleError(line int, context string, cause error) *AssembleError {
	return &AssembleError{Line: line, Context: context, Cause: cause}
}

// RuntimeError reports a problem encountered while a program is executing.
type RuntimeError struct {
	Kind     Kind
	Opcode   string
	Operands []string
	Cause    error
}

func (e *RuntimeError) Error() string {
	if e.Opcode != "" {
		return errors.Wrapf(e.Cause, "%s: %s %v", e.Kind, e.Opcode, e.Operands).Error()
	}
	return errors.Wrap(e.Cause, e.Kind.String()).Error()
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

func newRuntimeError(kind Kind, opcode string, operands []string, cause error) *RuntimeError {
	return &RuntimeError{Kind: kind, Opcode: opcode, Operands: operands, Cause: cause}
}

var (
	// ErrAddressRange is wrapped by RuntimeError/AssembleError whenever an
	// address falls outside [0, 2^20).
	ErrAddressRange = errors.New("address out of range")
	// ErrUnknownMnemonic is raised by the EU decoder for an unrecognized opcode.
	ErrUnknownMnemonic = errors.New("unknown mnemonic")
	// ErrBadOperand is raised when operand text cannot be parsed into an Operand.
	ErrBadOperand = errors.New("malformed operand")
	// ErrAlignNotPowerOfTwo is raised by ALIGN with a non-power-of-2 argument.
	ErrAlignNotPowerOfTwo = errors.New("ALIGN argument must be a power of 2")
	// ErrUnterminatedSegment is raised when a SEGMENT has no matching ENDS.
	ErrUnterminatedSegment = errors.New("segment missing matching ENDS")
	// ErrUnknownSymbol is raised when a label/variable reference cannot be resolved.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUnknownInterrupt is raised by INT for a vector outside the supported
	// set (3, 0x10, 0x21, 0x7C): original_source's execution_unit.py treats
	// any other vector as fatal ("Interrupt Type Error"), not a dispatchable one.
	ErrUnknownInterrupt = errors.New("unsupported interrupt vector")
)
