package machine

// Instruction-class membership tables, ported directly from
// original_source/emulator/instructions.py. The EU's control circuit
// dispatches on these same groupings (see eu.go), and the assembler's
// symbol-resolution pass (resolve.go) uses transferControlInstr to decide
// which instructions carry label operands.

func classSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var dataTransferInstr = classSet("MOV", "XCHG", "LEA", "LDS", "LES")

var arithmeticInstr = classSet(
	"ADD", "ADC", "SUB", "SBB", "INC", "DEC", "MUL", "IMUL", "DIV", "IDIV", "CBW", "CWD",
)

var logicalInstr = classSet("AND", "OR", "XOR", "NOT", "NEG", "CMP", "TEST")

var rotateShiftInstr = classSet("RCL", "RCR", "ROL", "ROR", "SAL", "SHL", "SAR", "SHR")

var transferControlInstr = classSet(
	"LOOP", "LOOPE", "LOOPNE", "LOOPNZ", "LOOPZ", "CALL", "RET", "RETF", "JMP",
	"JA", "JAE", "JB", "JBE", "JC", "JCXZ", "JE", "JG", "JGE", "JL", "JLE",
	"JNA", "JNAE", "JNB", "JNBE", "JNC", "JNE", "JNG", "JNGE", "JNL", "JNLE",
	"JNO", "JNP", "JNS", "JNZ", "JO", "JP", "JPE", "JPO", "JS", "JZ",
)

var stringManipulationInstr = classSet(
	"MOVSB", "MOVSW", "CMPSB", "CMPSW", "LODSB", "LODSW", "STOSB", "STOSW",
	"SCASB", "SCASW", "REP", "REPE", "REPZ", "REPNE", "REPNZ",
)

var flagManipulationInstr = classSet(
	"STC", "CLC", "CMC", "STD", "CLD", "STI", "CLI", "LAHF", "SAHF", "LANF", "SANF",
)

var stackRelatedInstr = classSet("PUSH", "POP", "PUSHF", "POPF")

var inputOutputInstr = classSet("IN", "OUT")

var miscellaneousInstr = classSet(
	"NOP", "INT", "IRET", "XLAT", "HLT", "ESC", "INTO", "LOCK", "WAIT",
)

// conditionalJumpInstr is the subset of transferControlInstr whose branch
// decision depends on flags (as opposed to JMP/CALL/RET/LOOP*).
var conditionalJumpInstr = classSet(
	"JA", "JAE", "JB", "JBE", "JC", "JCXZ", "JE", "JG", "JGE", "JL", "JLE",
	"JNA", "JNAE", "JNB", "JNBE", "JNC", "JNE", "JNG", "JNGE", "JNL", "JNLE",
	"JNO", "JNP", "JNS", "JNZ", "JO", "JP", "JPE", "JPO", "JS", "JZ",
)
