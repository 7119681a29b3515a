package bytecode

// Op is the primary opcode of an instruction. Its high nibble carries flag
// bits that tell the decoder how to interpret the 4-byte operand.
type Op uint8

// Flag bits classify an Op.
const (
	OpFlagApply    Op = 1 << 4 // instruction performs an application
	OpFlagOffset   Op = 1 << 5 // operand is a 32-bit offset, not a token pair
	OpFlagExtended Op = 1 << 6 // opcode_ex selects a sub-opcode
	OpFlagInternal Op = 1 << 7 // synthesized stub, never emitted by codegen directly
)

const (
	// OpApp applies two operand tokens; either may be the zero-kind
	// "use the accumulator" sentinel.
	OpApp Op = OpFlagApply | iota
	// OpLa pops the stack and applies the popped value to the accumulator.
	OpLa
)

const (
	// OpSa pushes the accumulator. An accumulator holding `d` is pushed
	// like any other value; sa starts no delay.
	OpSa Op = OpFlagOffset | iota
	// OpDel stores a d1_d promise in the accumulator and jumps past the
	// delayed expression.
	OpDel
)

// OpLc loads a constant into the accumulator; its only sub-opcode prints a
// rodata string.
const OpLc = OpFlagOffset | OpFlagExtended

// OpXch exchanges the accumulator with the element one below the stack
// top. It has no case for an accumulator holding `d`: no d1_s promise is
// built.
const OpXch = OpFlagInternal

// Sub-opcodes selected when Op.IsExtended is set.
const (
	OpExZero Op = iota
	OpExPrint
)

func (o Op) IsApply() bool    { return o&OpFlagApply != 0 }
func (o Op) IsOffset() bool   { return o&OpFlagOffset != 0 }
func (o Op) IsExtended() bool { return o&OpFlagExtended != 0 }
func (o Op) IsInternal() bool { return o&OpFlagInternal != 0 }

func (o Op) String() string {
	switch o {
	case OpApp:
		return "app"
	case OpLa:
		return "la"
	case OpSa:
		return "sa"
	case OpDel:
		return "del"
	case OpLc:
		return "lc"
	case OpXch:
		return "xch"
	default:
		return "<invalid-op>"
	}
}

// Instr is one fixed-size bytecode instruction. The operand is a tagged
// union: for OFFSET opcodes (sa/del/lc) Offset is valid; for all others
// First/Second (the application's operand tokens) are valid.
type Instr struct {
	Op     Op
	OpEx   Op
	First  Token
	Second Token
	Offset int32
}

// InstrSize is the on-disk and in-memory size of one instruction, in bytes:
// opcode(1) + opcode_ex(1) + reserved(2) + operand(4).
const InstrSize = 8

// App builds an `app` instruction. A zero Fn on either side means "use the
// accumulator".
func App(first, second Token) Instr {
	return Instr{Op: OpApp, First: first, Second: second}
}

// La builds an `la` instruction.
func La() Instr { return Instr{Op: OpLa} }

// Sa builds an `sa` instruction.
func Sa() Instr { return Instr{Op: OpSa} }

// Del builds a `del` instruction with a not-yet-backpatched offset.
func Del(offset int32) Instr { return Instr{Op: OpDel, Offset: offset} }

// Print builds an `lc`/print instruction loading the rodata string at offset.
func Print(offset int32) Instr { return Instr{Op: OpLc, OpEx: OpExPrint, Offset: offset} }

// Xch builds an `xch` instruction.
func Xch() Instr { return Instr{Op: OpXch} }
