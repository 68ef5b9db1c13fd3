// Package mach models the target machine: the MC68000 data-register file,
// the calling convention, and a symbolic instruction set. Instructions stay
// symbolic (mnemonic plus operands); binary encoding belongs to the
// external assembler.
package mach

type (
	// Reg is a data register. D0..D7 are physical; negative values encode
	// virtual registers until allocation replaces them.
	Reg int

	// Label identifies a basic block. Numerically equal to the IR label.
	Label int

	// CC is a condition code mnemonic suffix (EQ, NE, LT, GT, LE, GE).
	CC string

	// Src is the source operand of a two-address instruction: a data
	// register or a frame slot.
	Src struct {
		Reg  Reg
		Slot int
		Mem  bool
	}

	// Config is the immutable target configuration threaded through the
	// passes.
	Config struct {
		// Regs is how many data registers the allocator may use,
		// counting from D0.
		Regs int

		// CalleeSaved is the first data register preserved across calls.
		CalleeSaved Reg

		ArgRegs []Reg
		RetReg  Reg
	}

	Instr any // one of the types below

	MOVE struct {
		Src Src
		Dst Reg
	}

	// STORE is MOVE.L Dn, d(A6): a register spilled to its frame slot.
	STORE struct {
		Src  Reg
		Slot int
	}

	MOVEQ struct {
		Imm int64 // -128..127
		Dst Reg
	}

	MOVEI struct {
		Imm int64
		Dst Reg
	}

	ADD struct {
		Src Src
		Dst Reg
	}

	ADDQ struct {
		Imm int64 // 1..8
		Dst Reg
	}

	ADDI struct {
		Imm int64
		Dst Reg
	}

	SUB struct {
		Src Src
		Dst Reg
	}

	SUBQ struct {
		Imm int64 // 1..8
		Dst Reg
	}

	SUBI struct {
		Imm int64
		Dst Reg
	}

	MULS struct {
		Src Src
		Dst Reg
	}

	MULSI struct {
		Imm int64
		Dst Reg
	}

	AND struct {
		Src Src
		Dst Reg
	}

	ANDI struct {
		Imm int64
		Dst Reg
	}

	OR struct {
		Src Src
		Dst Reg
	}

	ORI struct {
		Imm int64
		Dst Reg
	}

	ASL struct {
		Count int // 1..8
		Dst   Reg
	}

	// CMP sets the condition codes from Dst - Src.
	CMP struct {
		Src Src
		Dst Reg
	}

	CMPI struct {
		Imm int64
		Dst Reg
	}

	TST struct {
		Reg Reg
	}

	// SCC writes 1 to Dst when CC holds, 0 otherwise.
	SCC struct {
		CC  CC
		Dst Reg
	}

	BCC struct {
		CC    CC
		Label Label
		Addr  int // resolved by lowering, -1 before
	}

	BRA struct {
		Label Label
		Addr  int
	}

	JSR struct {
		Target string
	}

	// RET marks the function result before lowering expands the epilogue.
	RET struct {
		Src Reg // NoReg for void
	}

	LINK struct {
		Frame int // spill frame bytes
	}

	// MOVEM saves (or restores) a register set over the stack. Lowering
	// emits a pair around the function body for the callee-saved
	// registers the body writes.
	MOVEM struct {
		Regs    []Reg
		Restore bool
	}

	UNLK struct{}

	RTS struct{}

	// Span is a half-open instruction index range within a block.
	Span struct {
		Lo, Hi int
	}

	// Block is one basic block of selected code. Calls lists the
	// instruction ranges forming call sequences (argument moves through
	// result move), which the allocator must not split across
	// caller-saved registers.
	Block struct {
		Label Label
		Code  []Instr

		Calls []Span
	}

	// Func is the final lowered form: a flat instruction stream with
	// resolved branch targets.
	Func struct {
		Name  string
		Frame int

		Code []Instr

		// Addrs maps every emitted block label to its instruction
		// address within Code.
		Addrs map[Label]int

		// Dead lists blocks flagged unreachable and not emitted.
		Dead []Label
	}

	Program struct {
		Path  string
		Funcs []*Func
	}
)

const (
	D0 Reg = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7

	NumRegs = 8
)

const NoReg Reg = -1 << 30 // outside the virtual encoding

// V encodes virtual register n.
func V(n int) Reg { return Reg(-1 - n) }

func (r Reg) IsVirt() bool { return r < 0 && r != NoReg }
func (r Reg) Virt() int    { return int(-1 - r) }

// RS is a register source operand.
func RS(r Reg) Src { return Src{Reg: r} }

// MS is a frame-slot source operand.
func MS(slot int) Src { return Src{Slot: slot, Mem: true} }

// SlotSize is the width of one spill slot: every value is a longword.
const SlotSize = 4

// FrameOffset is the A6-relative offset of a spill slot.
func FrameOffset(slot int) int { return -SlotSize * (slot + 1) }

// Default is the NeXTSTEP m68k convention used by the core: first two
// arguments and the result in the scratch registers D0/D1, D2..D7
// preserved across calls.
func Default() Config {
	return Config{
		Regs:        NumRegs,
		CalleeSaved: D2,
		ArgRegs:     []Reg{D0, D1},
		RetReg:      D0,
	}
}

func (c CC) Neg() CC {
	switch c {
	case "EQ":
		return "NE"
	case "NE":
		return "EQ"
	case "LT":
		return "GE"
	case "GE":
		return "LT"
	case "GT":
		return "LE"
	case "LE":
		return "GT"
	default:
		panic(c)
	}
}
