package mach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVirtEncoding(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100} {
		r := V(n)

		assert.True(t, r.IsVirt())
		assert.Equal(t, n, r.Virt())
	}

	assert.False(t, D0.IsVirt())
	assert.False(t, D7.IsVirt())
	assert.False(t, NoReg.IsVirt())
}

func TestFrameOffset(t *testing.T) {
	assert.Equal(t, -4, FrameOffset(0))
	assert.Equal(t, -12, FrameOffset(2))
}

func TestFormat(t *testing.T) {
	for _, tc := range []struct {
		x    Instr
		want string
	}{
		{MOVE{Src: RS(D1), Dst: D0}, "MOVE.L\tD1, D0"},
		{MOVE{Src: MS(0), Dst: D3}, "MOVE.L\t-4(A6), D3"},
		{STORE{Src: D2, Slot: 1}, "MOVE.L\tD2, -8(A6)"},
		{MOVEQ{Imm: -5, Dst: D0}, "MOVEQ\t#-5, D0"},
		{MOVEI{Imm: 100000, Dst: D1}, "MOVE.L\t#100000, D1"},
		{ADDQ{Imm: 2, Dst: D0}, "ADDQ.L\t#2, D0"},
		{ADD{Src: MS(1), Dst: D4}, "ADD.L\t-8(A6), D4"},
		{ASL{Count: 3, Dst: D0}, "ASL.L\t#3, D0"},
		{MULS{Src: RS(D2), Dst: D1}, "MULS.W\tD2, D1"},
		{CMPI{Imm: 20, Dst: D0}, "CMPI.L\t#20, D0"},
		{TST{Reg: D5}, "TST.L\tD5"},
		{SCC{CC: "GT", Dst: D0}, "SGT\tD0"},
		{BCC{CC: "NE", Label: 2, Addr: -1}, "BNE\tL2"},
		{BCC{CC: "GT", Label: 1, Addr: 7}, "BGT\tL1 ; @7"},
		{BRA{Label: 0, Addr: 0}, "BRA\tL0 ; @0"},
		{JSR{Target: "add_test"}, "JSR\t_add_test"},
		{LINK{Frame: 8}, "LINK\tA6, #-8"},
		{UNLK{}, "UNLK\tA6"},
		{RTS{}, "RTS"},
	} {
		assert.Equal(t, tc.want, Format(tc.x))
	}
}

func TestUsesDef(t *testing.T) {
	uses := func(x Instr) (r []Reg) {
		Uses(x, func(u Reg) { r = append(r, u) })
		return r
	}

	// two-address arithmetic reads its destination
	assert.Equal(t, []Reg{D1, D0}, uses(ADD{Src: RS(D1), Dst: D0}))
	assert.Equal(t, []Reg{D3}, uses(ADDQ{Imm: 1, Dst: D3}))

	// compares read only
	assert.Equal(t, []Reg{D1, D0}, uses(CMP{Src: RS(D1), Dst: D0}))

	if _, ok := Def(CMP{Src: RS(D1), Dst: D0}); ok {
		t.Errorf("CMP must not define")
	}

	// memory source operands read no register
	assert.Equal(t, []Reg(nil), uses(MOVE{Src: MS(0), Dst: D0}))

	// SCC writes without reading
	assert.Equal(t, []Reg(nil), uses(SCC{CC: "EQ", Dst: D2}))

	r, ok := Def(SCC{CC: "EQ", Dst: D2})
	assert.True(t, ok)
	assert.Equal(t, D2, r)

	assert.Equal(t, []Reg(nil), uses(RET{Src: NoReg}))
	assert.Equal(t, []Reg{D0}, uses(RET{Src: D0}))
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	assert.Equal(t, NumRegs, cfg.Regs)
	assert.Equal(t, D2, cfg.CalleeSaved)
	assert.Equal(t, []Reg{D0, D1}, cfg.ArgRegs)
	assert.Equal(t, D0, cfg.RetReg)
}

func TestCCNeg(t *testing.T) {
	for _, c := range []CC{"EQ", "NE", "LT", "GT", "LE", "GE"} {
		assert.Equal(t, c, c.Neg().Neg(), "cc %v", c)
	}
}
