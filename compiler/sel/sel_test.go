package sel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/jfabienke/NeXTRust/compiler/ir"
	"github.com/jfabienke/NeXTRust/compiler/mach"
)

func selectOne(t *testing.T, f *ir.Func) []mach.Block {
	t.Helper()

	blocks, err := New(mach.Default()).Func(context.Background(), f)
	require.NoError(t, err)

	for _, b := range blocks {
		for _, x := range b.Code {
			t.Logf("L%d\t%v", b.Label, mach.Format(x))
		}
	}

	return blocks
}

func binopFunc(op ir.Op, r ir.Operand) *ir.Func {
	return &ir.Func{
		Name: "f",
		In:   []ir.Reg{0},
		NReg: 2,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.BinOp{Op: op, Dst: 1, L: ir.R(0), R: r},
				ir.Ret{Src: ir.R(1)},
			}},
		},
	}
}

func TestAddPatterns(t *testing.T) {
	v0, v1 := mach.V(0), mach.V(1)

	for _, tc := range []struct {
		name string
		op   ir.Op
		r    ir.Operand
		want mach.Instr
	}{
		{"quick add", ir.Add, ir.I(2), mach.ADDQ{Imm: 2, Dst: v1}},
		{"quick sub for negative add", ir.Add, ir.I(-3), mach.SUBQ{Imm: 3, Dst: v1}},
		{"wide add", ir.Add, ir.I(100), mach.ADDI{Imm: 100, Dst: v1}},
		{"register add", ir.Add, ir.R(0), mach.ADD{Src: mach.RS(v0), Dst: v1}},
		{"quick sub", ir.Sub, ir.I(8), mach.SUBQ{Imm: 8, Dst: v1}},
		{"wide sub", ir.Sub, ir.I(-100), mach.SUBI{Imm: -100, Dst: v1}},
		{"and imm", ir.And, ir.I(255), mach.ANDI{Imm: 255, Dst: v1}},
		{"or reg", ir.Or, ir.R(0), mach.OR{Src: mach.RS(v0), Dst: v1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			blocks := selectOne(t, binopFunc(tc.op, tc.r))

			require.Len(t, blocks, 1)
			require.Len(t, blocks[0].Code, 3)

			assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(v0), Dst: v1}), blocks[0].Code[0])
			assert.Equal(t, tc.want, blocks[0].Code[1])
		})
	}
}

func TestAddCommutesImmediateLeft(t *testing.T) {
	f := binopFunc(ir.Add, ir.I(0))
	f.Blocks[0].Code[0] = ir.BinOp{Op: ir.Add, Dst: 1, L: ir.I(2), R: ir.R(0)}

	blocks := selectOne(t, f)

	require.Len(t, blocks[0].Code, 3)
	assert.Equal(t, mach.Instr(mach.ADDQ{Imm: 2, Dst: mach.V(1)}), blocks[0].Code[1])
}

func TestAddZeroIsMove(t *testing.T) {
	blocks := selectOne(t, binopFunc(ir.Add, ir.I(0)))

	require.Len(t, blocks[0].Code, 2)
	assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(mach.V(0)), Dst: mach.V(1)}), blocks[0].Code[0])
}

func TestSubIntoOwnSource(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0, 1},
		NReg: 3,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.BinOp{Op: ir.Add, Dst: 2, L: ir.R(0), R: ir.R(1)},
				ir.BinOp{Op: ir.Sub, Dst: 2, L: ir.R(0), R: ir.R(2)},
				ir.Ret{Src: ir.R(2)},
			}},
		},
	}

	blocks := selectOne(t, f)

	// the right operand is the destination: its value is saved in a
	// temporary before the destination is overwritten
	require.Len(t, blocks[0].Code, 6)

	v0, v2, tmp := mach.V(0), mach.V(2), mach.V(3)

	assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(v2), Dst: tmp}), blocks[0].Code[2])
	assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(v0), Dst: v2}), blocks[0].Code[3])
	assert.Equal(t, mach.Instr(mach.SUB{Src: mach.RS(tmp), Dst: v2}), blocks[0].Code[4])
}

func TestAddIntoOwnSourceCommutes(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0, 1},
		NReg: 2,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.BinOp{Op: ir.Add, Dst: 1, L: ir.R(0), R: ir.R(1)},
				ir.Ret{Src: ir.R(1)},
			}},
		},
	}

	blocks := selectOne(t, f)

	// commuting puts the destination on the left; no temporary needed
	require.Len(t, blocks[0].Code, 3)

	v0, v1 := mach.V(0), mach.V(1)

	assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(v1), Dst: v1}), blocks[0].Code[0])
	assert.Equal(t, mach.Instr(mach.ADD{Src: mach.RS(v0), Dst: v1}), blocks[0].Code[1])
}

func TestMulPatterns(t *testing.T) {
	v0, v1 := mach.V(0), mach.V(1)

	for _, tc := range []struct {
		name string
		r    ir.Operand
		want mach.Instr
	}{
		{"shift for power of two", ir.I(8), mach.ASL{Count: 3, Dst: v1}},
		{"shift for two", ir.I(2), mach.ASL{Count: 1, Dst: v1}},
		{"wide multiply", ir.I(10), mach.MULSI{Imm: 10, Dst: v1}},
		{"register multiply", ir.R(0), mach.MULS{Src: mach.RS(v0), Dst: v1}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			blocks := selectOne(t, binopFunc(ir.Mul, tc.r))

			require.Len(t, blocks[0].Code, 3)
			assert.Equal(t, tc.want, blocks[0].Code[1])
		})
	}
}

func TestMulByOneIsMove(t *testing.T) {
	blocks := selectOne(t, binopFunc(ir.Mul, ir.I(1)))

	require.Len(t, blocks[0].Code, 2)
}

func TestDivUnsupported(t *testing.T) {
	_, err := New(mach.Default()).Func(context.Background(), binopFunc(ir.Div, ir.R(0)))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOperation), "got: %v", err)
}

func TestCmpBranchFusion(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0},
		NReg: 2,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.Cmp{Cond: ">", Dst: 1, L: ir.R(0), R: ir.I(20)},
				ir.BCond{Src: 1, Then: 1, Else: 2},
			}},
			{Label: 1, Code: []ir.Instr{ir.Ret{Src: ir.I(1)}}},
			{Label: 2, Code: []ir.Instr{ir.Ret{Src: ir.I(0)}}},
		},
	}

	blocks := selectOne(t, f)

	require.Len(t, blocks[0].Code, 3)
	assert.Equal(t, mach.Instr(mach.CMPI{Imm: 20, Dst: mach.V(0)}), blocks[0].Code[0])
	assert.Equal(t, mach.Instr(mach.BCC{CC: "GT", Label: 1, Addr: -1}), blocks[0].Code[1])
	assert.Equal(t, mach.Instr(mach.BRA{Label: 2, Addr: -1}), blocks[0].Code[2])
}

func TestCmpImmediateLeftMirrors(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0},
		NReg: 2,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.Cmp{Cond: "<", Dst: 1, L: ir.I(5), R: ir.R(0)},
				ir.BCond{Src: 1, Then: 1, Else: 2},
			}},
			{Label: 1, Code: []ir.Instr{ir.Ret{Src: ir.I(1)}}},
			{Label: 2, Code: []ir.Instr{ir.Ret{Src: ir.I(0)}}},
		},
	}

	blocks := selectOne(t, f)

	// 5 < v0  ==  v0 > 5
	assert.Equal(t, mach.Instr(mach.CMPI{Imm: 5, Dst: mach.V(0)}), blocks[0].Code[0])
	assert.Equal(t, mach.Instr(mach.BCC{CC: "GT", Label: 1, Addr: -1}), blocks[0].Code[1])
}

func TestCmpMaterialized(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0},
		NReg: 2,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.Cmp{Cond: "==", Dst: 1, L: ir.R(0), R: ir.I(0)},
				ir.Ret{Src: ir.R(1)},
			}},
		},
	}

	blocks := selectOne(t, f)

	require.Len(t, blocks[0].Code, 3)
	assert.Equal(t, mach.Instr(mach.CMPI{Imm: 0, Dst: mach.V(0)}), blocks[0].Code[0])
	assert.Equal(t, mach.Instr(mach.SCC{CC: "EQ", Dst: mach.V(1)}), blocks[0].Code[1])
}

func TestCmpNotAdjacentNotFused(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0},
		NReg: 3,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.Cmp{Cond: "<", Dst: 1, L: ir.R(0), R: ir.I(10)},
				ir.Mov{Dst: 2, Src: ir.I(7)},
				ir.BCond{Src: 1, Then: 1, Else: 2},
			}},
			{Label: 1, Code: []ir.Instr{ir.Ret{Src: ir.R(2)}}},
			{Label: 2, Code: []ir.Instr{ir.Ret{Src: ir.I(0)}}},
		},
	}

	blocks := selectOne(t, f)

	// the flag is materialized and the branch tests it
	assert.Equal(t, mach.Instr(mach.SCC{CC: "LT", Dst: mach.V(1)}), blocks[0].Code[1])
	assert.Equal(t, mach.Instr(mach.TST{Reg: mach.V(1)}), blocks[0].Code[3])
	assert.Equal(t, mach.Instr(mach.BCC{CC: "NE", Label: 1, Addr: -1}), blocks[0].Code[4])
	assert.Equal(t, mach.Instr(mach.BRA{Label: 2, Addr: -1}), blocks[0].Code[5])
}

func TestCall(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		In:   []ir.Reg{0},
		NReg: 2,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.Call{Dst: 1, Func: "add_test", In: []ir.Operand{ir.R(0), ir.I(3)}},
				ir.Ret{Src: ir.R(1)},
			}},
		},
	}

	blocks := selectOne(t, f)

	require.Len(t, blocks[0].Code, 5)
	assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(mach.V(0)), Dst: mach.D0}), blocks[0].Code[0])
	assert.Equal(t, mach.Instr(mach.MOVEQ{Imm: 3, Dst: mach.D1}), blocks[0].Code[1])
	assert.Equal(t, mach.Instr(mach.JSR{Target: "add_test"}), blocks[0].Code[2])
	assert.Equal(t, mach.Instr(mach.MOVE{Src: mach.RS(mach.D0), Dst: mach.V(1)}), blocks[0].Code[3])

	require.Len(t, blocks[0].Calls, 1)
	assert.Equal(t, mach.Span{Lo: 0, Hi: 4}, blocks[0].Calls[0])
}

func TestCallTooManyArgs(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		NReg: 1,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{
				ir.Call{Dst: 0, Func: "g", In: []ir.Operand{ir.I(1), ir.I(2), ir.I(3)}},
				ir.Ret{Src: ir.R(0)},
			}},
		},
	}

	_, err := New(mach.Default()).Func(context.Background(), f)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOperation), "got: %v", err)
}

func TestRetImmediate(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		NReg: 0,
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{ir.Ret{Src: ir.I(42)}}},
		},
	}

	blocks := selectOne(t, f)

	require.Len(t, blocks[0].Code, 2)

	tmp := mach.V(0)
	assert.Equal(t, mach.Instr(mach.MOVEQ{Imm: 42, Dst: tmp}), blocks[0].Code[0])
	assert.Equal(t, mach.Instr(mach.RET{Src: tmp}), blocks[0].Code[1])
}

func TestRetVoid(t *testing.T) {
	f := &ir.Func{
		Name: "f",
		Blocks: []ir.Block{
			{Label: 0, Code: []ir.Instr{ir.Ret{}}},
		},
	}

	blocks := selectOne(t, f)

	assert.Equal(t, mach.Instr(mach.RET{Src: mach.NoReg}), blocks[0].Code[0])
}
