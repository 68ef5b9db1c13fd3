// Package sel lowers IR basic blocks to symbolic machine instructions.
// Patterns are chosen by operand class: immediate forms (quick forms for
// small constants, a shift for power-of-two multiplies) are preferred over
// register-register forms to keep register pressure down. Instructions are
// lowered strictly in order; nothing moves across a data dependency.
package sel

import (
	"context"
	"math/bits"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jfabienke/NeXTRust/compiler/ir"
	"github.com/jfabienke/NeXTRust/compiler/mach"
)

// ErrUnsupportedOperation is returned when no machine pattern matches an
// IR instruction. Fatal for the function being compiled.
var ErrUnsupportedOperation = errors.New("unsupported operation")

type (
	Selector struct {
		cfg mach.Config
	}

	funcContext struct {
		*ir.Func

		uses  []int // virtual register -> use count
		nvirt int
	}
)

func New(cfg mach.Config) *Selector {
	return &Selector{cfg: cfg}
}

// Func lowers every block of f. The result still refers to virtual
// registers; allocation replaces them later.
func (s *Selector) Func(ctx context.Context, f *ir.Func) (blocks []mach.Block, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "select func", "name", f.Name)
	defer tr.Finish("err", &err)

	fc := &funcContext{
		Func:  f,
		uses:  countUses(f),
		nvirt: f.NReg,
	}

	blocks = make([]mach.Block, len(f.Blocks))

	for i := range f.Blocks {
		blocks[i], err = s.block(ctx, fc, &f.Blocks[i])
		if err != nil {
			return nil, errors.Wrap(err, "block L%d", f.Blocks[i].Label)
		}
	}

	if tr.If("dump_sel") {
		for _, b := range blocks {
			for i, x := range b.Code {
				tr.Printw("selected", "block", b.Label, "i", i, "instr", mach.Format(x))
			}
		}
	}

	return blocks, nil
}

func (s *Selector) block(ctx context.Context, fc *funcContext, b *ir.Block) (mb mach.Block, err error) {
	mb = mach.Block{Label: mach.Label(b.Label)}

	emit := func(xs ...mach.Instr) {
		mb.Code = append(mb.Code, xs...)
	}

	fusedFor := ir.NoReg
	var fusedCC mach.CC

	for i, x := range b.Code {
		switch x := x.(type) {
		case ir.BinOp:
			err = s.binop(&mb, fc, x)
		case ir.Cmp:
			cc, cmperr := s.compare(&mb, fc, x.Cond, x.L, x.R)
			if cmperr != nil {
				err = cmperr
				break
			}

			if fuseable(b, i, fc, x) {
				fusedFor, fusedCC = x.Dst, cc
				break
			}

			emit(mach.SCC{CC: cc, Dst: v(x.Dst)})
		case ir.Mov:
			err = s.move(&mb, fc, v(x.Dst), x.Src)
		case ir.Call:
			err = s.call(&mb, fc, x)
		case ir.B:
			emit(mach.BRA{Label: mach.Label(x.To), Addr: -1})
		case ir.BCond:
			if x.Src == fusedFor {
				emit(mach.BCC{CC: fusedCC, Label: mach.Label(x.Then), Addr: -1})
			} else {
				emit(
					mach.TST{Reg: v(x.Src)},
					mach.BCC{CC: "NE", Label: mach.Label(x.Then), Addr: -1},
				)
			}

			emit(mach.BRA{Label: mach.Label(x.Else), Addr: -1})
		case ir.Ret:
			err = s.ret(&mb, fc, x)
		default:
			err = errors.Wrap(ErrUnsupportedOperation, "%T", x)
		}

		if err != nil {
			return mb, errors.Wrap(err, "%v", ir.Format(x))
		}
	}

	return mb, nil
}

func (s *Selector) binop(mb *mach.Block, fc *funcContext, x ir.BinOp) error {
	l, r := x.L, x.R

	// immediate source forms only exist one way around
	if commutative(x.Op) && l.IsImm() && r.IsReg() {
		l, r = r, l
	}

	// the copy of l into the destination must not clobber r
	if commutative(x.Op) && r.IsReg() && r.Reg == x.Dst && !(l.IsReg() && l.Reg == x.Dst) {
		l, r = r, l
	}

	dst := v(x.Dst)

	rsrc := mach.NoReg
	if r.IsReg() {
		rsrc = v(r.Reg)

		if r.Reg == x.Dst {
			rsrc = fc.temp()
			mb.Code = append(mb.Code, mach.MOVE{Src: mach.RS(v(r.Reg)), Dst: rsrc})
		}
	}

	// two-address target: destination starts as a copy of the left operand
	if err := s.move(mb, fc, dst, l); err != nil {
		return err
	}

	emit := func(xs ...mach.Instr) {
		mb.Code = append(mb.Code, xs...)
	}

	switch {
	case x.Op == ir.Add && r.IsImm():
		switch imm := r.Imm; {
		case imm == 0:
		case imm >= 1 && imm <= 8:
			emit(mach.ADDQ{Imm: imm, Dst: dst})
		case imm >= -8 && imm <= -1:
			emit(mach.SUBQ{Imm: -imm, Dst: dst})
		default:
			emit(mach.ADDI{Imm: imm, Dst: dst})
		}
	case x.Op == ir.Add:
		emit(mach.ADD{Src: mach.RS(rsrc), Dst: dst})
	case x.Op == ir.Sub && r.IsImm():
		switch imm := r.Imm; {
		case imm == 0:
		case imm >= 1 && imm <= 8:
			emit(mach.SUBQ{Imm: imm, Dst: dst})
		case imm >= -8 && imm <= -1:
			emit(mach.ADDQ{Imm: -imm, Dst: dst})
		default:
			emit(mach.SUBI{Imm: imm, Dst: dst})
		}
	case x.Op == ir.Sub:
		emit(mach.SUB{Src: mach.RS(rsrc), Dst: dst})
	case x.Op == ir.Mul && r.IsImm():
		switch imm, sh := r.Imm, log2(r.Imm); {
		case imm == 1:
		case sh >= 1 && sh <= 8:
			emit(mach.ASL{Count: sh, Dst: dst})
		default:
			emit(mach.MULSI{Imm: imm, Dst: dst})
		}
	case x.Op == ir.Mul:
		emit(mach.MULS{Src: mach.RS(rsrc), Dst: dst})
	case x.Op == ir.And && r.IsImm():
		emit(mach.ANDI{Imm: r.Imm, Dst: dst})
	case x.Op == ir.And:
		emit(mach.AND{Src: mach.RS(rsrc), Dst: dst})
	case x.Op == ir.Or && r.IsImm():
		emit(mach.ORI{Imm: r.Imm, Dst: dst})
	case x.Op == ir.Or:
		emit(mach.OR{Src: mach.RS(rsrc), Dst: dst})
	default:
		return errors.Wrap(ErrUnsupportedOperation, "%v with %v, %v", x.Op, x.L, x.R)
	}

	return nil
}

// compare emits a CMP or CMPI setting the condition codes so that the
// returned CC holds exactly when l cond r does.
func (s *Selector) compare(mb *mach.Block, fc *funcContext, cond ir.Cond, l, r ir.Operand) (mach.CC, error) {
	emit := func(xs ...mach.Instr) {
		mb.Code = append(mb.Code, xs...)
	}

	cc, ok := ccFor(cond)
	if !ok {
		return "", errors.Wrap(ErrUnsupportedOperation, "condition %q", cond)
	}

	switch {
	case l.IsReg() && r.IsReg():
		emit(mach.CMP{Src: mach.RS(v(r.Reg)), Dst: v(l.Reg)})
	case l.IsReg() && r.IsImm():
		emit(mach.CMPI{Imm: r.Imm, Dst: v(l.Reg)})
	case l.IsImm() && r.IsReg():
		// compare the other way around, mirror the condition
		emit(mach.CMPI{Imm: l.Imm, Dst: v(r.Reg)})
		cc, _ = ccFor(mirror(cond))
	default:
		tmp := fc.temp()

		s.moveImm(mb, tmp, l.Imm)
		emit(mach.CMPI{Imm: r.Imm, Dst: tmp})
	}

	return cc, nil
}

func (s *Selector) move(mb *mach.Block, fc *funcContext, dst mach.Reg, src ir.Operand) error {
	switch {
	case src.IsImm():
		s.moveImm(mb, dst, src.Imm)
	case src.IsReg():
		mb.Code = append(mb.Code, mach.MOVE{Src: mach.RS(v(src.Reg)), Dst: dst})
	default:
		return errors.Wrap(ErrUnsupportedOperation, "empty operand")
	}

	return nil
}

func (s *Selector) moveImm(mb *mach.Block, dst mach.Reg, imm int64) {
	if imm >= -128 && imm <= 127 {
		mb.Code = append(mb.Code, mach.MOVEQ{Imm: imm, Dst: dst})
		return
	}

	mb.Code = append(mb.Code, mach.MOVEI{Imm: imm, Dst: dst})
}

func (s *Selector) call(mb *mach.Block, fc *funcContext, x ir.Call) error {
	lo := len(mb.Code)

	if len(x.In) > len(s.cfg.ArgRegs) {
		return errors.Wrap(ErrUnsupportedOperation, "%d call arguments, %d argument registers", len(x.In), len(s.cfg.ArgRegs))
	}

	for i, a := range x.In {
		if err := s.move(mb, fc, s.cfg.ArgRegs[i], a); err != nil {
			return err
		}
	}

	mb.Code = append(mb.Code, mach.JSR{Target: x.Func})

	if x.Dst != ir.NoReg {
		mb.Code = append(mb.Code, mach.MOVE{Src: mach.RS(s.cfg.RetReg), Dst: v(x.Dst)})
	}

	mb.Calls = append(mb.Calls, mach.Span{Lo: lo, Hi: len(mb.Code)})

	return nil
}

func (s *Selector) ret(mb *mach.Block, fc *funcContext, x ir.Ret) error {
	switch {
	case x.Src.IsNone():
		mb.Code = append(mb.Code, mach.RET{Src: mach.NoReg})
	case x.Src.IsImm():
		tmp := fc.temp()

		s.moveImm(mb, tmp, x.Src.Imm)
		mb.Code = append(mb.Code, mach.RET{Src: tmp})
	default:
		mb.Code = append(mb.Code, mach.RET{Src: v(x.Src.Reg)})
	}

	return nil
}

// fuseable reports whether a Cmp may skip materializing its result: it
// must immediately precede the block's conditional branch (nothing may
// disturb the condition codes in between) and feed nothing else.
func fuseable(b *ir.Block, i int, fc *funcContext, x ir.Cmp) bool {
	if i+2 != len(b.Code) {
		return false
	}

	br, ok := b.Code[i+1].(ir.BCond)

	return ok && br.Src == x.Dst && fc.uses[x.Dst] == 1
}

func (fc *funcContext) temp() mach.Reg {
	r := mach.V(fc.nvirt)
	fc.nvirt++

	return r
}

func v(r ir.Reg) mach.Reg { return mach.V(int(r)) }

func commutative(op ir.Op) bool {
	switch op {
	case ir.Add, ir.Mul, ir.And, ir.Or:
		return true
	default:
		return false
	}
}

func log2(x int64) int {
	if x <= 0 || x&(x-1) != 0 {
		return -1
	}

	return bits.TrailingZeros64(uint64(x))
}

func ccFor(cond ir.Cond) (mach.CC, bool) {
	switch cond {
	case "<":
		return "LT", true
	case ">":
		return "GT", true
	case "<=":
		return "LE", true
	case ">=":
		return "GE", true
	case "==":
		return "EQ", true
	case "!=":
		return "NE", true
	default:
		return "", false
	}
}

// mirror swaps the operand roles of a condition: l cond r == r mirror(cond) l.
func mirror(cond ir.Cond) ir.Cond {
	switch cond {
	case "<":
		return ">"
	case ">":
		return "<"
	case "<=":
		return ">="
	case ">=":
		return "<="
	default:
		return cond
	}
}

func countUses(f *ir.Func) []int {
	uses := make([]int, f.NReg)

	use := func(o ir.Operand) {
		if o.IsReg() {
			uses[o.Reg]++
		}
	}

	for i := range f.Blocks {
		for _, x := range f.Blocks[i].Code {
			switch x := x.(type) {
			case ir.BinOp:
				use(x.L)
				use(x.R)
			case ir.Cmp:
				use(x.L)
				use(x.R)
			case ir.Mov:
				use(x.Src)
			case ir.Call:
				for _, a := range x.In {
					use(a)
				}
			case ir.BCond:
				uses[x.Src]++
			case ir.Ret:
				use(x.Src)
			}
		}
	}

	return uses
}
