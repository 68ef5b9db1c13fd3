package ir

import (
	"tlog.app/go/errors"
)

// Validate checks the structural invariants the lowering passes rely on:
// unique block labels, a terminator closing every block, defined branch
// targets, and def-before-use ordering of virtual registers over the
// block layout.
func Validate(f *Func) error {
	if len(f.Blocks) == 0 {
		return errors.New("no blocks")
	}

	labels := map[Label]int{}

	for i, b := range f.Blocks {
		if j, ok := labels[b.Label]; ok {
			return errors.New("label L%d defined by blocks %d and %d", b.Label, j, i)
		}

		labels[b.Label] = i

		if len(b.Code) == 0 {
			return errors.New("block L%d: empty", b.Label)
		}

		for j, x := range b.Code {
			term := false

			switch x.(type) {
			case B, BCond, Ret:
				term = true
			}

			if term != (j == len(b.Code)-1) {
				return errors.New("block L%d: instr %d: misplaced or missing terminator", b.Label, j)
			}
		}
	}

	for _, b := range f.Blocks {
		for _, l := range b.Succs() {
			if _, ok := labels[l]; !ok {
				return errors.New("block L%d: branch to undefined label L%d", b.Label, l)
			}

			// the entry block holds the prologue and the incoming
			// argument moves; it must not be a branch target
			if l == f.Blocks[0].Label {
				return errors.New("block L%d: branch to entry block L%d", b.Label, l)
			}
		}
	}

	return validateDefUse(f)
}

func validateDefUse(f *Func) error {
	defined := make([]bool, f.NReg)

	for _, r := range f.In {
		if int(r) >= f.NReg {
			return errors.New("arg register %d out of range", r)
		}

		defined[r] = true
	}

	use := func(b *Block, o Operand) error {
		if !o.IsReg() {
			return nil
		}

		if int(o.Reg) >= f.NReg {
			return errors.New("block L%d: register %d out of range", b.Label, o.Reg)
		}

		if !defined[o.Reg] {
			return errors.New("block L%d: register %d used before definition", b.Label, o.Reg)
		}

		return nil
	}

	def := func(b *Block, r Reg) error {
		if r == NoReg {
			return nil
		}

		if int(r) >= f.NReg {
			return errors.New("block L%d: register %d out of range", b.Label, r)
		}

		defined[r] = true

		return nil
	}

	for i := range f.Blocks {
		b := &f.Blocks[i]

		for _, x := range b.Code {
			var err error

			switch x := x.(type) {
			case BinOp:
				err = first(use(b, x.L), use(b, x.R), def(b, x.Dst))
			case Cmp:
				err = first(use(b, x.L), use(b, x.R), def(b, x.Dst))
			case Mov:
				err = first(use(b, x.Src), def(b, x.Dst))
			case Call:
				for _, a := range x.In {
					if err = use(b, a); err != nil {
						break
					}
				}
				if err == nil {
					err = def(b, x.Dst)
				}
			case BCond:
				err = use(b, R(x.Src))
			case Ret:
				err = use(b, x.Src)
			case B:
			default:
				return errors.New("block L%d: unknown instruction %T", b.Label, x)
			}

			if err != nil {
				return err
			}
		}
	}

	return nil
}

func first(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}
