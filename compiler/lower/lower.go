// Package lower finalizes control flow: it lays blocks out, flags
// unreachable ones as dead code, expands the function prologue and
// epilogue, and resolves branch labels to instruction addresses in two
// passes (provisional addresses first, then target patching, so forward
// references cost nothing).
package lower

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jfabienke/NeXTRust/compiler/mach"
	"github.com/jfabienke/NeXTRust/compiler/set"
)

// ErrUnresolvedLabel is returned when an emitted branch targets a label
// no emitted block defines. Fatal for the function.
var ErrUnresolvedLabel = errors.New("unresolved label")

// Func lowers an allocated function into its final flat instruction
// stream. frame is the spill frame size in bytes.
func Func(ctx context.Context, cfg mach.Config, name string, blocks []mach.Block, frame int) (_ *mach.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "lower func", "name", name)
	defer tr.Finish("err", &err)

	l2b := make(map[mach.Label]int, len(blocks))
	for i, b := range blocks {
		l2b[b.Label] = i
	}

	f := &mach.Func{
		Name:  name,
		Frame: frame,
		Addrs: make(map[mach.Label]int, len(blocks)),
	}

	reached := reachable(blocks, l2b)

	for i := range blocks {
		if !reached.IsSet(i) {
			f.Dead = append(f.Dead, blocks[i].Label)
		}
	}

	if len(f.Dead) != 0 {
		tr.Printw("dead code", "name", name, "blocks", f.Dead)
	}

	saved := savedRegs(cfg, blocks, reached)

	var layout []mach.Block

	for i, b := range blocks {
		if !reached.IsSet(i) {
			continue
		}

		code := make([]mach.Instr, 0, len(b.Code)+4)

		if len(layout) == 0 {
			code = append(code, mach.LINK{Frame: frame})

			if len(saved) != 0 {
				code = append(code, mach.MOVEM{Regs: saved})
			}
		}

		for _, x := range b.Code {
			ret, ok := x.(mach.RET)
			if !ok {
				code = append(code, x)
				continue
			}

			if ret.Src != mach.NoReg && ret.Src != cfg.RetReg {
				code = append(code, mach.MOVE{Src: mach.RS(ret.Src), Dst: cfg.RetReg})
			}

			if len(saved) != 0 {
				code = append(code, mach.MOVEM{Regs: saved, Restore: true})
			}

			code = append(code, mach.UNLK{}, mach.RTS{})
		}

		layout = append(layout, mach.Block{Label: b.Label, Code: code})
	}

	// a trailing branch to the next block in layout order falls through
	for i := 0; i+1 < len(layout); i++ {
		code := layout[i].Code

		if len(code) == 0 {
			continue
		}

		if br, ok := code[len(code)-1].(mach.BRA); ok && br.Label == layout[i+1].Label {
			layout[i].Code = code[:len(code)-1]
		}
	}

	// pass 1: provisional block addresses in emission order
	addr := 0

	for _, b := range layout {
		f.Addrs[b.Label] = addr
		addr += len(b.Code)
	}

	// pass 2: all addresses are fixed, resolve branch targets
	for _, b := range layout {
		for _, x := range b.Code {
			switch x := x.(type) {
			case mach.BCC:
				a, ok := f.Addrs[x.Label]
				if !ok {
					return nil, errors.Wrap(ErrUnresolvedLabel, "block L%d: B%v L%d", b.Label, x.CC, x.Label)
				}

				f.Code = append(f.Code, mach.BCC{CC: x.CC, Label: x.Label, Addr: a})
			case mach.BRA:
				a, ok := f.Addrs[x.Label]
				if !ok {
					return nil, errors.Wrap(ErrUnresolvedLabel, "block L%d: BRA L%d", b.Label, x.Label)
				}

				f.Code = append(f.Code, mach.BRA{Label: x.Label, Addr: a})
			default:
				f.Code = append(f.Code, x)
			}
		}
	}

	if tr.If("dump_lower") {
		tr.Printw("lowered", "name", name, "code", f.Format())
	}

	return f, nil
}

// savedRegs lists the callee-saved registers the emitted code writes,
// in register order.
func savedRegs(cfg mach.Config, blocks []mach.Block, reached set.Bits) []mach.Reg {
	used := set.Make()

	for i := range blocks {
		if !reached.IsSet(i) {
			continue
		}

		for _, x := range blocks[i].Code {
			if r, ok := mach.Def(x); ok && r >= cfg.CalleeSaved && int(r) < mach.NumRegs {
				used.Set(int(r))
			}
		}
	}

	var saved []mach.Reg

	used.Range(func(i int) bool {
		saved = append(saved, mach.Reg(i))
		return true
	})

	return saved
}

// reachable walks branch edges from the entry block, the same worklist
// the backend uses to enumerate blocks.
func reachable(blocks []mach.Block, l2b map[mach.Label]int) set.Bits {
	seen := set.Make()

	if len(blocks) == 0 {
		return seen
	}

	q := []int{0}
	seen.Set(0)

	for i := 0; i < len(q); i++ {
		for _, x := range blocks[q[i]].Code {
			var l mach.Label

			switch x := x.(type) {
			case mach.BCC:
				l = x.Label
			case mach.BRA:
				l = x.Label
			default:
				continue
			}

			j, ok := l2b[l]
			if !ok || seen.IsSet(j) {
				continue
			}

			seen.Set(j)
			q = append(q, j)
		}
	}

	return seen
}
