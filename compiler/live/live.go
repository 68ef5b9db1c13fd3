// Package live computes live intervals for virtual registers over the
// selected machine stream. Blocks are laid out in order; program points
// are flat instruction indexes over that layout.
package live

import (
	"context"
	"sort"

	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/jfabienke/NeXTRust/compiler/mach"
	"github.com/jfabienke/NeXTRust/compiler/set"
)

type (
	// Interval is the [Start,End) range of program points during which a
	// virtual register's value must be preserved. It is consumed and
	// discarded by the allocator.
	Interval struct {
		Reg        mach.Reg // virtual
		Start, End int

		// Fixed pins the interval to one physical register. Used for
		// incoming arguments.
		Fixed mach.Reg

		// CrossCall marks intervals overlapping a call sequence; they
		// may only live in callee-saved registers.
		CrossCall bool
	}

	blockFlow struct {
		gen, kill set.Bits
		in, out   set.Bits
		succ      []int
	}
)

// Func computes the live intervals of every virtual register appearing in
// blocks. The block slice order is the layout order the allocator and the
// lowering pass will use.
func Func(ctx context.Context, blocks []mach.Block) []Interval {
	tr := tlog.SpanFromContext(ctx)

	l2b := make(map[mach.Label]int, len(blocks))
	for i, b := range blocks {
		l2b[b.Label] = i
	}

	flow := make([]blockFlow, len(blocks))

	for i := range blocks {
		flow[i] = blockBits(&blocks[i], l2b)
	}

	// backward dataflow to a fixpoint
	for changed := true; changed; {
		changed = false

		for i := len(blocks) - 1; i >= 0; i-- {
			f := &flow[i]

			out := set.Make()
			for _, s := range f.succ {
				out.Or(flow[s].in)
			}

			in := out.Copy()
			in.AndNot(f.kill)
			in.Or(f.gen)

			if !out.Equal(f.out) || !in.Equal(f.in) {
				f.out = out
				f.in = in
				changed = true
			}
		}
	}

	// interval construction over flat positions
	ivs := map[int]*Interval{}

	touch := func(n, start, end int) {
		iv, ok := ivs[n]
		if !ok {
			iv = &Interval{Reg: mach.V(n), Start: start, End: end, Fixed: mach.NoReg}
			ivs[n] = iv
			return
		}

		if start < iv.Start {
			iv.Start = start
		}
		if end > iv.End {
			iv.End = end
		}
	}

	pos := 0
	var calls []mach.Span

	for i := range blocks {
		b := &blocks[i]
		base := pos

		for j, x := range b.Code {
			p := base + j

			mach.Uses(x, func(r mach.Reg) {
				if !r.IsVirt() {
					return
				}

				n := r.Virt()

				if _, ok := ivs[n]; ok {
					touch(n, p, p+1)
				} else {
					// first appearance as a use: an incoming
					// argument, live from entry
					touch(n, 0, p+1)
				}
			})

			if r, ok := mach.Def(x); ok && r.IsVirt() {
				touch(r.Virt(), p, p+1)
			}
		}

		// values live out of the block survive to its end;
		// an empty block has no positions of its own
		if len(b.Code) != 0 {
			flow[i].out.Range(func(n int) bool {
				touch(n, base+len(b.Code)-1, base+len(b.Code))
				return true
			})
		}

		for _, s := range b.Calls {
			calls = append(calls, mach.Span{Lo: base + s.Lo, Hi: base + s.Hi})
		}

		pos += len(b.Code)
	}

	res := make([]Interval, 0, len(ivs))

	for _, iv := range ivs {
		for _, s := range calls {
			if iv.Start < s.Hi && iv.End > s.Lo {
				iv.CrossCall = true
				break
			}
		}

		res = append(res, *iv)
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].Start != res[j].Start {
			return res[i].Start < res[j].Start
		}

		return res[i].Reg.Virt() < res[j].Reg.Virt()
	})

	if tr.If("dump_live") {
		for _, iv := range res {
			tr.Printw("interval", "reg", iv.Reg, "range", iv, "cross_call", iv.CrossCall)
		}
	}

	return res
}

// Overlaps reports whether two intervals share a program point.
func (iv Interval) Overlaps(x Interval) bool {
	return iv.Start < x.End && x.Start < iv.End
}

func blockBits(b *mach.Block, l2b map[mach.Label]int) blockFlow {
	f := blockFlow{
		gen:  set.Make(),
		kill: set.Make(),
		in:   set.Make(),
		out:  set.Make(),
	}

	for _, x := range b.Code {
		mach.Uses(x, func(r mach.Reg) {
			if r.IsVirt() && !f.kill.IsSet(r.Virt()) {
				f.gen.Set(r.Virt())
			}
		})

		if r, ok := mach.Def(x); ok && r.IsVirt() {
			f.kill.Set(r.Virt())
		}

		switch x := x.(type) {
		case mach.BCC:
			if s, ok := l2b[x.Label]; ok {
				f.succ = append(f.succ, s)
			}
		case mach.BRA:
			if s, ok := l2b[x.Label]; ok {
				f.succ = append(f.succ, s)
			}
		}
	}

	return f
}

func (iv Interval) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt(b, "s", iv.Start)
	b = e.AppendKeyInt(b, "e", iv.End)

	return b
}
