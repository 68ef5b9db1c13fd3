// Package regalloc assigns physical data registers to the virtual
// registers of a selected function by linear scan over live intervals.
// When pressure exceeds the configured register count, the active
// interval with the furthest end point is spilled to a frame slot; slots
// are reused once their owning interval ends.
package regalloc

import (
	"context"
	"sort"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/jfabienke/NeXTRust/compiler/live"
	"github.com/jfabienke/NeXTRust/compiler/mach"
)

// ErrAllocationInfeasible is returned when the configuration leaves the
// allocator no usable registers. A configuration error, fatal for the
// whole run.
var ErrAllocationInfeasible = errors.New("allocation infeasible")

type (
	Alloc struct {
		cfg mach.Config
	}

	// Result is the allocation outcome. Regs and Slots are keyed by
	// virtual register; a register appears in exactly one of them.
	Result struct {
		Regs  map[mach.Reg]mach.Reg
		Slots map[mach.Reg]int

		Frame   int // spill frame bytes
		Scratch mach.Reg

		Spills  int // stores to frame slots
		Reloads int // frame slot reads (loads and memory-operand uses)
	}

	state struct {
		cfg mach.Config

		pool    int
		scratch mach.Reg

		free []bool

		active  []entry // sorted by End
		spilled []entry // sorted by End

		slots    heap.Heap[int]
		nextSlot int

		res Result
	}

	entry struct {
		iv  live.Interval
		reg mach.Reg // assigned register, or NoReg when spilled
	}
)

func New(cfg mach.Config) *Alloc {
	return &Alloc{cfg: cfg}
}

// Func allocates registers for the function's blocks in place: every
// virtual register is replaced by a physical one, with spill stores and
// reloads inserted where the configured register file is exceeded.
// Intervals must be sorted by start point; they are consumed here.
func (a *Alloc) Func(ctx context.Context, blocks []mach.Block, ivs []live.Interval) (_ Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "allocate registers")
	defer tr.Finish("err", &err)

	if a.cfg.Regs <= 0 {
		return Result{}, errors.Wrap(ErrAllocationInfeasible, "%d registers configured", a.cfg.Regs)
	}

	s := &state{
		cfg:  a.cfg,
		pool: a.cfg.Regs,
		slots: heap.Heap[int]{
			Less: func(d []int, i, j int) bool { return d[i] < d[j] },
		},
		res: Result{
			Regs:  map[mach.Reg]mach.Reg{},
			Slots: map[mach.Reg]int{},
		},
	}

	// one register is held back to shuttle spilled values through
	if s.pool >= mach.NumRegs {
		s.pool = mach.NumRegs - 1
	}

	s.scratch = mach.Reg(s.pool)
	s.free = make([]bool, s.pool)

	for i := range s.free {
		s.free[i] = true
	}

	for _, iv := range ivs {
		s.expire(iv.Start)

		reg := s.take(a.cfg, iv)

		if reg == mach.NoReg {
			s.spillAt(tr, iv)
			continue
		}

		tr.V("alloc").Printw("assign", "reg", iv.Reg, "phys", reg, "range", iv, "cross_call", iv.CrossCall)

		s.res.Regs[iv.Reg] = reg
		s.insertActive(entry{iv: iv, reg: reg})
	}

	s.res.Frame = s.nextSlot * mach.SlotSize
	s.res.Scratch = s.scratch

	s.rewrite(blocks, ivs, a.cfg)

	tr.Printw("allocated", "frame", s.res.Frame, "spills", s.res.Spills, "reloads", s.res.Reloads)

	return s.res, nil
}

// take picks the lowest free register compatible with the interval, or
// NoReg when none is.
func (s *state) take(cfg mach.Config, iv live.Interval) mach.Reg {
	lo := 0
	if iv.CrossCall {
		lo = int(cfg.CalleeSaved)
	}

	if f := iv.Fixed; f != mach.NoReg && !iv.CrossCall && int(f) < s.pool && s.free[f] {
		s.free[f] = false
		return f
	}

	for r := lo; r < s.pool; r++ {
		if s.free[r] {
			s.free[r] = false
			return mach.Reg(r)
		}
	}

	return mach.NoReg
}

// spillAt resolves pressure at iv.Start: the compatible active interval
// with the furthest end point loses its register if it outlives iv,
// otherwise iv itself goes to a frame slot.
func (s *state) spillAt(tr tlog.Span, iv live.Interval) {
	lo := mach.Reg(0)
	if iv.CrossCall {
		lo = s.cfg.CalleeSaved
	}

	victim := -1

	for i, e := range s.active {
		if e.reg < lo || e.iv.Fixed == e.reg {
			continue
		}

		if victim < 0 || e.iv.End > s.active[victim].iv.End {
			victim = i
		}
	}

	if victim >= 0 && s.active[victim].iv.End > iv.End {
		v := s.active[victim]

		tr.V("alloc").Printw("evict", "reg", v.iv.Reg, "phys", v.reg, "for", iv.Reg, "range", v.iv)

		delete(s.res.Regs, v.iv.Reg)
		s.assignSlot(v.iv)
		s.active = append(s.active[:victim], s.active[victim+1:]...)

		s.res.Regs[iv.Reg] = v.reg
		s.insertActive(entry{iv: iv, reg: v.reg})

		return
	}

	tr.V("alloc").Printw("spill", "reg", iv.Reg, "range", iv)

	s.assignSlot(iv)
}

func (s *state) assignSlot(iv live.Interval) {
	var slot int

	if s.slots.Len() != 0 {
		slot = s.slots.Pop()
	} else {
		slot = s.nextSlot
		s.nextSlot++
	}

	s.res.Slots[iv.Reg] = slot
	s.insertSpilled(entry{iv: iv, reg: mach.NoReg})
}

func (s *state) expire(pos int) {
	for len(s.active) != 0 && s.active[0].iv.End <= pos {
		s.free[s.active[0].reg] = true
		s.active = s.active[1:]
	}

	for len(s.spilled) != 0 && s.spilled[0].iv.End <= pos {
		s.slots.Push(s.res.Slots[s.spilled[0].iv.Reg])
		s.spilled = s.spilled[1:]
	}
}

func (s *state) insertActive(e entry) {
	i := sort.Search(len(s.active), func(i int) bool {
		return s.active[i].iv.End >= e.iv.End
	})

	s.active = append(s.active, entry{})
	copy(s.active[i+1:], s.active[i:])
	s.active[i] = e
}

func (s *state) insertSpilled(e entry) {
	i := sort.Search(len(s.spilled), func(i int) bool {
		return s.spilled[i].iv.End >= e.iv.End
	})

	s.spilled = append(s.spilled, entry{})
	copy(s.spilled[i+1:], s.spilled[i:])
	s.spilled[i] = e
}
