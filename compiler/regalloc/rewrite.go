package regalloc

import (
	"github.com/jfabienke/NeXTRust/compiler/live"
	"github.com/jfabienke/NeXTRust/compiler/mach"
)

// rewrite replaces every virtual register in the stream. Spilled sources
// become frame-slot operands where the instruction admits a memory source;
// spilled destinations go through the scratch register with a store after
// the instruction.
func (s *state) rewrite(blocks []mach.Block, ivs []live.Interval, cfg mach.Config) {
	var entryFix []mach.Instr

	type displaced struct {
		src, dst mach.Reg
	}

	var moves []displaced

	// arguments arrive in their convention registers; an argument whose
	// interval ended up elsewhere is moved (or stored) on entry. Stores go
	// first: they only read the convention registers.
	for _, iv := range ivs {
		if iv.Fixed == mach.NoReg {
			continue
		}

		if r, ok := s.res.Regs[iv.Reg]; ok {
			if r != iv.Fixed {
				moves = append(moves, displaced{src: iv.Fixed, dst: r})
			}
		} else if slot, ok := s.res.Slots[iv.Reg]; ok {
			entryFix = append(entryFix, mach.STORE{Src: iv.Fixed, Slot: slot})
			s.res.Spills++
		}
	}

	// a move may not clobber a register another move still has to read.
	// Arguments are assigned before anything frees, so there is no cycle:
	// some unread destination always exists.
	for len(moves) != 0 {
		i := 0
	pick:
		for ; i < len(moves); i++ {
			for j, m := range moves {
				if j != i && m.src == moves[i].dst {
					continue pick
				}
			}

			break
		}

		if i == len(moves) {
			panic("entry fix cycle")
		}

		entryFix = append(entryFix, mach.MOVE{Src: mach.RS(moves[i].src), Dst: moves[i].dst})
		moves = append(moves[:i], moves[i+1:]...)
	}

	for bi := range blocks {
		b := &blocks[bi]

		out := make([]mach.Instr, 0, len(b.Code)+len(entryFix))

		if bi == 0 {
			out = append(out, entryFix...)
		}

		for _, x := range b.Code {
			out = s.instr(out, x)
		}

		b.Code = out
		b.Calls = nil // instruction indexes are stale after insertion
	}
}

func (s *state) instr(out []mach.Instr, x mach.Instr) []mach.Instr {
	var post mach.Instr

	switch x := x.(type) {
	case mach.MOVE:
		src := s.src(x.Src)

		var dst mach.Reg
		dst, post = s.def(x.Dst)

		if post == nil && !src.Mem && src.Reg == dst {
			return out // the value is already there
		}

		out = append(out, mach.MOVE{Src: src, Dst: dst})
	case mach.MOVEQ:
		var dst mach.Reg
		dst, post = s.def(x.Dst)
		out = append(out, mach.MOVEQ{Imm: x.Imm, Dst: dst})
	case mach.MOVEI:
		var dst mach.Reg
		dst, post = s.def(x.Dst)
		out = append(out, mach.MOVEI{Imm: x.Imm, Dst: dst})
	case mach.SCC:
		var dst mach.Reg
		dst, post = s.def(x.Dst)
		out = append(out, mach.SCC{CC: x.CC, Dst: dst})
	case mach.ADD:
		src := s.src(x.Src)
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.ADD{Src: src, Dst: dst})
	case mach.SUB:
		src := s.src(x.Src)
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.SUB{Src: src, Dst: dst})
	case mach.MULS:
		src := s.src(x.Src)
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.MULS{Src: src, Dst: dst})
	case mach.AND:
		src := s.src(x.Src)
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.AND{Src: src, Dst: dst})
	case mach.OR:
		src := s.src(x.Src)
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.OR{Src: src, Dst: dst})
	case mach.ADDQ:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.ADDQ{Imm: x.Imm, Dst: dst})
	case mach.ADDI:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.ADDI{Imm: x.Imm, Dst: dst})
	case mach.SUBQ:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.SUBQ{Imm: x.Imm, Dst: dst})
	case mach.SUBI:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.SUBI{Imm: x.Imm, Dst: dst})
	case mach.MULSI:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.MULSI{Imm: x.Imm, Dst: dst})
	case mach.ANDI:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.ANDI{Imm: x.Imm, Dst: dst})
	case mach.ORI:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.ORI{Imm: x.Imm, Dst: dst})
	case mach.ASL:
		var dst mach.Reg
		out, dst, post = s.rmw(out, x.Dst)
		out = append(out, mach.ASL{Count: x.Count, Dst: dst})
	case mach.CMP:
		src := s.src(x.Src)
		var dst mach.Reg
		out, dst = s.use(out, x.Dst)
		out = append(out, mach.CMP{Src: src, Dst: dst})
	case mach.CMPI:
		var dst mach.Reg
		out, dst = s.use(out, x.Dst)
		out = append(out, mach.CMPI{Imm: x.Imm, Dst: dst})
	case mach.TST:
		var r mach.Reg
		out, r = s.use(out, x.Reg)
		out = append(out, mach.TST{Reg: r})
	case mach.RET:
		r := x.Src
		if r != mach.NoReg {
			out, r = s.use(out, r)
		}
		out = append(out, mach.RET{Src: r})
	default:
		out = append(out, x)
	}

	if post != nil {
		out = append(out, post)
	}

	return out
}

// src maps a source operand; a spilled register becomes a frame-slot
// operand, which the two-address forms read directly.
func (s *state) src(x mach.Src) mach.Src {
	if x.Mem || !x.Reg.IsVirt() {
		return x
	}

	if p, ok := s.res.Regs[x.Reg]; ok {
		return mach.RS(p)
	}

	s.res.Reloads++

	return mach.MS(s.res.Slots[x.Reg])
}

// use maps a register that must be read from a register operand,
// reloading through scratch when spilled.
func (s *state) use(out []mach.Instr, r mach.Reg) ([]mach.Instr, mach.Reg) {
	if !r.IsVirt() {
		return out, r
	}

	if p, ok := s.res.Regs[r]; ok {
		return out, p
	}

	s.res.Reloads++
	out = append(out, mach.MOVE{Src: mach.MS(s.res.Slots[r]), Dst: s.scratch})

	return out, s.scratch
}

// def maps a write-only destination; a spilled one is written through
// scratch and stored after.
func (s *state) def(r mach.Reg) (mach.Reg, mach.Instr) {
	if !r.IsVirt() {
		return r, nil
	}

	if p, ok := s.res.Regs[r]; ok {
		return p, nil
	}

	s.res.Spills++

	return s.scratch, mach.STORE{Src: s.scratch, Slot: s.res.Slots[r]}
}

// rmw maps a read-modify-write destination: reload, operate in scratch,
// store back.
func (s *state) rmw(out []mach.Instr, r mach.Reg) ([]mach.Instr, mach.Reg, mach.Instr) {
	if !r.IsVirt() {
		return out, r, nil
	}

	if p, ok := s.res.Regs[r]; ok {
		return out, p, nil
	}

	slot := s.res.Slots[r]

	s.res.Reloads++
	s.res.Spills++

	out = append(out, mach.MOVE{Src: mach.MS(slot), Dst: s.scratch})

	return out, s.scratch, mach.STORE{Src: s.scratch, Slot: slot}
}
