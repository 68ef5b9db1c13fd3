package mach

// Uses calls f for every register an instruction reads. Two-address
// arithmetic reads its destination as well as its source.
func Uses(x Instr, f func(Reg)) {
	src := func(s Src) {
		if !s.Mem {
			f(s.Reg)
		}
	}

	switch x := x.(type) {
	case MOVE:
		src(x.Src)
	case STORE:
		f(x.Src)
	case MOVEQ, MOVEI:
	case ADD:
		src(x.Src)
		f(x.Dst)
	case ADDQ:
		f(x.Dst)
	case ADDI:
		f(x.Dst)
	case SUB:
		src(x.Src)
		f(x.Dst)
	case SUBQ:
		f(x.Dst)
	case SUBI:
		f(x.Dst)
	case MULS:
		src(x.Src)
		f(x.Dst)
	case MULSI:
		f(x.Dst)
	case AND:
		src(x.Src)
		f(x.Dst)
	case ANDI:
		f(x.Dst)
	case OR:
		src(x.Src)
		f(x.Dst)
	case ORI:
		f(x.Dst)
	case ASL:
		f(x.Dst)
	case CMP:
		src(x.Src)
		f(x.Dst)
	case CMPI:
		f(x.Dst)
	case TST:
		f(x.Reg)
	case SCC:
	case MOVEM:
		if !x.Restore {
			for _, r := range x.Regs {
				f(r)
			}
		}
	case BCC, BRA, JSR, LINK, UNLK, RTS:
	case RET:
		if x.Src != NoReg {
			f(x.Src)
		}
	default:
		panic(x)
	}
}

// Def returns the register an instruction writes, if any.
func Def(x Instr) (Reg, bool) {
	switch x := x.(type) {
	case MOVE:
		return x.Dst, true
	case MOVEQ:
		return x.Dst, true
	case MOVEI:
		return x.Dst, true
	case ADD:
		return x.Dst, true
	case ADDQ:
		return x.Dst, true
	case ADDI:
		return x.Dst, true
	case SUB:
		return x.Dst, true
	case SUBQ:
		return x.Dst, true
	case SUBI:
		return x.Dst, true
	case MULS:
		return x.Dst, true
	case MULSI:
		return x.Dst, true
	case AND:
		return x.Dst, true
	case ANDI:
		return x.Dst, true
	case OR:
		return x.Dst, true
	case ORI:
		return x.Dst, true
	case ASL:
		return x.Dst, true
	case SCC:
		return x.Dst, true
	default:
		return NoReg, false
	}
}
