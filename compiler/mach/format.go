package mach

import (
	"fmt"
	"strings"
)

func (r Reg) String() string {
	switch {
	case r == NoReg:
		return "-"
	case r.IsVirt():
		return fmt.Sprintf("v%d", r.Virt())
	default:
		return fmt.Sprintf("D%d", int(r))
	}
}

func (s Src) String() string {
	if s.Mem {
		return fmt.Sprintf("%d(A6)", FrameOffset(s.Slot))
	}

	return s.Reg.String()
}

func regList(regs []Reg) string {
	var b strings.Builder

	for i, r := range regs {
		if i != 0 {
			b.WriteByte('/')
		}

		b.WriteString(r.String())
	}

	return b.String()
}

func lab(l Label, addr int) string {
	if addr < 0 {
		return fmt.Sprintf("L%d", l)
	}

	return fmt.Sprintf("L%d ; @%d", l, addr)
}

func Format(x Instr) string {
	switch x := x.(type) {
	case MOVE:
		return fmt.Sprintf("MOVE.L	%v, %v", x.Src, x.Dst)
	case STORE:
		return fmt.Sprintf("MOVE.L	%v, %d(A6)", x.Src, FrameOffset(x.Slot))
	case MOVEQ:
		return fmt.Sprintf("MOVEQ	#%d, %v", x.Imm, x.Dst)
	case MOVEI:
		return fmt.Sprintf("MOVE.L	#%d, %v", x.Imm, x.Dst)
	case ADD:
		return fmt.Sprintf("ADD.L	%v, %v", x.Src, x.Dst)
	case ADDQ:
		return fmt.Sprintf("ADDQ.L	#%d, %v", x.Imm, x.Dst)
	case ADDI:
		return fmt.Sprintf("ADDI.L	#%d, %v", x.Imm, x.Dst)
	case SUB:
		return fmt.Sprintf("SUB.L	%v, %v", x.Src, x.Dst)
	case SUBQ:
		return fmt.Sprintf("SUBQ.L	#%d, %v", x.Imm, x.Dst)
	case SUBI:
		return fmt.Sprintf("SUBI.L	#%d, %v", x.Imm, x.Dst)
	case MULS:
		return fmt.Sprintf("MULS.W	%v, %v", x.Src, x.Dst)
	case MULSI:
		return fmt.Sprintf("MULS.W	#%d, %v", x.Imm, x.Dst)
	case AND:
		return fmt.Sprintf("AND.L	%v, %v", x.Src, x.Dst)
	case ANDI:
		return fmt.Sprintf("ANDI.L	#%d, %v", x.Imm, x.Dst)
	case OR:
		return fmt.Sprintf("OR.L	%v, %v", x.Src, x.Dst)
	case ORI:
		return fmt.Sprintf("ORI.L	#%d, %v", x.Imm, x.Dst)
	case ASL:
		return fmt.Sprintf("ASL.L	#%d, %v", x.Count, x.Dst)
	case CMP:
		return fmt.Sprintf("CMP.L	%v, %v", x.Src, x.Dst)
	case CMPI:
		return fmt.Sprintf("CMPI.L	#%d, %v", x.Imm, x.Dst)
	case TST:
		return fmt.Sprintf("TST.L	%v", x.Reg)
	case SCC:
		return fmt.Sprintf("S%v	%v", x.CC, x.Dst)
	case BCC:
		return fmt.Sprintf("B%v	%v", x.CC, lab(x.Label, x.Addr))
	case BRA:
		return fmt.Sprintf("BRA	%v", lab(x.Label, x.Addr))
	case JSR:
		return fmt.Sprintf("JSR	_%v", x.Target)
	case RET:
		return fmt.Sprintf("RET	%v", x.Src)
	case LINK:
		return fmt.Sprintf("LINK	A6, #%d", -x.Frame)
	case MOVEM:
		if x.Restore {
			return fmt.Sprintf("MOVEM.L	(SP)+, %v", regList(x.Regs))
		}

		return fmt.Sprintf("MOVEM.L	%v, -(SP)", regList(x.Regs))
	case UNLK:
		return "UNLK	A6"
	case RTS:
		return "RTS"
	default:
		return fmt.Sprintf("%+v", x)
	}
}

// FormatFunc renders a lowered function with addresses and labels, for
// logs and tests.
func (f *Func) Format() string {
	a2l := make(map[int]Label, len(f.Addrs))

	for l, a := range f.Addrs {
		a2l[a] = l
	}

	var b strings.Builder

	fmt.Fprintf(&b, "_%v:	; frame %d\n", f.Name, f.Frame)

	for i, x := range f.Code {
		if l, ok := a2l[i]; ok {
			fmt.Fprintf(&b, "L%d:\n", l)
		}

		fmt.Fprintf(&b, "	%v\n", Format(x))
	}

	return b.String()
}
