package ir

import (
	"fmt"
	"strings"
)

func (o Operand) String() string {
	switch o.Kind {
	case RegKind:
		return fmt.Sprintf("r%d", o.Reg)
	case ImmKind:
		return fmt.Sprintf("#%d", o.Imm)
	default:
		return "-"
	}
}

func Format(x Instr) string {
	switch x := x.(type) {
	case BinOp:
		return fmt.Sprintf("r%d = %v %v, %v", x.Dst, x.Op, x.L, x.R)
	case Cmp:
		return fmt.Sprintf("r%d = cmp%v %v, %v", x.Dst, x.Cond, x.L, x.R)
	case Mov:
		return fmt.Sprintf("r%d = %v", x.Dst, x.Src)
	case Call:
		args := make([]string, len(x.In))
		for i, a := range x.In {
			args[i] = a.String()
		}

		call := fmt.Sprintf("call %v(%v)", x.Func, strings.Join(args, ", "))

		if x.Dst == NoReg {
			return call
		}

		return fmt.Sprintf("r%d = %v", x.Dst, call)
	case B:
		return fmt.Sprintf("b L%d", x.To)
	case BCond:
		return fmt.Sprintf("bnz r%d, L%d, L%d", x.Src, x.Then, x.Else)
	case Ret:
		if x.Src.IsNone() {
			return "ret"
		}

		return fmt.Sprintf("ret %v", x.Src)
	default:
		return fmt.Sprintf("%+v", x)
	}
}

// Dump renders the whole function, one instruction per line.
func Dump(f *Func) string {
	var b strings.Builder

	fmt.Fprintf(&b, "func %v (", f.Name)

	for i, r := range f.In {
		if i != 0 {
			b.WriteString(", ")
		}

		fmt.Fprintf(&b, "r%d", r)
	}

	fmt.Fprintf(&b, ")\n")

	for i := range f.Blocks {
		bp := &f.Blocks[i]

		fmt.Fprintf(&b, "L%d:\n", bp.Label)

		for _, x := range bp.Code {
			fmt.Fprintf(&b, "	%v\n", Format(x))
		}
	}

	return b.String()
}
