package ir

type (
	// Reg is a virtual register. A function uses registers 0..NReg-1.
	Reg int

	// Label identifies a basic block. Branches refer to blocks by label only.
	Label int

	Op   int
	Cond string

	Kind byte

	// Operand is a virtual register, an immediate constant, or nothing.
	Operand struct {
		Kind Kind
		Reg  Reg
		Imm  int64
	}

	Instr any // one of the types below

	BinOp struct {
		Op   Op
		Dst  Reg
		L, R Operand
	}

	// Cmp evaluates L Cond R into Dst as 0 or 1.
	Cmp struct {
		Cond Cond
		Dst  Reg
		L, R Operand
	}

	Mov struct {
		Dst Reg
		Src Operand
	}

	Call struct {
		Dst  Reg // NoReg if the result is unused
		Func string
		In   []Operand
	}

	B struct {
		To Label
	}

	// BCond branches to Then when Src is non-zero, to Else otherwise.
	BCond struct {
		Src  Reg
		Then Label
		Else Label
	}

	Ret struct {
		Src Operand // None for void functions
	}

	Block struct {
		Label Label
		Code  []Instr
	}

	Func struct {
		Name string

		In   []Reg
		NReg int

		Blocks []Block
	}

	Package struct {
		Path string

		Funcs []*Func
	}
)

const (
	None Kind = iota
	RegKind
	ImmKind
)

const (
	Add Op = iota
	Sub
	Mul
	Div
	And
	Or
)

const NoReg Reg = -1

func R(r Reg) Operand   { return Operand{Kind: RegKind, Reg: r} }
func I(v int64) Operand { return Operand{Kind: ImmKind, Imm: v} }

func (o Operand) IsReg() bool  { return o.Kind == RegKind }
func (o Operand) IsImm() bool  { return o.Kind == ImmKind }
func (o Operand) IsNone() bool { return o.Kind == None }

func (op Op) String() string {
	switch op {
	case Add:
		return "add"
	case Sub:
		return "sub"
	case Mul:
		return "mul"
	case Div:
		return "div"
	case And:
		return "and"
	case Or:
		return "or"
	default:
		return "op?"
	}
}

// Neg returns the condition holding exactly when c does not.
func (c Cond) Neg() Cond {
	switch c {
	case "<":
		return ">="
	case ">":
		return "<="
	case "<=":
		return ">"
	case ">=":
		return "<"
	case "==":
		return "!="
	case "!=":
		return "=="
	default:
		panic(c)
	}
}

// NewReg reserves a fresh virtual register.
func (f *Func) NewReg() Reg {
	r := Reg(f.NReg)
	f.NReg++

	return r
}

// BlockByLabel maps labels to block indexes. Dense labels are expected
// but not required.
func (f *Func) BlockByLabel() map[Label]int {
	m := make(map[Label]int, len(f.Blocks))

	for i, b := range f.Blocks {
		m[b.Label] = i
	}

	return m
}

// Succs returns the labels this block transfers control to.
func (b *Block) Succs() []Label {
	if len(b.Code) == 0 {
		return nil
	}

	switch x := b.Code[len(b.Code)-1].(type) {
	case B:
		return []Label{x.To}
	case BCond:
		return []Label{x.Then, x.Else}
	case Ret:
		return nil
	default:
		return nil
	}
}

// Edges derives successor and predecessor sets over block indexes.
// Blocks own their code; edges are back-references only.
func (f *Func) Edges() (succ, pred [][]int) {
	l2b := f.BlockByLabel()

	succ = make([][]int, len(f.Blocks))
	pred = make([][]int, len(f.Blocks))

	for i := range f.Blocks {
		for _, l := range f.Blocks[i].Succs() {
			j, ok := l2b[l]
			if !ok {
				continue
			}

			succ[i] = append(succ[i], j)
			pred[j] = append(pred[j], i)
		}
	}

	return succ, pred
}
