package rule

import (
	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
)

type (
	// Rule maps a sequence of IR instructions onto an assembly template.
	// It is data only: matching and instantiation are done by instsel.
	Rule struct {
		Name string

		Pattern Pattern
		Asm     []AsmInstr
	}

	Pattern struct {
		IR   []IrPattern
		Last IrPatternLast // optional
	}

	// IrPattern is one of Binary, Unary, Alloca, Load, Store, Call.
	IrPattern interface {
		irPattern()
	}

	Binary struct {
		Op   ir.Op
		Dst  IrRegister
		L, R IrArg
	}

	Unary struct {
		Op  ir.Op
		Dst IrRegister
		X   IrArg
	}

	Alloca struct {
		Dst IrRegister
	}

	Load struct {
		Dst  IrRegister
		Addr IrArg
	}

	Store struct {
		Addr  IrArg
		Value IrArg
	}

	// Call binds Func to the callee name and Args to the argument list.
	Call struct {
		Dst  IrRegister
		Func intern.Ident
		Args intern.Ident
	}

	// IrPatternLast is one of Ret, Br, Jmp.
	IrPatternLast interface {
		irPatternLast()
	}

	Ret struct {
		Value *IrArg // nil matches void return only
	}

	Br struct {
		Cond IrArg
		Then IrLabel
		Else IrLabel
	}

	Jmp struct {
		Target IrLabel
	}

	ArgKind uint8

	// IrArg matches an IR value: a register or a literal.
	IrArg struct {
		Kind ArgKind
		Name intern.Ident
	}

	IrRegister intern.Ident
	IrLabel    intern.Ident

	AsmInstr struct {
		Mnemonic intern.Ident
		Args     []AsmArg
	}

	// AsmArg is one of MachineReg, NewRegister, IrArgRef, Literal, LabelRef, Indirect.
	AsmArg interface {
		asmArg()
	}

	MachineReg x86.Reg

	// NewRegister is a fresh virtual register.
	// All its occurrences in one template instance are the same register.
	NewRegister intern.Ident

	// IrArgRef refers to a name bound by the pattern or a NewRegister.
	IrArgRef intern.Ident

	Literal  intern.Ident
	LabelRef intern.Ident

	// Indirect is [Base + Index * Scale + Disp]. Base and Index are optional.
	Indirect struct {
		Size asm.OperandSize

		Base  AsmArg
		Index AsmArg
		Scale uint32

		Disp    int32
		HasDisp bool
	}

	BindKind uint8

	Binding struct {
		Name intern.Ident
		Kind BindKind
	}
)

const (
	RegisterArg ArgKind = iota
	LiteralArg
)

const (
	BindRegister BindKind = iota + 1
	BindLiteral
	BindLabel
	BindFunc
	BindArgs
)

func Reg(name intern.Ident) IrArg { return IrArg{Kind: RegisterArg, Name: name} }
func Lit(name intern.Ident) IrArg { return IrArg{Kind: LiteralArg, Name: name} }

func (a IrArg) Bind() BindKind {
	if a.Kind == LiteralArg {
		return BindLiteral
	}

	return BindRegister
}

// Bindings returns names bound by the pattern in first occurrence order.
// Conflicting rebindings are reported by Check, here the first kind wins.
func (r *Rule) Bindings() []Binding {
	var l []Binding

	seen := map[intern.Ident]struct{}{}

	for _, e := range r.Pattern.elements() {
		for _, b := range e {
			if _, ok := seen[b.Name]; ok {
				continue
			}

			seen[b.Name] = struct{}{}
			l = append(l, b)
		}
	}

	return l
}

// elements returns the bindings of every pattern element, terminator included.
func (p Pattern) elements() [][]Binding {
	l := make([][]Binding, 0, len(p.IR)+1)

	for _, x := range p.IR {
		l = append(l, patternBindings(x))
	}

	if p.Last != nil {
		l = append(l, lastBindings(p.Last))
	}

	return l
}

func patternBindings(x IrPattern) []Binding {
	switch x := x.(type) {
	case Binary:
		return []Binding{x.Dst.binding(), x.L.binding(), x.R.binding()}
	case Unary:
		return []Binding{x.Dst.binding(), x.X.binding()}
	case Alloca:
		return []Binding{x.Dst.binding()}
	case Load:
		return []Binding{x.Dst.binding(), x.Addr.binding()}
	case Store:
		return []Binding{x.Addr.binding(), x.Value.binding()}
	case Call:
		return []Binding{x.Dst.binding(), {Name: x.Func, Kind: BindFunc}, {Name: x.Args, Kind: BindArgs}}
	default:
		panic(x)
	}
}

func lastBindings(x IrPatternLast) []Binding {
	switch x := x.(type) {
	case Ret:
		if x.Value == nil {
			return nil
		}

		return []Binding{x.Value.binding()}
	case Br:
		return []Binding{x.Cond.binding(), x.Then.binding(), x.Else.binding()}
	case Jmp:
		return []Binding{x.Target.binding()}
	default:
		panic(x)
	}
}

func (r IrRegister) binding() Binding { return Binding{Name: intern.Ident(r), Kind: BindRegister} }
func (l IrLabel) binding() Binding    { return Binding{Name: intern.Ident(l), Kind: BindLabel} }
func (a IrArg) binding() Binding      { return Binding{Name: a.Name, Kind: a.Bind()} }

func (k BindKind) String() string {
	switch k {
	case BindRegister:
		return "register"
	case BindLiteral:
		return "literal"
	case BindLabel:
		return "label"
	case BindFunc:
		return "function"
	case BindArgs:
		return "argument list"
	default:
		return "unbound"
	}
}

func (Binary) irPattern() {}
func (Unary) irPattern()  {}
func (Alloca) irPattern() {}
func (Load) irPattern()   {}
func (Store) irPattern()  {}
func (Call) irPattern()   {}

func (Ret) irPatternLast() {}
func (Br) irPatternLast()  {}
func (Jmp) irPatternLast() {}

func (MachineReg) asmArg()  {}
func (NewRegister) asmArg() {}
func (IrArgRef) asmArg()    {}
func (Literal) asmArg()     {}
func (LabelRef) asmArg()    {}
func (Indirect) asmArg()    {}
