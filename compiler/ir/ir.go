package ir

import (
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/backend/compiler/intern"
)

type (
	Op uint8

	// Value is an instruction operand: Reg or Imm.
	Value interface {
		value()
	}

	Reg intern.Ident
	Imm int64

	// Instr is one of Binary, Unary, Alloca, Load, Store, Call.
	Instr interface {
		Op() Op
		In() []Value
	}

	// Terminator is one of Ret, Br, Jmp.
	Terminator interface {
		Successors() []intern.Ident
	}

	Binary struct {
		Opcode Op
		Dst    Reg
		L, R   Value
	}

	Unary struct {
		Opcode Op
		Dst    Reg
		X      Value
	}

	Alloca struct {
		Dst Reg
	}

	Load struct {
		Dst  Reg
		Addr Value
	}

	Store struct {
		Addr  Value
		Value Value
	}

	Call struct {
		Dst  Reg
		Func intern.Ident
		Args []Value
	}

	Ret struct {
		Value Value // nil for void return
	}

	Br struct {
		Cond Value
		Then intern.Ident
		Else intern.Ident
	}

	Jmp struct {
		Target intern.Ident
	}

	// Phi merges Srcs at the start of a block.
	Phi struct {
		Dst  Reg
		Srcs []PhiSrc
	}

	PhiSrc struct {
		Block intern.Ident
		Value Value
	}

	Block struct {
		Label intern.Ident
		Phis  []Phi
		Code  []Instr
		Term  Terminator
	}

	Func struct {
		Name   intern.Ident
		Args   []intern.Ident
		Blocks []Block
	}

	Program struct {
		Data  []string
		Funcs []*Func
	}
)

const (
	OpBad Op = iota

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMod
	OpShl
	OpShr
	OpAnd
	OpOr
	OpXor

	OpNeg
	OpNot

	OpLt
	OpLe
	OpEq
	OpNe
	OpGe
	OpGt

	OpAlloca
	OpLoad
	OpStore
	OpCall

	numOps
)

var opNames = [numOps]string{
	OpBad: "bad",

	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpPow: "pow",
	OpMod: "mod",
	OpShl: "shl",
	OpShr: "shr",
	OpAnd: "and",
	OpOr:  "or",
	OpXor: "xor",

	OpNeg: "neg",
	OpNot: "not",

	OpLt: "lt",
	OpLe: "le",
	OpEq: "eq",
	OpNe: "ne",
	OpGe: "ge",
	OpGt: "gt",

	OpAlloca: "alloca",
	OpLoad:   "load",
	OpStore:  "store",
	OpCall:   "call",
}

func LookupOp(name string) (Op, bool) {
	for op := OpAdd; op < numOps; op++ {
		if opNames[op] == name {
			return op, true
		}
	}

	return OpBad, false
}

func (op Op) String() string {
	if op >= numOps {
		return opNames[OpBad]
	}

	return opNames[op]
}

func (op Op) IsBinary() bool {
	return op >= OpAdd && op <= OpXor || op >= OpLt && op <= OpGt
}

func (op Op) IsUnary() bool { return op == OpNeg || op == OpNot }

func (op Op) IsCompare() bool { return op >= OpLt && op <= OpGt }

func (x Binary) Op() Op { return x.Opcode }
func (x Unary) Op() Op  { return x.Opcode }
func (x Alloca) Op() Op { return OpAlloca }
func (x Load) Op() Op   { return OpLoad }
func (x Store) Op() Op  { return OpStore }
func (x Call) Op() Op   { return OpCall }

func (x Binary) In() []Value { return []Value{x.L, x.R} }
func (x Unary) In() []Value  { return []Value{x.X} }
func (x Alloca) In() []Value { return nil }
func (x Load) In() []Value   { return []Value{x.Addr} }
func (x Store) In() []Value  { return []Value{x.Addr, x.Value} }
func (x Call) In() []Value   { return x.Args }

func (x Ret) Successors() []intern.Ident { return nil }
func (x Br) Successors() []intern.Ident  { return []intern.Ident{x.Then, x.Else} }
func (x Jmp) Successors() []intern.Ident { return []intern.Ident{x.Target} }

func (Reg) value() {}
func (Imm) value() {}

func (f *Func) Block(label intern.Ident) (*Block, bool) {
	for i := range f.Blocks {
		if f.Blocks[i].Label == label {
			return &f.Blocks[i], true
		}
	}

	return nil, false
}

func (x Reg) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendFormat(b, "%%%d", int(x))
}

func (x Phi) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)

	b = e.AppendKeyInt(b, "dst", int(x.Dst))
	b = e.AppendKeyInt(b, "srcs", len(x.Srcs))

	return b
}
