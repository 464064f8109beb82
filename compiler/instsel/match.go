package instsel

import (
	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/rule"
)

type (
	// Bindings maps pattern names to matched operands.
	Bindings struct {
		vals  map[intern.Ident]asm.Argument
		lists map[intern.Ident][]asm.Argument
	}
)

func NewBindings() *Bindings {
	return &Bindings{
		vals:  map[intern.Ident]asm.Argument{},
		lists: map[intern.Ident][]asm.Argument{},
	}
}

func (b *Bindings) Value(name intern.Ident) (asm.Argument, bool) {
	a, ok := b.vals[name]
	return a, ok
}

func (b *Bindings) List(name intern.Ident) ([]asm.Argument, bool) {
	l, ok := b.lists[name]
	return l, ok
}

// Match matches r against the beginning of code.
// If r has a terminator pattern code must be matched completely
// and term must match it.
// It returns the number of instructions consumed.
func Match(r *rule.Rule, code []ir.Instr, term ir.Terminator) (*Bindings, int, bool) {
	p := r.Pattern
	n := len(p.IR)

	if n > len(code) {
		return nil, 0, false
	}

	if p.Last != nil && (n != len(code) || term == nil) {
		return nil, 0, false
	}

	b := NewBindings()

	for i, x := range p.IR {
		if !b.matchInstr(x, code[i]) {
			return nil, 0, false
		}
	}

	if p.Last != nil && !b.matchTerm(p.Last, term) {
		return nil, 0, false
	}

	return b, n, true
}

func (b *Bindings) matchInstr(p rule.IrPattern, x ir.Instr) bool {
	switch p := p.(type) {
	case rule.Binary:
		x, ok := x.(ir.Binary)

		return ok && x.Opcode == p.Op &&
			b.bindReg(p.Dst, x.Dst) && b.bindArg(p.L, x.L) && b.bindArg(p.R, x.R)
	case rule.Unary:
		x, ok := x.(ir.Unary)

		return ok && x.Opcode == p.Op &&
			b.bindReg(p.Dst, x.Dst) && b.bindArg(p.X, x.X)
	case rule.Alloca:
		x, ok := x.(ir.Alloca)

		return ok && b.bindReg(p.Dst, x.Dst)
	case rule.Load:
		x, ok := x.(ir.Load)

		return ok && b.bindReg(p.Dst, x.Dst) && b.bindArg(p.Addr, x.Addr)
	case rule.Store:
		x, ok := x.(ir.Store)

		return ok && b.bindArg(p.Addr, x.Addr) && b.bindArg(p.Value, x.Value)
	case rule.Call:
		x, ok := x.(ir.Call)
		if !ok {
			return false
		}

		args := make([]asm.Argument, len(x.Args))

		for i, a := range x.Args {
			args[i] = operand(a)
		}

		return b.bindReg(p.Dst, x.Dst) &&
			b.bind(p.Func, asm.Address(x.Func)) &&
			b.bindList(p.Args, args)
	default:
		panic(p)
	}
}

func (b *Bindings) matchTerm(p rule.IrPatternLast, x ir.Terminator) bool {
	switch p := p.(type) {
	case rule.Ret:
		x, ok := x.(ir.Ret)
		if !ok {
			return false
		}

		if p.Value == nil || x.Value == nil {
			return p.Value == nil && x.Value == nil
		}

		return b.bindArg(*p.Value, x.Value)
	case rule.Br:
		x, ok := x.(ir.Br)

		return ok && b.bindArg(p.Cond, x.Cond) &&
			b.bind(intern.Ident(p.Then), asm.Label(x.Then)) &&
			b.bind(intern.Ident(p.Else), asm.Label(x.Else))
	case rule.Jmp:
		x, ok := x.(ir.Jmp)

		return ok && b.bind(intern.Ident(p.Target), asm.Label(x.Target))
	default:
		panic(p)
	}
}

func (b *Bindings) bindReg(p rule.IrRegister, r ir.Reg) bool {
	return b.bind(intern.Ident(p), asm.Virtual(intern.Ident(r)))
}

func (b *Bindings) bindArg(p rule.IrArg, v ir.Value) bool {
	switch v.(type) {
	case ir.Reg:
		if p.Kind != rule.RegisterArg {
			return false
		}
	case ir.Imm:
		if p.Kind != rule.LiteralArg {
			return false
		}
	default:
		return false
	}

	return b.bind(p.Name, operand(v))
}

// bind binds name to a or checks it's already bound to the same operand.
func (b *Bindings) bind(name intern.Ident, a asm.Argument) bool {
	if prev, ok := b.vals[name]; ok {
		return prev == a
	}

	b.vals[name] = a

	return true
}

func (b *Bindings) bindList(name intern.Ident, l []asm.Argument) bool {
	if prev, ok := b.lists[name]; ok {
		if len(prev) != len(l) {
			return false
		}

		for i := range prev {
			if prev[i] != l[i] {
				return false
			}
		}

		return true
	}

	b.lists[name] = l

	return true
}

func operand(v ir.Value) asm.Argument {
	switch v := v.(type) {
	case ir.Reg:
		return asm.Virtual(intern.Ident(v))
	case ir.Imm:
		return asm.Immediate(v)
	default:
		panic(v)
	}
}
