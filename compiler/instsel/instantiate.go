package instsel

import (
	"strconv"

	"tlog.app/go/errors"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/rule"
)

type (
	instance struct {
		names Symbols
		scope *intern.Scope
		bnd   *Bindings

		fresh map[intern.Ident]asm.Register
	}
)

var ErrMalformed = errors.New("malformed template")

// Instantiate expands the template of a checked rule r over matched bindings.
// New registers are named by fresh.
func Instantiate(names Symbols, fresh *intern.Scope, r *rule.Rule, bnd *Bindings) ([]asm.Instruction, error) {
	ms := make([]x86.Mnemonic, len(r.Asm))

	for i, in := range r.Asm {
		m, ok := x86.LookupMnemonic(names.Name(in.Mnemonic))
		if !ok {
			return nil, errors.Wrap(rule.ErrMnemonic, "%q", names.Name(in.Mnemonic))
		}

		ms[i] = m
	}

	return instantiate(names, fresh, r, ms, bnd)
}

func instantiate(names Symbols, fresh *intern.Scope, r *rule.Rule, ms []x86.Mnemonic, bnd *Bindings) (l []asm.Instruction, err error) {
	s := instance{
		names: names,
		scope: fresh,
		bnd:   bnd,
		fresh: map[intern.Ident]asm.Register{},
	}

	for i, in := range r.Asm {
		if list, ok := s.argList(in); ok {
			for j := len(list) - 1; j >= 0; j-- {
				l = append(l, asm.NewInstruction(ms[i], list[j]))
			}

			continue
		}

		args := make([]asm.Argument, len(in.Args))

		for j, a := range in.Args {
			args[j], err = s.arg(a)
			if err != nil {
				return nil, errors.Wrap(err, "%v arg %d", ms[i], j)
			}
		}

		l = append(l, asm.NewInstruction(ms[i], args...))
	}

	return l, nil
}

// argList reports in is a single operand instruction over a call argument list.
func (s *instance) argList(in rule.AsmInstr) ([]asm.Argument, bool) {
	if len(in.Args) != 1 {
		return nil, false
	}

	ref, ok := in.Args[0].(rule.IrArgRef)
	if !ok {
		return nil, false
	}

	return s.bnd.List(intern.Ident(ref))
}

func (s *instance) arg(a rule.AsmArg) (asm.Argument, error) {
	switch a := a.(type) {
	case rule.MachineReg:
		return asm.Machine(x86.Reg(a)), nil
	case rule.NewRegister:
		return s.newReg(intern.Ident(a)), nil
	case rule.IrArgRef:
		name := intern.Ident(a)

		if r, ok := s.fresh[name]; ok {
			return r, nil
		}

		if v, ok := s.bnd.Value(name); ok {
			return v, nil
		}

		return nil, errors.Wrap(rule.ErrUnbound, "%q", s.names.Name(name))
	case rule.LabelRef:
		v, ok := s.bnd.Value(intern.Ident(a))
		if !ok {
			return nil, errors.Wrap(rule.ErrUnbound, "label %q", s.names.Name(intern.Ident(a)))
		}

		return v, nil
	case rule.Literal:
		return literal(s.names.Name(intern.Ident(a)), intern.Ident(a)), nil
	case rule.Indirect:
		return s.indirect(a)
	default:
		return nil, errors.Wrap(ErrMalformed, "unsupported asm arg: %T", a)
	}
}

func (s *instance) indirect(x rule.Indirect) (asm.Argument, error) {
	res := asm.Indirect{
		Size:    x.Size,
		Scale:   x.Scale,
		Disp:    x.Disp,
		HasDisp: x.HasDisp,
	}

	var err error

	if x.Base != nil {
		res.Base, err = s.reg(x.Base)
		if err != nil {
			return nil, errors.Wrap(err, "base")
		}
	}

	if x.Index != nil {
		res.Index, err = s.reg(x.Index)
		if err != nil {
			return nil, errors.Wrap(err, "index")
		}
	}

	return res, nil
}

func (s *instance) reg(a rule.AsmArg) (asm.Register, error) {
	if _, ok := a.(rule.Indirect); ok {
		return asm.Register{}, errors.Wrap(rule.ErrIndirect, "nested indirect")
	}

	v, err := s.arg(a)
	if err != nil {
		return asm.Register{}, err
	}

	r, ok := v.(asm.Register)
	if !ok {
		return asm.Register{}, errors.Wrap(rule.ErrIndirect, "%T is not a register", v)
	}

	return r, nil
}

func (s *instance) newReg(name intern.Ident) asm.Register {
	if r, ok := s.fresh[name]; ok {
		return r
	}

	r := asm.Virtual(s.scope.Fresh(s.names.Name(name)))
	s.fresh[name] = r

	return r
}

// literal is Immediate for canonical decimal text.
// Anything else, 0x10 and 08 included, renders verbatim as Address.
func literal(text string, id intern.Ident) asm.Argument {
	v, err := strconv.ParseInt(text, 10, 64)
	if err == nil && strconv.FormatInt(v, 10) == text {
		return asm.Immediate(v)
	}

	return asm.Address(id)
}
