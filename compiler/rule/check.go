package rule

import (
	"tlog.app/go/errors"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/intern"
)

var (
	ErrUnbound     = errors.New("unbound name")
	ErrRebound     = errors.New("name bound twice")
	ErrConflict    = errors.New("name bound with conflicting kinds")
	ErrShadow      = errors.New("new register shadows pattern name")
	ErrMnemonic    = errors.New("unknown mnemonic")
	ErrIndirect    = errors.New("malformed indirect")
	ErrArgList     = errors.New("argument list used as operand")
	ErrOp          = errors.New("op does not fit pattern")
	ErrEmptyRule   = errors.New("empty pattern")
	ErrMachineReg  = errors.New("bad machine register")
	ErrNilArgument = errors.New("nil argument")
)

// Check reports rule definition errors.
// Rules are expected to be checked once at load time and trusted afterwards.
func (r *Rule) Check(names asm.Names) (err error) {
	bound, err := r.checkPattern(names)
	if err != nil {
		return errors.Wrap(err, "pattern")
	}

	local := map[intern.Ident]struct{}{}

	for i, in := range r.Asm {
		err = checkInstr(names, in, bound, local)
		if err != nil {
			return errors.Wrap(err, "asm line %d", i)
		}
	}

	return nil
}

func (r *Rule) checkPattern(names asm.Names) (map[intern.Ident]BindKind, error) {
	if len(r.Pattern.IR) == 0 && r.Pattern.Last == nil {
		return nil, ErrEmptyRule
	}

	for i, x := range r.Pattern.IR {
		if err := checkOp(x); err != nil {
			return nil, errors.Wrap(err, "element %d", i)
		}
	}

	bound := map[intern.Ident]BindKind{}

	for i, e := range r.Pattern.elements() {
		here := map[intern.Ident]struct{}{}

		for _, b := range e {
			if _, ok := here[b.Name]; ok {
				return nil, errors.Wrap(ErrRebound, "element %d: %q", i, names.Name(b.Name))
			}

			here[b.Name] = struct{}{}

			prev, ok := bound[b.Name]
			if ok && prev != b.Kind {
				return nil, errors.Wrap(ErrConflict, "element %d: %q: %v and %v", i, names.Name(b.Name), prev, b.Kind)
			}

			bound[b.Name] = b.Kind
		}
	}

	return bound, nil
}

func checkOp(x IrPattern) error {
	switch x := x.(type) {
	case Binary:
		if !x.Op.IsBinary() {
			return errors.Wrap(ErrOp, "binary %v", x.Op)
		}
	case Unary:
		if !x.Op.IsUnary() {
			return errors.Wrap(ErrOp, "unary %v", x.Op)
		}
	case Alloca, Load, Store, Call:
	default:
		return errors.New("unsupported pattern: %T", x)
	}

	return nil
}

func checkInstr(names asm.Names, in AsmInstr, bound map[intern.Ident]BindKind, local map[intern.Ident]struct{}) error {
	m := names.Name(in.Mnemonic)

	if _, ok := x86.LookupMnemonic(m); !ok {
		return errors.Wrap(ErrMnemonic, "%q", m)
	}

	for j, a := range in.Args {
		if ref, ok := a.(IrArgRef); ok && bound[intern.Ident(ref)] == BindArgs && len(in.Args) != 1 {
			return errors.Wrap(ErrArgList, "%v arg %d: %q must be the only operand", m, j, names.Name(intern.Ident(ref)))
		}

		_, err := checkArg(names, a, bound, local)
		if err != nil {
			return errors.Wrap(err, "%v arg %d", m, j)
		}
	}

	return nil
}

// checkArg returns whether a denotes a register.
func checkArg(names asm.Names, a AsmArg, bound map[intern.Ident]BindKind, local map[intern.Ident]struct{}) (isReg bool, err error) {
	switch a := a.(type) {
	case MachineReg:
		if !x86.Reg(a).Valid() {
			return false, errors.Wrap(ErrMachineReg, "%d", a)
		}

		return true, nil
	case NewRegister:
		name := intern.Ident(a)

		if _, ok := bound[name]; ok {
			return false, errors.Wrap(ErrShadow, "%q", names.Name(name))
		}

		local[name] = struct{}{}

		return true, nil
	case IrArgRef:
		name := intern.Ident(a)

		if _, ok := local[name]; ok {
			return true, nil
		}

		k, ok := bound[name]
		if !ok || k == BindLabel {
			return false, errors.Wrap(ErrUnbound, "%q", names.Name(name))
		}

		return k == BindRegister, nil
	case LabelRef:
		name := intern.Ident(a)

		if bound[name] != BindLabel {
			return false, errors.Wrap(ErrUnbound, "label %q", names.Name(name))
		}

		return false, nil
	case Literal:
		return false, nil
	case Indirect:
		return false, checkIndirect(names, a, bound, local)
	case nil:
		return false, ErrNilArgument
	default:
		return false, errors.New("unsupported asm arg: %T", a)
	}
}

func checkIndirect(names asm.Names, x Indirect, bound map[intern.Ident]BindKind, local map[intern.Ident]struct{}) error {
	if x.Index == nil && x.Scale != 0 {
		return errors.Wrap(ErrIndirect, "scale without index")
	}

	if x.Index != nil && x.Scale == 0 {
		return errors.Wrap(ErrIndirect, "index without scale")
	}

	for _, part := range []struct {
		name string
		a    AsmArg
	}{
		{"base", x.Base},
		{"index", x.Index},
	} {
		if part.a == nil {
			continue
		}

		if _, ok := part.a.(Indirect); ok {
			return errors.Wrap(ErrIndirect, "nested indirect %v", part.name)
		}

		if ref, ok := part.a.(IrArgRef); ok && bound[intern.Ident(ref)] == BindArgs {
			return errors.Wrap(ErrArgList, "%v", part.name)
		}

		isReg, err := checkArg(names, part.a, bound, local)
		if err != nil {
			return errors.Wrap(err, "%v", part.name)
		}

		if !isReg {
			return errors.Wrap(ErrIndirect, "%v is not a register", part.name)
		}
	}

	return nil
}
