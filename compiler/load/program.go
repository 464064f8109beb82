package load

import (
	"context"

	"tlog.app/go/errors"

	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
)

func ProgramFile(ctx context.Context, names Interner, name string) (*ir.Program, error) {
	data, err := readFile(ctx, name)
	if err != nil {
		return nil, err
	}

	return Program(ctx, names, data)
}

// Program decodes an IR program.
// Integer operands are immediates, strings are registers.
func Program(ctx context.Context, names Interner, data []byte) (*ir.Program, error) {
	var doc programDoc

	err := decode(data, &doc)
	if err != nil {
		return nil, err
	}

	p := &ir.Program{
		Data: doc.Data,
	}

	for _, fd := range doc.Funcs {
		f, err := funcFromDoc(names, fd)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", fd.Name)
		}

		p.Funcs = append(p.Funcs, f)
	}

	return p, nil
}

func funcFromDoc(names Interner, d funcDoc) (*ir.Func, error) {
	f := &ir.Func{
		Name: names.Intern(d.Name),
	}

	for _, a := range d.Args {
		f.Args = append(f.Args, names.Intern(a))
	}

	for _, bd := range d.Blocks {
		b, err := blockFromDoc(names, bd)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", bd.Label)
		}

		f.Blocks = append(f.Blocks, b)
	}

	return f, nil
}

func blockFromDoc(names Interner, d blockDoc) (b ir.Block, err error) {
	b.Label = names.Intern(d.Label)

	for i, pd := range d.Phis {
		phi := ir.Phi{Dst: ir.Reg(names.Intern(pd.Dst))}

		for _, sd := range pd.From {
			v, err := value(names, sd.Value)
			if err != nil {
				return b, errors.Wrap(err, "phi %d", i)
			}

			phi.Srcs = append(phi.Srcs, ir.PhiSrc{Block: names.Intern(sd.Block), Value: v})
		}

		b.Phis = append(b.Phis, phi)
	}

	for i, id := range d.Code {
		x, err := instrFromDoc(names, id)
		if err != nil {
			return b, errors.Wrap(err, "code %d", i)
		}

		b.Code = append(b.Code, x)
	}

	if d.Term != nil {
		b.Term, err = termFromDoc(names, *d.Term)
		if err != nil {
			return b, errors.Wrap(err, "term")
		}
	}

	return b, nil
}

func instrFromDoc(names Interner, d instrDoc) (ir.Instr, error) {
	op, ok := ir.LookupOp(d.Op)
	if !ok {
		return nil, errors.Wrap(ErrSyntax, "unknown op %q", d.Op)
	}

	args, err := values(names, d.Args)
	if err != nil {
		return nil, err
	}

	dst := ir.Reg(names.Intern(d.Dst))

	need := func(n int) error {
		if len(args) != n {
			return errors.Wrap(ErrSyntax, "%v: %d args expected, got %d", op, n, len(args))
		}

		return nil
	}

	switch {
	case op.IsBinary():
		if err := need(2); err != nil {
			return nil, err
		}

		return ir.Binary{Opcode: op, Dst: dst, L: args[0], R: args[1]}, nil
	case op.IsUnary():
		if err := need(1); err != nil {
			return nil, err
		}

		return ir.Unary{Opcode: op, Dst: dst, X: args[0]}, nil
	}

	switch op {
	case ir.OpAlloca:
		if err := need(0); err != nil {
			return nil, err
		}

		return ir.Alloca{Dst: dst}, nil
	case ir.OpLoad:
		if err := need(1); err != nil {
			return nil, err
		}

		return ir.Load{Dst: dst, Addr: args[0]}, nil
	case ir.OpStore:
		if err := need(2); err != nil {
			return nil, err
		}

		return ir.Store{Addr: args[0], Value: args[1]}, nil
	case ir.OpCall:
		return ir.Call{Dst: dst, Func: names.Intern(d.Func), Args: args}, nil
	}

	return nil, errors.Wrap(ErrSyntax, "unsupported op %v", op)
}

func termFromDoc(names Interner, d instrDoc) (ir.Terminator, error) {
	args, err := values(names, d.Args)
	if err != nil {
		return nil, err
	}

	labels := make([]intern.Ident, len(d.Labels))

	for i, l := range d.Labels {
		labels[i] = names.Intern(l)
	}

	switch d.Op {
	case "ret":
		switch len(args) {
		case 0:
			return ir.Ret{}, nil
		case 1:
			return ir.Ret{Value: args[0]}, nil
		}
	case "br":
		if len(args) == 1 && len(labels) == 2 {
			return ir.Br{Cond: args[0], Then: labels[0], Else: labels[1]}, nil
		}
	case "jmp":
		if len(args) == 0 && len(labels) == 1 {
			return ir.Jmp{Target: labels[0]}, nil
		}
	default:
		return nil, errors.Wrap(ErrSyntax, "unknown terminator %q", d.Op)
	}

	return nil, errors.Wrap(ErrSyntax, "%v: bad operands", d.Op)
}

func values(names Interner, l []any) ([]ir.Value, error) {
	vals := make([]ir.Value, len(l))

	for i, a := range l {
		v, err := value(names, a)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}

		vals[i] = v
	}

	return vals, nil
}

func value(names Interner, a any) (ir.Value, error) {
	switch a := a.(type) {
	case int:
		return ir.Imm(a), nil
	case string:
		return ir.Reg(names.Intern(a)), nil
	default:
		return nil, errors.Wrap(ErrSyntax, "unsupported value %T", a)
	}
}
