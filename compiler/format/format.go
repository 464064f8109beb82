package format

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
)

type (
	Names interface {
		Name(intern.Ident) string
	}
)

// Program appends readable text of p to b.
func Program(ctx context.Context, b []byte, names Names, p *ir.Program) (_ []byte, err error) {
	for _, d := range p.Data {
		b = app(b, 0, "data %s\n", d)
	}

	for i, f := range p.Funcs {
		if i != 0 || len(p.Data) != 0 {
			b = append(b, '\n')
		}

		b, err = Func(ctx, b, names, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", names.Name(f.Name))
		}
	}

	return b, nil
}

func Func(ctx context.Context, b []byte, names Names, f *ir.Func) (_ []byte, err error) {
	b = app(b, 0, "func %s(", names.Name(f.Name))

	for i, a := range f.Args {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = append(b, names.Name(a)...)
	}

	b = append(b, ") {\n"...)

	for i := range f.Blocks {
		b, err = formatBlock(ctx, b, names, &f.Blocks[i], 1)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", names.Name(f.Blocks[i].Label))
		}
	}

	b = append(b, "}\n"...)

	return b, nil
}

func formatBlock(ctx context.Context, b []byte, names Names, x *ir.Block, d int) (_ []byte, err error) {
	b = app(b, d-1, "%s:\n", names.Name(x.Label))

	for _, p := range x.Phis {
		b = app(b, d, "%s = phi", names.Name(intern.Ident(p.Dst)))

		for i, s := range p.Srcs {
			if i != 0 {
				b = append(b, ',')
			}

			b = app(b, 0, " [%s: ", names.Name(s.Block))

			b, err = formatValue(b, names, s.Value)
			if err != nil {
				return nil, errors.Wrap(err, "phi")
			}

			b = append(b, ']')
		}

		b = append(b, '\n')
	}

	for _, in := range x.Code {
		b, err = formatInstr(b, names, in, d)
		if err != nil {
			return nil, errors.Wrap(err, "instr")
		}
	}

	if x.Term == nil {
		return b, nil
	}

	b, err = formatTerm(b, names, x.Term, d)
	if err != nil {
		return nil, errors.Wrap(err, "terminator")
	}

	return b, nil
}

func formatInstr(b []byte, names Names, x ir.Instr, d int) (_ []byte, err error) {
	switch x := x.(type) {
	case ir.Binary:
		b = app(b, d, "%s = %v ", names.Name(intern.Ident(x.Dst)), x.Opcode)
	case ir.Unary:
		b = app(b, d, "%s = %v ", names.Name(intern.Ident(x.Dst)), x.Opcode)
	case ir.Alloca:
		b = app(b, d, "%s = alloca", names.Name(intern.Ident(x.Dst)))
	case ir.Load:
		b = app(b, d, "%s = load ", names.Name(intern.Ident(x.Dst)))
	case ir.Store:
		b = app(b, d, "store ")
	case ir.Call:
		b = app(b, d, "%s = call %s ", names.Name(intern.Ident(x.Dst)), names.Name(x.Func))
	default:
		return nil, errors.New("unsupported instr: %T", x)
	}

	b, err = formatValues(b, names, x.In())
	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

func formatTerm(b []byte, names Names, x ir.Terminator, d int) (_ []byte, err error) {
	switch x := x.(type) {
	case ir.Ret:
		b = app(b, d, "ret")

		if x.Value != nil {
			b = append(b, ' ')

			b, err = formatValue(b, names, x.Value)
			if err != nil {
				return nil, err
			}
		}
	case ir.Br:
		b = app(b, d, "br ")

		b, err = formatValue(b, names, x.Cond)
		if err != nil {
			return nil, err
		}

		b = app(b, 0, ", %s, %s", names.Name(x.Then), names.Name(x.Else))
	case ir.Jmp:
		b = app(b, d, "jmp %s", names.Name(x.Target))
	default:
		return nil, errors.New("unsupported terminator: %T", x)
	}

	return append(b, '\n'), nil
}

func formatValues(b []byte, names Names, l []ir.Value) (_ []byte, err error) {
	for i, v := range l {
		if i != 0 {
			b = append(b, ", "...)
		}

		b, err = formatValue(b, names, v)
		if err != nil {
			return nil, errors.Wrap(err, "arg %d", i)
		}
	}

	return b, nil
}

func formatValue(b []byte, names Names, v ir.Value) ([]byte, error) {
	switch v := v.(type) {
	case ir.Reg:
		b = append(b, names.Name(intern.Ident(v))...)
	case ir.Imm:
		b = hfmt.Appendf(b, "%d", int64(v))
	default:
		return nil, errors.New("unsupported value: %T", v)
	}

	return b, nil
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
