package asm

import (
	"io"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/backend/compiler/intern"
)

type (
	// Names resolves identifiers to text. *intern.Table implements it.
	Names interface {
		Name(id intern.Ident) string
	}
)

// Render writes Intel syntax text of a to w.
func (a *Assembly) Render(w io.Writer, names Names) error {
	_, err := w.Write(a.AppendText(nil, names))
	if err != nil {
		return errors.Wrap(err, "write assembly")
	}

	return nil
}

func (a *Assembly) AppendText(b []byte, names Names) []byte {
	b = append(b, ".intel_syntax noprefix\n"...)

	if data := a.Data(); len(data) != 0 {
		b = append(b, "\n.data\n.align 4\n"...)

		for _, l := range data {
			b = append(b, l...)
			b = append(b, '\n')
		}

		b = append(b, '\n')
	}

	b = append(b, ".text\n"...)

	for _, f := range a.Fns() {
		for _, bl := range f.blocks {
			b = bl.AppendText(b, names)
			b = append(b, '\n')
		}
	}

	return b
}

// AppendText appends block lines, each ending with a newline.
// Phis are not rendered.
func (bl *Block) AppendText(b []byte, names Names) []byte {
	for _, l := range bl.code {
		switch l := l.(type) {
		case Directive:
			b = append(b, l...)
		case Instruction:
			b = append(b, "    "...)
			b = l.AppendText(b, names)
		}

		b = append(b, '\n')
	}

	return b
}

func (i Instruction) AppendText(b []byte, names Names) []byte {
	b = append(b, i.Mnemonic.String()...)

	for j, a := range i.Args {
		if j == 0 {
			b = append(b, ' ')
		} else {
			b = append(b, ", "...)
		}

		b = AppendArg(b, a, names)
	}

	return b
}

func (i Instruction) Text(names Names) string {
	return string(i.AppendText(nil, names))
}

func AppendArg(b []byte, a Argument, names Names) []byte {
	switch a := a.(type) {
	case Immediate:
		return hfmt.Appendf(b, "%d", int64(a))
	case Address:
		return append(b, names.Name(intern.Ident(a))...)
	case Label:
		return append(b, names.Name(intern.Ident(a))...)
	case Register:
		return a.AppendText(b, names)
	case StackSlot:
		return hfmt.Appendf(b, "{%s}", names.Name(intern.Ident(a)))
	case Indirect:
		return a.AppendText(b, names)
	default:
		panic(a)
	}
}

func (r Register) AppendText(b []byte, names Names) []byte {
	switch r.kind {
	case regMachine:
		return append(b, r.mach.String()...)
	case regVirtual:
		b = append(b, '%')
		return append(b, names.Name(r.virt)...)
	default:
		return append(b, "<none>"...)
	}
}

func (x Indirect) AppendText(b []byte, names Names) []byte {
	if x.Size != SizeNone {
		b = append(b, x.Size.String()...)
		b = append(b, " ptr "...)
	}

	b = append(b, '[')

	sep := false
	part := func() {
		if sep {
			b = append(b, " + "...)
		}

		sep = true
	}

	if !x.Base.IsZero() {
		part()
		b = x.Base.AppendText(b, names)
	}

	if !x.Index.IsZero() {
		part()
		b = x.Index.AppendText(b, names)
		b = hfmt.Appendf(b, " * %d", x.Scale)
	}

	if x.HasDisp {
		part()
		b = hfmt.Appendf(b, "%d", x.Disp)
	}

	return append(b, ']')
}
