package asm

import (
	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/backend/compiler/intern"
)

type (
	// InternalError is a broken invariant of the pipeline:
	// selection or allocation produced something later stages cannot consume.
	// It is never recoverable within a compilation unit.
	InternalError struct {
		Err  error
		Reg  Register
		Name intern.Ident
		From loc.PC
	}
)

var (
	ErrVirtualRegister = errors.New("virtual register where machine one expected")
	ErrNoFunc          = errors.New("no such function")
	ErrNoBlock         = errors.New("no such block")
)

func (e *InternalError) Error() string {
	return string(e.appendText(nil, nil))
}

// Describe is Error with identifiers resolved by names.
func (e *InternalError) Describe(names Names) string {
	return string(e.appendText(nil, names))
}

func (e *InternalError) appendText(b []byte, names Names) []byte {
	b = hfmt.Appendf(b, "internal error: %v", e.Err)

	switch {
	case !e.Reg.IsZero():
		b = append(b, ": "...)
		b = e.Reg.appendDebug(b, names)
	case e.Name != intern.None && names != nil:
		b = hfmt.Appendf(b, ": %q", names.Name(e.Name))
	case e.Name != intern.None:
		b = hfmt.Appendf(b, ": ident %d", int(e.Name))
	}

	return hfmt.Appendf(b, " (at %v)", e.From)
}

func (e *InternalError) Unwrap() error { return e.Err }

func IsInternal(err error) bool {
	var ie *InternalError

	return errors.As(err, &ie)
}

func (r Register) appendDebug(b []byte, names Names) []byte {
	if r.kind == regVirtual && names == nil {
		return hfmt.Appendf(b, "%%%d", int(r.virt))
	}

	return r.AppendText(b, names)
}
