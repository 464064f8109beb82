package instsel

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/rule"
)

type (
	Symbols interface {
		Name(id intern.Ident) string
		Intern(name string) intern.Ident
		Scope() *intern.Scope
	}

	// Engine selects instructions for IR functions.
	// When several rules match at the same position the first one wins.
	Engine struct {
		names Symbols
		rules []compiled
	}

	compiled struct {
		*rule.Rule

		mnemonics []x86.Mnemonic
	}
)

var ErrNoRule = errors.New("no rule matches")

func New(names Symbols, rules []rule.Rule) (*Engine, error) {
	e := &Engine{
		names: names,
		rules: make([]compiled, len(rules)),
	}

	for i := range rules {
		r := &rules[i]

		err := r.Check(names)
		if err != nil {
			return nil, errors.Wrap(err, "rule %d %q", i, r.Name)
		}

		c := compiled{
			Rule:      r,
			mnemonics: make([]x86.Mnemonic, len(r.Asm)),
		}

		for j, in := range r.Asm {
			c.mnemonics[j], _ = x86.LookupMnemonic(names.Name(in.Mnemonic))
		}

		e.rules[i] = c
	}

	return e, nil
}

func (e *Engine) Rules() int { return len(e.rules) }

// SelectFunc returns assembly blocks in IR block order.
func (e *Engine) SelectFunc(ctx context.Context, f *ir.Func) ([]*asm.Block, error) {
	return e.SelectFuncIn(ctx, f, e.names.Scope())
}

// SelectFuncIn is SelectFunc taking template registers from fresh.
func (e *Engine) SelectFuncIn(ctx context.Context, f *ir.Func, fresh *intern.Scope) (blocks []*asm.Block, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "select func", "name", e.names.Name(f.Name), "blocks", len(f.Blocks))
	defer tr.Finish("err", &err)

	blocks = make([]*asm.Block, 0, len(f.Blocks))

	for i := range f.Blocks {
		b, err := e.SelectBlock(ctx, f, i, fresh)
		if err != nil {
			return nil, errors.Wrap(err, "block %v", e.names.Name(f.Blocks[i].Label))
		}

		blocks = append(blocks, b)
	}

	return blocks, nil
}

// SelectBlock selects the i-th block of f.
// The entry block is preceded by the function symbol.
func (e *Engine) SelectBlock(ctx context.Context, f *ir.Func, i int, fresh *intern.Scope) (_ *asm.Block, err error) {
	tr := tlog.SpanFromContext(ctx)

	irb := &f.Blocks[i]
	b := asm.NewBlock(irb.Label)

	if i == 0 {
		name := e.names.Name(f.Name)

		b.EmitDirective(".globl " + name)
		b.EmitDirective(name + ":")
	}

	b.EmitDirective(e.names.Name(irb.Label) + ":")

	b.SetPhis(irb.Phis...)

	pos := 0
	termDone := irb.Term == nil

	for pos < len(irb.Code) || !termDone {
		r, bnd, ok := e.match(irb, pos)
		if !ok {
			if pos < len(irb.Code) {
				return nil, errors.Wrap(ErrNoRule, "at %d: %v", pos, irb.Code[pos].Op())
			}

			return nil, errors.Wrap(ErrNoRule, "terminator %T", irb.Term)
		}

		tr.V("instsel_match").Printw("rule matched", "rule", r.Name, "block", irb.Label, "pos", pos, "len", len(r.Pattern.IR))

		err = e.instantiate(b, fresh, r, bnd)
		if err != nil {
			return nil, errors.Wrap(err, "rule %q at %d", r.Name, pos)
		}

		pos += len(r.Pattern.IR)

		if r.Pattern.Last != nil {
			termDone = true
		}
	}

	if irb.Term != nil {
		b.AddSuccessors(irb.Term.Successors()...)
	}

	return b, nil
}

func (e *Engine) match(irb *ir.Block, pos int) (*compiled, *Bindings, bool) {
	for i := range e.rules {
		r := &e.rules[i]

		bnd, n, ok := Match(r.Rule, irb.Code[pos:], irb.Term)
		if !ok {
			continue
		}

		if r.Pattern.Last == nil && n == 0 {
			continue
		}

		return r, bnd, true
	}

	return nil, nil, false
}

func (e *Engine) instantiate(b *asm.Block, fresh *intern.Scope, r *compiled, bnd *Bindings) error {
	l, err := instantiate(e.names, fresh, r.Rule, r.mnemonics, bnd)
	if err != nil {
		return err
	}

	for _, in := range l {
		b.EmitInstruction(in)
	}

	return nil
}
