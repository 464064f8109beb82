package asm

import (
	"sync"

	"tlog.app/go/errors"
	"tlog.app/go/loc"

	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
)

type (
	// Line is an assembly line: Directive or Instruction.
	Line interface {
		line()
	}

	Directive string

	Block struct {
		label intern.Ident

		code []Line
		phis []ir.Phi

		succ []intern.Ident
	}

	// Fn is an ordered list of blocks.
	// Block order is emission order, not control flow order.
	Fn struct {
		args   []intern.Ident
		blocks []*Block
	}

	// Assembly is the output of instruction selection.
	// Emit methods are safe to call concurrently
	// when each function is selected by its own goroutine.
	Assembly struct {
		mu sync.Mutex

		data []string

		order []intern.Ident
		fns   map[intern.Ident]*Fn
	}
)

func NewBlock(label intern.Ident) *Block {
	return &Block{label: label}
}

func (b *Block) EmitInstruction(i Instruction) {
	b.code = append(b.code, i)
}

func (b *Block) EmitDirective(d string) {
	b.code = append(b.code, Directive(d))
}

func (b *Block) Label() intern.Ident { return b.label }

func (b *Block) Lines() []Line { return b.code }

func (b *Block) Len() int { return len(b.code) }

// Instructions returns instruction lines skipping directives.
func (b *Block) Instructions() []Instruction {
	l := make([]Instruction, 0, len(b.code))

	for _, x := range b.code {
		if i, ok := x.(Instruction); ok {
			l = append(l, i)
		}
	}

	return l
}

func (b *Block) Phis() []ir.Phi { return b.phis }

// SetPhis appends phis to the ones already set.
func (b *Block) SetPhis(phis ...ir.Phi) {
	b.phis = append(b.phis, phis...)
}

func (b *Block) Successors() []intern.Ident { return b.succ }

// AddSuccessors appends labels. Duplicates are kept.
func (b *Block) AddSuccessors(labels ...intern.Ident) {
	b.succ = append(b.succ, labels...)
}

// UniqueSuccessors is Successors without duplicates in first seen order.
func (b *Block) UniqueSuccessors() []intern.Ident {
	l := make([]intern.Ident, 0, len(b.succ))

outer:
	for _, s := range b.succ {
		for _, x := range l {
			if x == s {
				continue outer
			}
		}

		l = append(l, s)
	}

	return l
}

func NewFn(args []intern.Ident, blocks []*Block) *Fn {
	return &Fn{
		args:   args,
		blocks: blocks,
	}
}

func (f *Fn) EmitBlock(b *Block) {
	f.blocks = append(f.blocks, b)
}

func (f *Fn) Args() []intern.Ident { return f.args }

func (f *Fn) Blocks() []*Block { return f.blocks }

// GetBlock returns the first block labeled label.
func (f *Fn) GetBlock(label intern.Ident) (*Block, bool) {
	for _, b := range f.blocks {
		if b.label == label {
			return b, true
		}
	}

	return nil, false
}

// CheckSuccessors checks every successor label resolves to a block of f.
func (f *Fn) CheckSuccessors() error {
	for _, b := range f.blocks {
		for _, s := range b.succ {
			if _, ok := f.GetBlock(s); !ok {
				return errors.Wrap(ErrNoBlock, "block %d: successor %d", b.label, s)
			}
		}
	}

	return nil
}

func New() *Assembly {
	return &Assembly{
		fns: map[intern.Ident]*Fn{},
	}
}

func (a *Assembly) EmitData(line string) {
	defer a.mu.Unlock()
	a.mu.Lock()

	a.data = append(a.data, line)
}

// EmitFn inserts function name.
// Existing function with the same name is replaced silently
// and keeps its original position.
func (a *Assembly) EmitFn(name intern.Ident, args []intern.Ident, blocks []*Block) {
	defer a.mu.Unlock()
	a.mu.Lock()

	if _, ok := a.fns[name]; !ok {
		a.order = append(a.order, name)
	}

	a.fns[name] = NewFn(args, blocks)
}

// GetFn returns the function emitted under name.
// Missing function is an InternalError: every reference must be checked upstream.
func (a *Assembly) GetFn(name intern.Ident) (*Fn, error) {
	defer a.mu.Unlock()
	a.mu.Lock()

	f, ok := a.fns[name]
	if !ok {
		return nil, &InternalError{Err: ErrNoFunc, Name: name, From: loc.Caller(1)}
	}

	return f, nil
}

func (a *Assembly) Data() []string {
	defer a.mu.Unlock()
	a.mu.Lock()

	return a.data
}

// Names returns function names in first emitted order.
func (a *Assembly) Names() []intern.Ident {
	defer a.mu.Unlock()
	a.mu.Lock()

	return append([]intern.Ident{}, a.order...)
}

// Fns returns functions in first emitted order.
func (a *Assembly) Fns() []*Fn {
	defer a.mu.Unlock()
	a.mu.Lock()

	l := make([]*Fn, len(a.order))

	for i, name := range a.order {
		l[i] = a.fns[name]
	}

	return l
}

func (Directive) line()   {}
func (Instruction) line() {}
