package liveness

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/set"
)

type (
	// Info is live register sets at block boundaries of a function.
	Info struct {
		regs  []asm.Register
		index map[asm.Register]int

		labels map[intern.Ident]int

		in  []set.Bitmap
		out []set.Bitmap
	}

	block struct {
		use, def set.Bitmap
		phiUse   set.Bitmap

		succ  []int
		preds []int
	}

	worklist struct {
		heap.Heap[int]

		queued set.Bitmap
	}
)

// Analyze computes live-in and live-out registers of every block of fn.
// Phi destinations are defined at the start of their block,
// phi sources are live at the end of the named predecessor.
func Analyze(ctx context.Context, fn *asm.Fn) (_ *Info, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "liveness", "blocks", len(fn.Blocks()))
	defer tr.Finish("err", &err)

	err = fn.CheckSuccessors()
	if err != nil {
		return nil, errors.Wrap(err, "successors")
	}

	x := &Info{
		index:  map[asm.Register]int{},
		labels: map[intern.Ident]int{},
	}

	blocks := fn.Blocks()

	for i, b := range blocks {
		if _, ok := x.labels[b.Label()]; !ok {
			x.labels[b.Label()] = i
		}
	}

	bs := make([]block, len(blocks))

	for i, b := range blocks {
		x.local(&bs[i], b)
	}

	for i, b := range blocks {
		for _, s := range b.UniqueSuccessors() {
			j := x.labels[s]

			bs[i].succ = append(bs[i].succ, j)
			bs[j].preds = append(bs[j].preds, i)
		}

		for _, phi := range b.Phis() {
			for _, src := range phi.Srcs {
				r, ok := src.Value.(ir.Reg)
				if !ok {
					continue
				}

				p, ok := x.labels[src.Block]
				if !ok {
					return nil, errors.Wrap(asm.ErrNoBlock, "phi source block %d", src.Block)
				}

				bs[p].phiUse.Set(x.reg(asm.Virtual(intern.Ident(r))))
			}
		}
	}

	x.in = make([]set.Bitmap, len(blocks))
	x.out = make([]set.Bitmap, len(blocks))

	w := worklist{Heap: heap.Heap[int]{Less: laterFirst}}

	for i := range blocks {
		w.push(i)
	}

	iters := 0

	for w.Len() != 0 {
		i := w.pop()
		b := &bs[i]

		iters++

		out := b.phiUse.Copy()

		for _, s := range b.succ {
			out.Or(x.in[s])
		}

		in := out.Copy()
		in.AndNot(b.def)
		in.Or(b.use)

		x.out[i] = out

		if x.in[i].Equal(in) {
			continue
		}

		x.in[i] = in

		tr.V("liveness_iter").Printw("block changed", "block", blocks[i].Label(), "in", in, "out", out)

		for _, p := range b.preds {
			w.push(p)
		}
	}

	tr.Printw("liveness done", "regs", len(x.regs), "iters", iters)

	return x, nil
}

func (x *Info) local(bl *block, b *asm.Block) {
	for _, phi := range b.Phis() {
		bl.def.Set(x.reg(asm.Virtual(intern.Ident(phi.Dst))))
	}

	for _, in := range b.Instructions() {
		for _, r := range in.Inputs() {
			id := x.reg(r)

			if !bl.def.IsSet(id) {
				bl.use.Set(id)
			}
		}

		for _, r := range in.Outputs() {
			bl.def.Set(x.reg(r))
		}
	}
}

func (x *Info) reg(r asm.Register) int {
	id, ok := x.index[r]
	if ok {
		return id
	}

	id = len(x.regs)

	x.index[r] = id
	x.regs = append(x.regs, r)

	return id
}

// LiveIn returns registers live at the start of the block.
// Order is the order of first appearance in the function.
func (x *Info) LiveIn(label intern.Ident) ([]asm.Register, bool) {
	i, ok := x.labels[label]
	if !ok {
		return nil, false
	}

	return x.regsOf(&x.in[i]), true
}

func (x *Info) LiveOut(label intern.Ident) ([]asm.Register, bool) {
	i, ok := x.labels[label]
	if !ok {
		return nil, false
	}

	return x.regsOf(&x.out[i]), true
}

// Registers returns every register mentioned by the function.
func (x *Info) Registers() []asm.Register { return x.regs }

func (x *Info) regsOf(s *set.Bitmap) []asm.Register {
	var l []asm.Register

	s.Range(func(i int) bool {
		l = append(l, x.regs[i])
		return true
	})

	return l
}

func (w *worklist) push(i int) {
	if w.queued.IsSet(i) {
		return
	}

	w.queued.Set(i)
	w.Heap.Push(i)
}

func (w *worklist) pop() int {
	i := w.Heap.Pop()
	w.queued.Clear(i)

	return i
}

// laterFirst pops blocks in reverse emission order which suits backward flow.
func laterFirst(d []int, i, j int) bool {
	return d[i] > d[j]
}
