package compiler

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/backend/compiler/instsel"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/load"
)

const expected = `.intel_syntax noprefix

.data
.align 4
counter: .quad 0

.text
.globl sum
sum:
sum.entry:
    jmp sum.loop

sum.loop:
    mov %i1, %i
    add %i1, 1
    cmp %i1, %n
    jl sum.loop
    jmp sum.exit

sum.exit:
    mov rax, %i1
    ret

.globl main
main:
main.entry:
    push 10
    call sum
    mov %r, rax
    mov rax, %r
    ret

`

func TestCompileFiles(t *testing.T) {
	ctx := context.Background()

	for _, workers := range []int{0, 1, 4} {
		text, err := CompileFiles(ctx, "testdata/rules.yaml", "testdata/prog.yaml", Options{Workers: workers})
		require.NoError(t, err)

		assert.Equal(t, expected, string(text), "workers %d", workers)
	}
}

func TestCompile(t *testing.T) {
	ctx := context.Background()
	names := intern.New()

	rules, err := load.RulesFile(ctx, names, "testdata/rules.yaml")
	require.NoError(t, err)

	prog, err := load.ProgramFile(ctx, names, "testdata/prog.yaml")
	require.NoError(t, err)

	a, err := Compile(ctx, names, prog, rules, Options{})
	require.NoError(t, err)

	assert.Equal(t, []intern.Ident{names.Intern("sum"), names.Intern("main")}, a.Names())

	f, err := a.GetFn(names.Intern("sum"))
	require.NoError(t, err)
	assert.Equal(t, []intern.Ident{names.Intern("n")}, f.Args())
	assert.NoError(t, f.CheckSuccessors())

	loop, ok := f.GetBlock(names.Intern("sum.loop"))
	require.True(t, ok)
	assert.Len(t, loop.Phis(), 1)
}

func TestCompileErrors(t *testing.T) {
	ctx := context.Background()
	names := intern.New()

	rules, err := load.RulesFile(ctx, names, "testdata/rules.yaml")
	require.NoError(t, err)

	dup := &ir.Program{Funcs: []*ir.Func{
		{Name: names.Intern("f"), Blocks: []ir.Block{{Label: names.Intern("a"), Term: ir.Ret{}}}},
		{Name: names.Intern("f"), Blocks: []ir.Block{{Label: names.Intern("b"), Term: ir.Ret{}}}},
	}}

	_, err = Compile(ctx, names, dup, rules, Options{})
	assert.ErrorIs(t, err, ErrDuplicateFunc)

	// no rule for void return
	prog := &ir.Program{Funcs: []*ir.Func{
		{Name: names.Intern("f"), Blocks: []ir.Block{{Label: names.Intern("a"), Term: ir.Ret{}}}},
		{Name: names.Intern("g"), Blocks: []ir.Block{{Label: names.Intern("b"), Term: ir.Ret{Value: ir.Imm(0)}}}},
	}}

	for _, workers := range []int{1, 2} {
		_, err = Compile(ctx, names, prog, rules, Options{Workers: workers})
		assert.ErrorIs(t, err, instsel.ErrNoRule)
	}

	_, err = CompileFiles(ctx, "testdata/missing.yaml", "testdata/prog.yaml", Options{})
	assert.Error(t, err)
}

const tmpRules = `
rules:
  - name: add_tmp
    match:
      - {op: add, dst: t, args: [a, b]}
    asm:
      - [mov, "%tmp", $a]
      - [add, "%tmp", $b]
      - [mov, $t, "%tmp"]

  - name: ret
    last: {op: ret, args: [v]}
    asm:
      - [mov, rax, $v]
      - [ret]
`

func TestCompileFreshRegsParallel(t *testing.T) {
	ctx := context.Background()

	const nfuncs, nadds = 16, 20

	compile := func(workers int) string {
		names := intern.New()

		rules, err := load.Rules(ctx, names, []byte(tmpRules))
		require.NoError(t, err)

		prog := &ir.Program{}
		x := names.Intern("x")

		for i := 0; i < nfuncs; i++ {
			fn := "f" + strconv.Itoa(i)

			b := ir.Block{Label: names.Intern(fn + ".entry")}
			prev := ir.Reg(x)

			for j := 0; j < nadds; j++ {
				dst := ir.Reg(names.Intern("v" + strconv.Itoa(j)))

				b.Code = append(b.Code, ir.Binary{Opcode: ir.OpAdd, Dst: dst, L: prev, R: ir.Reg(x)})
				prev = dst
			}

			b.Term = ir.Ret{Value: prev}

			prog.Funcs = append(prog.Funcs, &ir.Func{
				Name:   names.Intern(fn),
				Args:   []intern.Ident{x},
				Blocks: []ir.Block{b},
			})
		}

		a, err := Compile(ctx, names, prog, rules, Options{Workers: workers})
		require.NoError(t, err)

		return string(a.AppendText(nil, names))
	}

	seq := compile(1)

	assert.Equal(t, nfuncs, strings.Count(seq, "    mov %tmp.0, %x\n"))
	assert.Equal(t, nfuncs, strings.Count(seq, "    mov %tmp.19, %v18\n"))
	assert.NotContains(t, seq, "%tmp.20")

	for run := 0; run < 20; run++ {
		require.Equal(t, seq, compile(8), "run %d", run)
	}
}
