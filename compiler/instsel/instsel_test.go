package instsel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/rule"
)

type env struct {
	*intern.Table
}

func (e env) id(s string) intern.Ident { return e.Intern(s) }

func (e env) reg(s string) ir.Reg { return ir.Reg(e.Intern(s)) }

func (e env) v(s string) asm.Register { return asm.Virtual(e.Intern(s)) }

func (e env) instr(m string, args ...rule.AsmArg) rule.AsmInstr {
	return rule.AsmInstr{Mnemonic: e.id(m), Args: args}
}

func (e env) ref(s string) rule.IrArgRef { return rule.IrArgRef(e.id(s)) }

func (e env) rules() []rule.Rule {
	return []rule.Rule{
		{
			Name: "add_rr",
			Pattern: rule.Pattern{IR: []rule.IrPattern{
				rule.Binary{Op: ir.OpAdd, Dst: rule.IrRegister(e.id("t1")), L: rule.Reg(e.id("a")), R: rule.Reg(e.id("b"))},
			}},
			Asm: []rule.AsmInstr{
				e.instr("mov", e.ref("t1"), e.ref("a")),
				e.instr("add", e.ref("t1"), e.ref("b")),
			},
		},
		{
			Name: "add_ri",
			Pattern: rule.Pattern{IR: []rule.IrPattern{
				rule.Binary{Op: ir.OpAdd, Dst: rule.IrRegister(e.id("t1")), L: rule.Reg(e.id("a")), R: rule.Lit(e.id("k"))},
			}},
			Asm: []rule.AsmInstr{
				e.instr("mov", e.ref("t1"), e.ref("a")),
				e.instr("add", e.ref("t1"), e.ref("k")),
			},
		},
		{
			Name: "lt_br",
			Pattern: rule.Pattern{
				IR: []rule.IrPattern{
					rule.Binary{Op: ir.OpLt, Dst: rule.IrRegister(e.id("c")), L: rule.Reg(e.id("x")), R: rule.Reg(e.id("y"))},
				},
				Last: rule.Br{Cond: rule.Reg(e.id("c")), Then: rule.IrLabel(e.id("T")), Else: rule.IrLabel(e.id("F"))},
			},
			Asm: []rule.AsmInstr{
				e.instr("cmp", e.ref("x"), e.ref("y")),
				e.instr("jl", rule.LabelRef(e.id("T"))),
				e.instr("jmp", rule.LabelRef(e.id("F"))),
			},
		},
		{
			Name: "load",
			Pattern: rule.Pattern{IR: []rule.IrPattern{
				rule.Load{Dst: rule.IrRegister(e.id("d")), Addr: rule.Reg(e.id("p"))},
			}},
			Asm: []rule.AsmInstr{
				e.instr("mov", e.ref("d"), rule.Indirect{Size: asm.QWord, Base: e.ref("p")}),
			},
		},
		{
			Name: "call",
			Pattern: rule.Pattern{IR: []rule.IrPattern{
				rule.Call{Dst: rule.IrRegister(e.id("r")), Func: e.id("f"), Args: e.id("args")},
			}},
			Asm: []rule.AsmInstr{
				e.instr("push", e.ref("args")),
				e.instr("call", e.ref("f")),
				e.instr("mov", e.ref("r"), rule.MachineReg(x86.RAX)),
			},
		},
		{
			Name: "neg",
			Pattern: rule.Pattern{IR: []rule.IrPattern{
				rule.Unary{Op: ir.OpNeg, Dst: rule.IrRegister(e.id("d")), X: rule.Reg(e.id("s"))},
			}},
			Asm: []rule.AsmInstr{
				e.instr("mov", rule.NewRegister(e.id("tmp")), e.ref("s")),
				e.instr("neg", e.ref("tmp")),
				e.instr("mov", e.ref("d"), e.ref("tmp")),
			},
		},
		{
			Name:    "jmp",
			Pattern: rule.Pattern{Last: rule.Jmp{Target: rule.IrLabel(e.id("L"))}},
			Asm:     []rule.AsmInstr{e.instr("jmp", rule.LabelRef(e.id("L")))},
		},
		{
			Name: "ret",
			Pattern: rule.Pattern{Last: rule.Ret{Value: &rule.IrArg{Kind: rule.RegisterArg, Name: e.id("v")}}},
			Asm: []rule.AsmInstr{
				e.instr("mov", rule.MachineReg(x86.RAX), e.ref("v")),
				e.instr("ret"),
			},
		},
		{
			Name:    "ret_void",
			Pattern: rule.Pattern{Last: rule.Ret{}},
			Asm:     []rule.AsmInstr{e.instr("ret")},
		},
	}
}

func TestEndToEndAdd(t *testing.T) {
	e := env{intern.New()}

	r := rule.Rule{
		Name: "add_inplace",
		Pattern: rule.Pattern{IR: []rule.IrPattern{
			rule.Binary{Op: ir.OpAdd, Dst: rule.IrRegister(e.id("t1")), L: rule.Reg(e.id("a")), R: rule.Reg(e.id("b"))},
		}},
		Asm: []rule.AsmInstr{
			e.instr("add", e.ref("t1"), e.ref("a")),
		},
	}

	require.NoError(t, r.Check(e))

	code := []ir.Instr{
		ir.Binary{Opcode: ir.OpAdd, Dst: e.reg("sum"), L: e.reg("x"), R: e.reg("y")},
	}

	bnd, n, ok := Match(&r, code, nil)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	l, err := Instantiate(e, e.Scope(), &r, bnd)
	require.NoError(t, err)
	require.Len(t, l, 1)

	in := l[0]

	assert.Equal(t, "add %sum, %x", in.Text(e))
	assert.Equal(t, []asm.Register{e.v("sum")}, in.Outputs())
	assert.Contains(t, in.Inputs(), e.v("x"))
	assert.Contains(t, in.Inputs(), e.v("sum"))
}

func TestMatch(t *testing.T) {
	e := env{intern.New()}

	rules := e.rules()
	addRR, addRI, ltBr := &rules[0], &rules[1], &rules[2]

	_, _, ok := Match(addRR, []ir.Instr{
		ir.Binary{Opcode: ir.OpAdd, Dst: e.reg("t"), L: e.reg("a"), R: ir.Imm(1)},
	}, nil)
	assert.False(t, ok, "literal against register pattern")

	bnd, _, ok := Match(addRI, []ir.Instr{
		ir.Binary{Opcode: ir.OpAdd, Dst: e.reg("t"), L: e.reg("a"), R: ir.Imm(1)},
	}, nil)
	require.True(t, ok)

	v, ok := bnd.Value(e.id("k"))
	assert.True(t, ok)
	assert.Equal(t, asm.Immediate(1), v)

	_, _, ok = Match(addRR, []ir.Instr{
		ir.Binary{Opcode: ir.OpSub, Dst: e.reg("t"), L: e.reg("a"), R: e.reg("b")},
	}, nil)
	assert.False(t, ok, "op mismatch")

	cmp := []ir.Instr{
		ir.Binary{Opcode: ir.OpLt, Dst: e.reg("c"), L: e.reg("i"), R: e.reg("n")},
	}
	br := ir.Br{Cond: e.reg("c"), Then: e.id("loop"), Else: e.id("done")}

	bnd, n, ok := Match(ltBr, cmp, br)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	v, _ = bnd.Value(e.id("T"))
	assert.Equal(t, asm.Label(e.id("loop")), v)

	// condition must be the compared register
	_, _, ok = Match(ltBr, cmp, ir.Br{Cond: e.reg("other"), Then: e.id("loop"), Else: e.id("done")})
	assert.False(t, ok)

	// terminator pattern must consume the block up to its end
	_, _, ok = Match(ltBr, append(cmp, cmp...), br)
	assert.False(t, ok)

	_, _, ok = Match(ltBr, cmp, nil)
	assert.False(t, ok)
}

func TestMatchRepeatedName(t *testing.T) {
	e := env{intern.New()}

	r := rule.Rule{
		Name: "add_sub",
		Pattern: rule.Pattern{IR: []rule.IrPattern{
			rule.Binary{Op: ir.OpAdd, Dst: rule.IrRegister(e.id("t")), L: rule.Reg(e.id("a")), R: rule.Reg(e.id("b"))},
			rule.Binary{Op: ir.OpSub, Dst: rule.IrRegister(e.id("u")), L: rule.Reg(e.id("t")), R: rule.Reg(e.id("c"))},
		}},
		Asm: []rule.AsmInstr{e.instr("nop")},
	}

	_, n, ok := Match(&r, []ir.Instr{
		ir.Binary{Opcode: ir.OpAdd, Dst: e.reg("t0"), L: e.reg("x"), R: e.reg("y")},
		ir.Binary{Opcode: ir.OpSub, Dst: e.reg("t1"), L: e.reg("t0"), R: e.reg("z")},
	}, nil)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, _, ok = Match(&r, []ir.Instr{
		ir.Binary{Opcode: ir.OpAdd, Dst: e.reg("t0"), L: e.reg("x"), R: e.reg("y")},
		ir.Binary{Opcode: ir.OpSub, Dst: e.reg("t1"), L: e.reg("x"), R: e.reg("z")},
	}, nil)
	assert.False(t, ok)
}

func TestSelectFunc(t *testing.T) {
	e := env{intern.New()}

	eng, err := New(e, e.rules())
	require.NoError(t, err)
	assert.Equal(t, 9, eng.Rules())

	f := &ir.Func{
		Name: e.id("sum"),
		Args: []intern.Ident{e.id("n")},
		Blocks: []ir.Block{
			{
				Label: e.id("entry"),
				Term:  ir.Jmp{Target: e.id("loop")},
			},
			{
				Label: e.id("loop"),
				Phis: []ir.Phi{{
					Dst: e.reg("i"),
					Srcs: []ir.PhiSrc{
						{Block: e.id("entry"), Value: ir.Imm(0)},
						{Block: e.id("loop"), Value: e.reg("i1")},
					},
				}},
				Code: []ir.Instr{
					ir.Binary{Opcode: ir.OpAdd, Dst: e.reg("i1"), L: e.reg("i"), R: ir.Imm(1)},
					ir.Binary{Opcode: ir.OpLt, Dst: e.reg("c"), L: e.reg("i1"), R: e.reg("n")},
				},
				Term: ir.Br{Cond: e.reg("c"), Then: e.id("loop"), Else: e.id("exit")},
			},
			{
				Label: e.id("exit"),
				Term:  ir.Ret{Value: e.reg("i1")},
			},
		},
	}

	blocks, err := eng.SelectFunc(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, blocks, 3)

	text := func(b *asm.Block) string { return string(b.AppendText(nil, e)) }

	assert.Equal(t, ".globl sum\nsum:\nentry:\n    jmp loop\n", text(blocks[0]))
	assert.Equal(t, "loop:\n    mov %i1, %i\n    add %i1, 1\n    cmp %i1, %n\n    jl loop\n    jmp exit\n", text(blocks[1]))
	assert.Equal(t, "exit:\n    mov rax, %i1\n    ret\n", text(blocks[2]))

	assert.Equal(t, []intern.Ident{e.id("loop")}, blocks[0].Successors())
	assert.Equal(t, []intern.Ident{e.id("loop"), e.id("exit")}, blocks[1].Successors())
	assert.Empty(t, blocks[2].Successors())

	assert.Len(t, blocks[1].Phis(), 1)
}

func TestSelectCallAndFresh(t *testing.T) {
	e := env{intern.New()}

	eng, err := New(e, e.rules())
	require.NoError(t, err)

	f := &ir.Func{
		Name: e.id("f"),
		Blocks: []ir.Block{{
			Label: e.id("f.entry"),
			Code: []ir.Instr{
				ir.Call{Dst: e.reg("r"), Func: e.id("g"), Args: []ir.Value{e.reg("a"), ir.Imm(7)}},
				ir.Unary{Opcode: ir.OpNeg, Dst: e.reg("x"), X: e.reg("r")},
				ir.Unary{Opcode: ir.OpNeg, Dst: e.reg("y"), X: e.reg("x")},
				ir.Load{Dst: e.reg("z"), Addr: e.reg("y")},
			},
			Term: ir.Ret{},
		}},
	}

	blocks, err := eng.SelectFunc(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, blocks, 1)

	assert.Equal(t, `.globl f
f:
f.entry:
    push 7
    push %a
    call g
    mov %r, rax
    mov %tmp.0, %r
    neg %tmp.0
    mov %x, %tmp.0
    mov %tmp.1, %x
    neg %tmp.1
    mov %y, %tmp.1
    mov %z, qword ptr [%y]
    ret
`, string(blocks[0].AppendText(nil, e)))
}

func TestSelectNoRule(t *testing.T) {
	e := env{intern.New()}

	eng, err := New(e, e.rules())
	require.NoError(t, err)

	f := &ir.Func{
		Name: e.id("f"),
		Blocks: []ir.Block{{
			Label: e.id("entry"),
			Code: []ir.Instr{
				ir.Binary{Opcode: ir.OpPow, Dst: e.reg("p"), L: e.reg("a"), R: e.reg("b")},
			},
		}},
	}

	_, err = eng.SelectFunc(context.Background(), f)
	assert.ErrorIs(t, err, ErrNoRule)

	f.Blocks[0].Code = nil
	f.Blocks[0].Term = ir.Br{Cond: e.reg("c"), Then: e.id("a"), Else: e.id("b")}

	_, err = eng.SelectFunc(context.Background(), f)
	assert.ErrorIs(t, err, ErrNoRule)
}

func TestNewChecksRules(t *testing.T) {
	e := env{intern.New()}

	rules := e.rules()
	rules[3].Asm = append(rules[3].Asm, e.instr("mov", e.ref("unbound"), e.ref("d")))

	_, err := New(e, rules)
	assert.ErrorIs(t, err, rule.ErrUnbound)
}

func TestInstantiateLiteral(t *testing.T) {
	e := env{intern.New()}

	r := rule.Rule{
		Name:    "ret",
		Pattern: rule.Pattern{Last: rule.Ret{}},
		Asm: []rule.AsmInstr{
			e.instr("mov", rule.MachineReg(x86.RDI), rule.Literal(e.id("0x10"))),
			e.instr("mov", rule.MachineReg(x86.RDI), rule.Literal(e.id("-16"))),
			e.instr("mov", rule.MachineReg(x86.RDI), rule.Literal(e.id("08"))),
			e.instr("lea", rule.MachineReg(x86.RSI), rule.Literal(e.id("msg"))),
			e.instr("mov", rule.NewRegister(e.id("p")), rule.Indirect{
				Base:    rule.MachineReg(x86.RBP),
				Index:   rule.NewRegister(e.id("p")),
				Scale:   8,
				Disp:    -16,
				HasDisp: true,
			}),
		},
	}

	require.NoError(t, r.Check(e))

	l, err := Instantiate(e, e.Scope(), &r, NewBindings())
	require.NoError(t, err)
	require.Len(t, l, 5)

	assert.Equal(t, asm.Address(e.id("0x10")), l[0].Args[1])
	assert.Equal(t, "mov rdi, 0x10", l[0].Text(e))
	assert.Equal(t, asm.Immediate(-16), l[1].Args[1])
	assert.Equal(t, asm.Address(e.id("08")), l[2].Args[1])
	assert.Equal(t, "mov rdi, 08", l[2].Text(e))
	assert.Equal(t, asm.Address(e.id("msg")), l[3].Args[1])
	assert.Equal(t, "mov %p.0, [rbp + %p.0 * 8 + -16]", l[4].Text(e))
}
