package load

import (
	"context"
	"math"
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/asm/x86"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/rule"
)

var ErrSyntax = errors.New("bad rule syntax")

func RulesFile(ctx context.Context, names Interner, name string) ([]rule.Rule, error) {
	data, err := readFile(ctx, name)
	if err != nil {
		return nil, err
	}

	return Rules(ctx, names, data)
}

// Rules decodes a rule set.
// Pattern operands prefixed with # bind literals, others bind registers.
// Template operands: %x new register, $x pattern name, @x label,
// machine register names, maps for indirect operands, anything else is literal.
// A literal in canonical decimal form (8, -16) becomes an immediate,
// any other literal (0x10, 08, msg) is emitted verbatim.
// Indirect maps take size, base, index, scale (1, 2, 4, 8) and a 32-bit disp.
// Rules are not checked here.
func Rules(ctx context.Context, names Interner, data []byte) ([]rule.Rule, error) {
	var doc rulesDoc

	err := decode(data, &doc)
	if err != nil {
		return nil, err
	}

	rules := make([]rule.Rule, len(doc.Rules))

	for i, rd := range doc.Rules {
		rules[i], err = ruleFromDoc(names, rd)
		if err != nil {
			return nil, errors.Wrap(err, "rule %d %q", i, rd.Name)
		}
	}

	return rules, nil
}

func ruleFromDoc(names Interner, d ruleDoc) (r rule.Rule, err error) {
	r.Name = d.Name

	for i, p := range d.Match {
		x, err := patternFromDoc(names, p)
		if err != nil {
			return r, errors.Wrap(err, "match %d", i)
		}

		r.Pattern.IR = append(r.Pattern.IR, x)
	}

	if d.Last != nil {
		r.Pattern.Last, err = lastFromDoc(names, *d.Last)
		if err != nil {
			return r, errors.Wrap(err, "last")
		}
	}

	for i, line := range d.Asm {
		in, err := asmFromDoc(names, line)
		if err != nil {
			return r, errors.Wrap(err, "asm %d", i)
		}

		r.Asm = append(r.Asm, in)
	}

	return r, nil
}

func patternFromDoc(names Interner, d patternDoc) (rule.IrPattern, error) {
	op, ok := ir.LookupOp(d.Op)
	if !ok {
		return nil, errors.Wrap(ErrSyntax, "unknown op %q", d.Op)
	}

	dst := rule.IrRegister(names.Intern(d.Dst))

	args := make([]rule.IrArg, len(d.Args))

	for i, a := range d.Args {
		if name, ok := strings.CutPrefix(a, "#"); ok {
			args[i] = rule.Lit(names.Intern(name))
		} else {
			args[i] = rule.Reg(names.Intern(a))
		}
	}

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

		return rule.Binary{Op: op, Dst: dst, L: args[0], R: args[1]}, nil
	case op.IsUnary():
		if err := need(1); err != nil {
			return nil, err
		}

		return rule.Unary{Op: op, Dst: dst, X: args[0]}, nil
	}

	switch op {
	case ir.OpAlloca:
		if err := need(0); err != nil {
			return nil, err
		}

		return rule.Alloca{Dst: dst}, nil
	case ir.OpLoad:
		if err := need(1); err != nil {
			return nil, err
		}

		return rule.Load{Dst: dst, Addr: args[0]}, nil
	case ir.OpStore:
		if err := need(2); err != nil {
			return nil, err
		}

		return rule.Store{Addr: args[0], Value: args[1]}, nil
	case ir.OpCall:
		return rule.Call{Dst: dst, Func: names.Intern(d.Func), Args: names.Intern(d.List)}, nil
	}

	return nil, errors.Wrap(ErrSyntax, "unsupported op %v", op)
}

func lastFromDoc(names Interner, d patternDoc) (rule.IrPatternLast, error) {
	arg := func(a string) rule.IrArg {
		if name, ok := strings.CutPrefix(a, "#"); ok {
			return rule.Lit(names.Intern(name))
		}

		return rule.Reg(names.Intern(a))
	}

	switch d.Op {
	case "ret":
		switch len(d.Args) {
		case 0:
			return rule.Ret{}, nil
		case 1:
			v := arg(d.Args[0])
			return rule.Ret{Value: &v}, nil
		}
	case "br":
		if len(d.Args) == 1 && len(d.Labels) == 2 {
			return rule.Br{
				Cond: arg(d.Args[0]),
				Then: rule.IrLabel(names.Intern(d.Labels[0])),
				Else: rule.IrLabel(names.Intern(d.Labels[1])),
			}, nil
		}
	case "jmp":
		if len(d.Args) == 0 && len(d.Labels) == 1 {
			return rule.Jmp{Target: rule.IrLabel(names.Intern(d.Labels[0]))}, nil
		}
	default:
		return nil, errors.Wrap(ErrSyntax, "unknown terminator %q", d.Op)
	}

	return nil, errors.Wrap(ErrSyntax, "%v: bad operands", d.Op)
}

func asmFromDoc(names Interner, line []any) (in rule.AsmInstr, err error) {
	if len(line) == 0 {
		return in, errors.Wrap(ErrSyntax, "empty line")
	}

	m, ok := line[0].(string)
	if !ok {
		return in, errors.Wrap(ErrSyntax, "mnemonic expected, got %T", line[0])
	}

	in.Mnemonic = names.Intern(m)

	for i, a := range line[1:] {
		x, err := asmArgFromDoc(names, a)
		if err != nil {
			return in, errors.Wrap(err, "%v arg %d", m, i)
		}

		in.Args = append(in.Args, x)
	}

	return in, nil
}

func asmArgFromDoc(names Interner, a any) (rule.AsmArg, error) {
	switch a := a.(type) {
	case string:
		return operand(names, a), nil
	case int:
		return rule.Literal(names.Intern(strconv.Itoa(a))), nil
	case map[string]any:
		return indirectFromDoc(names, a)
	default:
		return nil, errors.Wrap(ErrSyntax, "unsupported operand %T", a)
	}
}

func operand(names Interner, s string) rule.AsmArg {
	if name, ok := strings.CutPrefix(s, "%"); ok {
		return rule.NewRegister(names.Intern(name))
	}

	if name, ok := strings.CutPrefix(s, "$"); ok {
		return rule.IrArgRef(names.Intern(name))
	}

	if name, ok := strings.CutPrefix(s, "@"); ok {
		return rule.LabelRef(names.Intern(name))
	}

	if r, ok := x86.LookupReg(s); ok {
		return rule.MachineReg(r)
	}

	return rule.Literal(names.Intern(s))
}

func indirectFromDoc(names Interner, m map[string]any) (rule.AsmArg, error) {
	var x rule.Indirect

	for k, v := range m {
		switch k {
		case "size":
			s, _ := v.(string)

			size, ok := asm.LookupSize(s)
			if !ok {
				return nil, errors.Wrap(ErrSyntax, "bad size %v", v)
			}

			x.Size = size
		case "base", "index":
			s, ok := v.(string)
			if !ok {
				return nil, errors.Wrap(ErrSyntax, "%v: register expected, got %T", k, v)
			}

			if k == "base" {
				x.Base = operand(names, s)
			} else {
				x.Index = operand(names, s)
			}
		case "scale":
			n, ok := v.(int)
			if !ok || n != 1 && n != 2 && n != 4 && n != 8 {
				return nil, errors.Wrap(ErrSyntax, "bad scale %v: 1, 2, 4 or 8 expected", v)
			}

			x.Scale = uint32(n)
		case "disp":
			n, ok := v.(int)
			if !ok || n < math.MinInt32 || n > math.MaxInt32 {
				return nil, errors.Wrap(ErrSyntax, "bad disp %v: 32-bit integer expected", v)
			}

			x.Disp = int32(n)
			x.HasDisp = true
		default:
			return nil, errors.Wrap(ErrSyntax, "unknown indirect field %q", k)
		}
	}

	return x, nil
}

