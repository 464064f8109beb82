package compiler

import (
	"context"
	"sync"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/instsel"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/ir"
	"github.com/slowlang/backend/compiler/load"
	"github.com/slowlang/backend/compiler/rule"
)

type (
	Options struct {
		// Workers is the number of functions selected in parallel.
		// Zero or one means sequential.
		Workers int
	}
)

var ErrDuplicateFunc = errors.New("duplicate function")

// CompileFiles loads rules and program and returns assembly text.
func CompileFiles(ctx context.Context, rulesFile, progFile string, opts Options) (text []byte, err error) {
	names := intern.New()

	rules, err := load.RulesFile(ctx, names, rulesFile)
	if err != nil {
		return nil, errors.Wrap(err, "load rules")
	}

	prog, err := load.ProgramFile(ctx, names, progFile)
	if err != nil {
		return nil, errors.Wrap(err, "load program")
	}

	a, err := Compile(ctx, names, prog, rules, opts)
	if err != nil {
		return nil, err
	}

	return a.AppendText(nil, names), nil
}

// Compile selects instructions for every function of prog.
// Functions appear in the result in program order and template registers
// are numbered per function, so the output does not depend on Workers.
func Compile(ctx context.Context, names *intern.Table, prog *ir.Program, rules []rule.Rule, opts Options) (a *asm.Assembly, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "funcs", len(prog.Funcs), "rules", len(rules), "workers", opts.Workers)
	defer tr.Finish("err", &err)

	seen := map[intern.Ident]struct{}{}

	for _, f := range prog.Funcs {
		if _, ok := seen[f.Name]; ok {
			return nil, errors.Wrap(ErrDuplicateFunc, "%v", names.Name(f.Name))
		}

		seen[f.Name] = struct{}{}
	}

	eng, err := instsel.New(names, rules)
	if err != nil {
		return nil, errors.Wrap(err, "rules")
	}

	res, err := selectFuncs(ctx, eng, names, prog.Funcs, opts.Workers)
	if err != nil {
		return nil, err
	}

	a = asm.New()

	for _, d := range prog.Data {
		a.EmitData(d)
	}

	for i, f := range prog.Funcs {
		a.EmitFn(f.Name, f.Args, res[i])
	}

	return a, nil
}

// selectFuncs creates all fresh name scopes before selection starts
// so template registers are numbered per function the same way for any workers.
func selectFuncs(ctx context.Context, eng *instsel.Engine, names *intern.Table, funcs []*ir.Func, workers int) ([][]*asm.Block, error) {
	res := make([][]*asm.Block, len(funcs))
	errs := make([]error, len(funcs))

	scopes := make([]*intern.Scope, len(funcs))
	for i := range scopes {
		scopes[i] = names.Scope()
	}

	if workers <= 1 {
		for i, f := range funcs {
			res[i], errs[i] = eng.SelectFuncIn(ctx, f, scopes[i])
			if errs[i] != nil {
				return nil, errors.Wrap(errs[i], "func %d", i)
			}
		}

		return res, nil
	}

	var wg sync.WaitGroup

	sem := make(chan struct{}, workers)

	for i, f := range funcs {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, f *ir.Func) {
			defer wg.Done()
			defer func() { <-sem }()

			res[i], errs[i] = eng.SelectFuncIn(ctx, f, scopes[i])
		}(i, f)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrap(err, "func %d", i)
		}
	}

	return res, nil
}
