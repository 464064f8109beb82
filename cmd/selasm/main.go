package main

import (
	"context"
	"io"
	"os"

	"github.com/nikandfor/hacked/hfmt"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/backend/compiler"
	"github.com/slowlang/backend/compiler/asm"
	"github.com/slowlang/backend/compiler/format"
	"github.com/slowlang/backend/compiler/instsel"
	"github.com/slowlang/backend/compiler/intern"
	"github.com/slowlang/backend/compiler/liveness"
	"github.com/slowlang/backend/compiler/load"
)

func main() {
	checkCmd := &cli.Command{
		Name:        "check",
		Description: "check rule files",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	selectCmd := &cli.Command{
		Name:        "select",
		Description: "select instructions and print assembly",
		Action:      selectAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("rules", "", "rules file"),
			cli.NewFlag("workers", 1, "functions selected in parallel"),
			cli.NewFlag("out,o", "", "output file, stdout if empty"),
		},
	}

	liveCmd := &cli.Command{
		Name:        "live",
		Description: "select instructions and print live registers per block",
		Action:      liveAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("rules", "", "rules file"),
			cli.NewFlag("out,o", "", "output file, stdout if empty"),
		},
	}

	printCmd := &cli.Command{
		Name:        "print",
		Description: "print loaded programs",
		Action:      printAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "selasm",
		Description: "selasm is a rule based x86-64 instruction selector",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			checkCmd,
			selectCmd,
			liveCmd,
			printCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	tlog.SetVerbosity(c.String("verbosity"))

	return nil
}

func checkAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		names := intern.New()

		rules, err := load.RulesFile(ctx, names, a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		eng, err := instsel.New(names, rules)
		if err != nil {
			return errors.Wrap(err, "check %v", a)
		}

		tlog.Printw("rules ok", "file", a, "rules", eng.Rules())
	}

	return nil
}

func selectAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if c.String("rules") == "" {
		return errors.New("--rules required")
	}

	w, closer, err := output(c.String("out"))
	if err != nil {
		return err
	}

	defer closer(&err)

	opts := compiler.Options{
		Workers: c.Int("workers"),
	}

	for _, a := range c.Args {
		text, err := compiler.CompileFiles(ctx, c.String("rules"), a, opts)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		_, err = w.Write(text)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func liveAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	if c.String("rules") == "" {
		return errors.New("--rules required")
	}

	w, closer, err := output(c.String("out"))
	if err != nil {
		return err
	}

	defer closer(&err)

	for _, a := range c.Args {
		names := intern.New()

		rules, err := load.RulesFile(ctx, names, c.String("rules"))
		if err != nil {
			return errors.Wrap(err, "load rules")
		}

		prog, err := load.ProgramFile(ctx, names, a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		obj, err := compiler.Compile(ctx, names, prog, rules, compiler.Options{})
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		var b []byte

		for _, name := range obj.Names() {
			fn, err := obj.GetFn(name)
			if err != nil {
				return describe(err, names)
			}

			info, err := liveness.Analyze(ctx, fn)
			if err != nil {
				return errors.Wrap(err, "liveness %v", names.Name(name))
			}

			b = hfmt.Appendf(b, "%s:\n", names.Name(name))

			for _, bl := range fn.Blocks() {
				in, _ := info.LiveIn(bl.Label())
				out, _ := info.LiveOut(bl.Label())

				b = hfmt.Appendf(b, "    %-16s in: %s  out: %s\n", names.Name(bl.Label()), regs(in, names), regs(out, names))
			}
		}

		_, err = w.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func printAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		names := intern.New()

		prog, err := load.ProgramFile(ctx, names, a)
		if err != nil {
			return errors.Wrap(err, "load %v", a)
		}

		b, err := format.Program(ctx, nil, names, prog)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		_, err = os.Stdout.Write(b)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

// describe resolves identifiers of an internal error.
func describe(err error, names asm.Names) error {
	var ie *asm.InternalError
	if !errors.As(err, &ie) {
		return err
	}

	return errors.New("%s", ie.Describe(names))
}

func regs(l []asm.Register, names asm.Names) []byte {
	b := []byte{'['}

	for i, r := range l {
		if i != 0 {
			b = append(b, ' ')
		}

		b = r.AppendText(b, names)
	}

	return append(b, ']')
}

func output(name string) (io.Writer, func(*error), error) {
	if name == "" || name == "-" {
		return os.Stdout, func(*error) {}, nil
	}

	f, err := os.Create(name)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create output")
	}

	return f, func(errp *error) {
		e := f.Close()
		if *errp == nil && e != nil {
			*errp = errors.Wrap(e, "close output")
		}
	}, nil
}
