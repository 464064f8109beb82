package load

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/backend/compiler/intern"
)

type (
	Interner interface {
		Intern(name string) intern.Ident
	}

	rulesDoc struct {
		Rules []ruleDoc `yaml:"rules"`
	}

	ruleDoc struct {
		Name  string       `yaml:"name"`
		Match []patternDoc `yaml:"match"`
		Last  *patternDoc  `yaml:"last"`
		Asm   [][]any      `yaml:"asm"`
	}

	patternDoc struct {
		Op     string   `yaml:"op"`
		Dst    string   `yaml:"dst"`
		Args   []string `yaml:"args"`
		Func   string   `yaml:"func"`
		List   string   `yaml:"list"`
		Labels []string `yaml:"labels"`
	}

	programDoc struct {
		Data  []string  `yaml:"data"`
		Funcs []funcDoc `yaml:"funcs"`
	}

	funcDoc struct {
		Name   string     `yaml:"name"`
		Args   []string   `yaml:"args"`
		Blocks []blockDoc `yaml:"blocks"`
	}

	blockDoc struct {
		Label string     `yaml:"label"`
		Phis  []phiDoc   `yaml:"phis"`
		Code  []instrDoc `yaml:"code"`
		Term  *instrDoc  `yaml:"term"`
	}

	phiDoc struct {
		Dst  string       `yaml:"dst"`
		From []phiSrcDoc `yaml:"from"`
	}

	phiSrcDoc struct {
		Block string `yaml:"block"`
		Value any    `yaml:"value"`
	}

	instrDoc struct {
		Op     string   `yaml:"op"`
		Dst    string   `yaml:"dst"`
		Args   []any    `yaml:"args"`
		Func   string   `yaml:"func"`
		Labels []string `yaml:"labels"`
	}
)

func readFile(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(data), "name", name)

	return data, nil
}

func decode(data []byte, v any) error {
	err := yaml.Unmarshal(data, v)
	if err != nil {
		return errors.Wrap(err, "decode yaml")
	}

	return nil
}
