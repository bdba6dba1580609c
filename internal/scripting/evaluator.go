// Package scripting evaluates template expressions and script directives
// against a document node.
package scripting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/expr-lang/expr"

	"github.com/dgallion1/pagetree/internal/doctree"
)

// ErrUnlicensed is returned when a script calls a function that is not
// available in this installation.
var ErrUnlicensed = errors.New("function not licensed")

// ExprEvaluator runs expressions with expr-lang. A script is a sequence of
// expressions, one per line; the value of the last one is returned.
type ExprEvaluator struct {
	funcs      map[string]any
	unlicensed []string
	log        *slog.Logger
}

// Option configures an ExprEvaluator.
type Option func(*ExprEvaluator)

// WithFunction makes fn callable by name.
func WithFunction(name string, fn any) Option {
	return func(e *ExprEvaluator) { e.funcs[name] = fn }
}

// WithUnlicensed registers function names that fail with ErrUnlicensed.
func WithUnlicensed(names ...string) Option {
	return func(e *ExprEvaluator) { e.unlicensed = append(e.unlicensed, names...) }
}

// WithLogger sets the logger used by the log() script function.
func WithLogger(log *slog.Logger) Option {
	return func(e *ExprEvaluator) { e.log = log }
}

func NewExprEvaluator(opts ...Option) *ExprEvaluator {
	e := &ExprEvaluator{
		funcs:      make(map[string]any),
		unlicensed: []string{"sendMail", "exec", "schedule"},
	}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e
}

type evalState struct {
	unlicensed string
}

// Evaluate runs source with node in scope. source may be a bare script or
// a single ${...} region. set(key, value) writes a property on node.
func (e *ExprEvaluator) Evaluate(ctx context.Context, node *doctree.Node, source string) (any, error) {
	st := &evalState{}
	env := e.env(node, st)

	var result any
	for _, stmt := range Statements(source) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		program, err := expr.Compile(stmt, expr.Env(env))
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", stmt, err)
		}
		out, err := expr.Run(program, env)
		if st.unlicensed != "" {
			return nil, fmt.Errorf("%s: %w", st.unlicensed, ErrUnlicensed)
		}
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", stmt, err)
		}
		result = out
	}
	return result, nil
}

func (e *ExprEvaluator) env(node *doctree.Node, st *evalState) map[string]any {
	this := map[string]any{}
	if node != nil {
		this = node.Props.Map()
		this["id"] = node.ID
		this["kind"] = string(node.Kind)
		this["name"] = node.Name
		this["tag"] = node.Tag
	}

	env := map[string]any{
		"this": this,
		"now":  func() time.Time { return time.Now().UTC() },
		"set": func(key string, value any) any {
			if node != nil {
				node.Props.Set(key, value)
			}
			this[key] = value
			return value
		},
		"log": func(args ...any) any {
			e.log.Info("script log", "node", nodeID(node), "args", args)
			return nil
		},
	}
	for name, fn := range e.funcs {
		env[name] = fn
	}
	for _, name := range e.unlicensed {
		env[name] = func(args ...any) any {
			if st.unlicensed == "" {
				st.unlicensed = name
			}
			return nil
		}
	}
	return env
}

// Statements splits a script into expressions. A ${...} wrapper is
// removed; blank lines and // comment lines are skipped.
func Statements(source string) []string {
	s := strings.TrimSpace(source)
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		s = strings.TrimSpace(s[2 : len(s)-1])
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, ";"))
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func nodeID(n *doctree.Node) string {
	if n == nil {
		return ""
	}
	return n.ID
}
