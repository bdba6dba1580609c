package scripting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pagetree/internal/doctree"
)

func TestEvaluate_ReadsNodeProperties(t *testing.T) {
	n := doctree.NewElement("div")
	n.Props.Set("title", "Hello")

	v, err := NewExprEvaluator().Evaluate(context.Background(), n, "${this.title + ' world'}")
	require.NoError(t, err)
	assert.Equal(t, "Hello world", v)
}

func TestEvaluate_SetWritesProperty(t *testing.T) {
	n := doctree.NewElement("script")
	script := `
// mark the node
set("processed", true)
set("count", 1 + 2)
this.count * 2
`
	v, err := NewExprEvaluator().Evaluate(context.Background(), n, script)
	require.NoError(t, err)
	assert.Equal(t, 6, v)
	assert.True(t, n.Props.Bool("processed"))
}

func TestEvaluate_Unlicensed(t *testing.T) {
	e := NewExprEvaluator(WithUnlicensed("geocode"))
	_, err := e.Evaluate(context.Background(), nil, `geocode("Berlin")`)
	require.ErrorIs(t, err, ErrUnlicensed)

	_, err = e.Evaluate(context.Background(), nil, `sendMail("a@b.c", "hi")`)
	require.ErrorIs(t, err, ErrUnlicensed)
}

func TestEvaluate_CustomFunctionAndErrors(t *testing.T) {
	e := NewExprEvaluator(WithFunction("double", func(x int) int { return x * 2 }))
	v, err := e.Evaluate(context.Background(), nil, "double(21)")
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = e.Evaluate(context.Background(), nil, "undefinedThing + 1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnlicensed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Evaluate(ctx, nil, "1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatements(t *testing.T) {
	assert.Equal(t, []string{"a.b"}, Statements("${ a.b }"))
	assert.Equal(t, []string{"x", "y"}, Statements("x;\n\n// note\ny\n"))
	assert.Empty(t, Statements("   "))
}
