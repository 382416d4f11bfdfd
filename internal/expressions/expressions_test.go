package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEngine_Evaluate(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, `attempts < 3 && status == "ok"`, map[string]any{
		"attempts": 2.0,
		"status":   "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, "count * 2", map[string]any{"count": 5.0})
	require.NoError(t, err)
	assert.Equal(t, 10.0, out)
}

func TestExprEngine_UndefinedVariableIsNil(t *testing.T) {
	// Variables may be bound mid-run, so unknown identifiers must not be
	// compile errors.
	e := NewExprEngine()

	out, err := e.Evaluate(context.Background(), "missing == nil", map[string]any{})

	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestExprEngine_CompileError(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "1 +", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "expr compile error")
}

func TestExprEngine_EmptyExpression(t *testing.T) {
	e := NewExprEngine()

	_, err := e.Evaluate(context.Background(), "", nil)

	assert.Error(t, err)
}

func TestExprEngine_CachesPrograms(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	_, err := e.Evaluate(ctx, "x + 1", map[string]any{"x": 1.0})
	require.NoError(t, err)

	e.mu.RLock()
	_, cached := e.cache["x + 1"]
	e.mu.RUnlock()
	assert.True(t, cached)

	out, err := e.Evaluate(ctx, "x + 1", map[string]any{"x": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out)
}

func TestCELEngine_Evaluate(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	out, err := e.Evaluate(ctx, `vars.attempts < 3`, map[string]any{"attempts": 2.0})
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = e.Evaluate(ctx, `vars.status == "ok"`, map[string]any{"status": "failed"})
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestCELEngine_CompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "vars.", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "CEL compile error")
}

func TestCELEngine_UndeclaredIdentifierRejected(t *testing.T) {
	// CEL only sees the vars map; bare identifiers are compile errors.
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "attempts < 3", map[string]any{"attempts": 1.0})

	assert.Error(t, err)
}

func TestGoJQ_Apply(t *testing.T) {
	e := NewGoJQEngine()
	ctx := context.Background()
	input := map[string]any{
		"title": "Dashboard",
		"items": []any{
			map[string]any{"id": 1.0},
			map[string]any{"id": 2.0},
		},
	}

	out, err := e.Apply(ctx, ".title", input)
	require.NoError(t, err)
	assert.Equal(t, "Dashboard", out)

	out, err = e.Apply(ctx, ".items | length", input)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestGoJQ_MultipleOutputsCollected(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Apply(context.Background(), ".items[].id", map[string]any{
		"items": []any{
			map[string]any{"id": 1.0},
			map[string]any{"id": 2.0},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []any{1.0, 2.0}, out)
}

func TestGoJQ_NoOutputIsNil(t *testing.T) {
	e := NewGoJQEngine()

	out, err := e.Apply(context.Background(), "empty", map[string]any{})

	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestGoJQ_ParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Apply(context.Background(), ".[", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq parse error")
}

func TestGoJQ_RuntimeError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Apply(context.Background(), ".foo", "a string has no fields")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq evaluation failed")
}
