package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerun/pagerun/pkg/schema"
)

func TestManager_SetGetLookup(t *testing.T) {
	m := NewManager(nil)
	m.Set("name", schema.StringValue("alice"))

	v, ok := m.Lookup("name")
	require.True(t, ok)
	assert.Equal(t, "alice", v.Str())

	_, ok = m.Lookup("missing")
	assert.False(t, ok)

	def := schema.NumberValue(42)
	assert.Equal(t, def, m.Get("missing", def))
}

func TestManager_SeedAndBulkSet(t *testing.T) {
	m := NewManager(map[string]schema.Value{
		"a": schema.NumberValue(1),
	})
	m.BulkSet(map[string]schema.Value{
		"b": schema.StringValue("two"),
		"a": schema.NumberValue(10),
	})

	vars := m.List()
	require.Len(t, vars, 2)
	assert.Equal(t, float64(10), vars["a"].Num())
	assert.Equal(t, "two", vars["b"].Str())
}

func TestSubstitute_RoundTrip(t *testing.T) {
	m := NewManager(nil)
	m.Set("username", schema.StringValue("alice"))

	assert.Equal(t, "Hello alice", m.Substitute("Hello {{username}}"))
}

func TestSubstitute_UnresolvedTokenLeftVerbatim(t *testing.T) {
	m := NewManager(nil)

	assert.Equal(t, "Hello {{missing}}", m.Substitute("Hello {{missing}}"))
}

func TestSubstitute_MixedTokens(t *testing.T) {
	m := NewManager(nil)
	m.Set("user", schema.StringValue("bob"))
	m.Set("count", schema.NumberValue(3))

	out := m.Substitute("{{user}} has {{count}} items in {{cart}}")
	assert.Equal(t, "bob has 3 items in {{cart}}", out)
}

func TestSubstitute_UnterminatedToken(t *testing.T) {
	m := NewManager(nil)
	m.Set("a", schema.StringValue("x"))

	assert.Equal(t, "x then {{broken", m.Substitute("{{a}} then {{broken"))
}

func TestSubstitute_NumberRendering(t *testing.T) {
	m := NewManager(nil)
	m.Set("n", schema.NumberValue(5))
	m.Set("f", schema.NumberValue(2.5))

	assert.Equal(t, "n=5 f=2.5", m.Substitute("n={{n}} f={{f}}"))
}

func TestSubstituteValue_Recursive(t *testing.T) {
	m := NewManager(nil)
	m.Set("host", schema.StringValue("x.test"))

	in := schema.MapValue(map[string]schema.Value{
		"url":  schema.StringValue("https://{{host}}/login"),
		"tags": schema.ListValue(schema.StringValue("{{host}}"), schema.NumberValue(1)),
	})
	out := m.SubstituteValue(in)

	assert.Equal(t, "https://x.test/login", out.Map()["url"].Str())
	assert.Equal(t, "x.test", out.Map()["tags"].List()[0].Str())
	assert.Equal(t, float64(1), out.Map()["tags"].List()[1].Num())
}

func TestResolve_WholeTokenKeepsType(t *testing.T) {
	m := NewManager(nil)
	m.Set("items", schema.ListValue(schema.StringValue("a"), schema.StringValue("b")))
	m.Set("count", schema.NumberValue(7))

	resolved := m.Resolve(schema.StringValue("{{items}}"))
	require.Equal(t, schema.KindList, resolved.Kind())
	assert.Len(t, resolved.List(), 2)

	resolved = m.Resolve(schema.StringValue("{{count}}"))
	assert.Equal(t, schema.KindNumber, resolved.Kind())
}

func TestResolve_EmbeddedTokenRendersString(t *testing.T) {
	m := NewManager(nil)
	m.Set("count", schema.NumberValue(7))

	resolved := m.Resolve(schema.StringValue("count: {{count}}"))
	require.Equal(t, schema.KindString, resolved.Kind())
	assert.Equal(t, "count: 7", resolved.Str())
}

func TestPushScope_ShadowAndRestore(t *testing.T) {
	m := NewManager(map[string]schema.Value{
		"a": schema.StringValue("outer"),
	})

	restore := m.PushScope(map[string]schema.Value{
		"a": schema.StringValue("inner"),
		"b": schema.NumberValue(1),
	})

	v, _ := m.Lookup("a")
	assert.Equal(t, "inner", v.Str())
	_, ok := m.Lookup("b")
	assert.True(t, ok)

	restore()

	v, _ = m.Lookup("a")
	assert.Equal(t, "outer", v.Str())
	_, ok = m.Lookup("b")
	assert.False(t, ok, "variable absent before the scope must be removed")
}

func TestPushScope_EmptyOverridesIsNoop(t *testing.T) {
	m := NewManager(nil)
	m.Set("a", schema.StringValue("x"))

	restore := m.PushScope(nil)
	restore()

	v, ok := m.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "x", v.Str())
}
