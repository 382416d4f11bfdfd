package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagerun/pagerun/pkg/schema"
)

type stubHandler struct {
	name string
	desc string
	fn   func(ctx context.Context, req Request) (schema.Value, error)
}

func (h *stubHandler) Name() string        { return h.name }
func (h *stubHandler) Description() string { return h.desc }
func (h *stubHandler) Execute(ctx context.Context, req Request) (schema.Value, error) {
	if h.fn == nil {
		return schema.Value{}, nil
	}
	return h.fn(ctx, req)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	h := &stubHandler{name: "navigate"}

	require.NoError(t, r.Register(h))

	got, err := r.Get("navigate")
	require.NoError(t, err)
	assert.Equal(t, "navigate", got.Name())
	assert.True(t, r.Has("navigate"))
	assert.False(t, r.Has("click"))
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubHandler{name: "click"}))

	err := r.Register(&stubHandler{name: "click"})

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeConflict, perr.Code)
}

func TestRegistry_RegisterRejectsNilAndUnnamed(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&stubHandler{}))
}

func TestRegistry_GetUnknownAction(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("teleport")

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeActionUnavailable, perr.Code)
}

func TestRegistry_ListSortedByName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubHandler{name: "wait", desc: "pause"}))
	require.NoError(t, r.Register(&stubHandler{name: "click", desc: "press"}))
	require.NoError(t, r.Register(&stubHandler{name: "fill"}))

	infos := r.List()

	require.Len(t, infos, 3)
	assert.Equal(t, "click", infos[0].Name)
	assert.Equal(t, "fill", infos[1].Name)
	assert.Equal(t, "wait", infos[2].Name)
	assert.Equal(t, "press", infos[0].Description)
}

func TestRegistry_RegisterNamespace(t *testing.T) {
	r := NewRegistry()
	handlers := []Handler{
		&stubHandler{name: "navigate"},
		&stubHandler{name: "click"},
	}

	require.NoError(t, r.RegisterNamespace("browser", handlers))

	assert.True(t, r.Has("browser.navigate"))
	assert.True(t, r.Has("browser.click"))
	assert.False(t, r.Has("navigate"))
}

func TestRegistry_RegisterNamespaceEmptyPrefix(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterNamespace("", []Handler{&stubHandler{name: "x"}})

	assert.Error(t, err)
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	var got Request
	require.NoError(t, r.Register(&stubHandler{
		name: "fill",
		fn: func(_ context.Context, req Request) (schema.Value, error) {
			got = req
			return schema.StringValue("ok"), nil
		},
	}))

	out, err := r.Dispatch(context.Background(), Request{
		Action:   "fill",
		Selector: "#user",
		Value:    schema.StringValue("alice"),
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text())
	assert.Equal(t, "#user", got.Selector)
	assert.Equal(t, "alice", got.Value.Text())
}

func TestRegistry_DispatchUnknownAction(t *testing.T) {
	r := NewRegistry()

	_, err := r.Dispatch(context.Background(), Request{Action: "vanish"})

	require.Error(t, err)
	var perr *schema.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, schema.ErrCodeActionUnavailable, perr.Code)
}

func TestRegistry_DispatchPropagatesHandlerError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register(&stubHandler{
		name: "click",
		fn: func(context.Context, Request) (schema.Value, error) {
			return schema.Value{}, boom
		},
	}))

	_, err := r.Dispatch(context.Background(), Request{Action: "click"})

	assert.ErrorIs(t, err, boom)
}
