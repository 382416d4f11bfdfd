package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pagerun/pagerun/pkg/schema"
)

// Registry is a thread-safe action-name → handler table. It satisfies
// Dispatcher, which is how the engine resolves free-form action names
// without inheritance hierarchies.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Returns an error on duplicate name.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return schema.NewError(schema.ErrCodeValidation, "handler is nil")
	}
	name := h.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "handler name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "action %q already registered", name)
	}

	r.handlers[name] = h
	return nil
}

// RegisterNamespace bulk-registers handlers under a prefixed namespace,
// e.g. "browser.navigate".
func (r *Registry) RegisterNamespace(prefix string, handlers []Handler) error {
	if prefix == "" {
		return schema.NewError(schema.ErrCodeValidation, "namespace prefix is empty")
	}
	for _, h := range handlers {
		if err := r.Register(prefixed{prefix: prefix, Handler: h}); err != nil {
			return err
		}
	}
	return nil
}

// Get retrieves a handler by name.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeActionUnavailable, "action %q not registered", name)
	}
	return h, nil
}

// Has reports whether an action name is registered. Used by the semantic
// validator, which must not construct errors itself.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// List returns info for all registered handlers, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.handlers))
	for _, h := range r.handlers {
		infos = append(infos, Info{Name: h.Name(), Description: h.Description()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Dispatch resolves the action and executes it. Unknown action names are a
// dispatch failure (ACTION_UNAVAILABLE), subject to the step's error policy.
func (r *Registry) Dispatch(ctx context.Context, req Request) (schema.Value, error) {
	h, err := r.Get(req.Action)
	if err != nil {
		return schema.Value{}, err
	}
	return h.Execute(ctx, req)
}

var _ Dispatcher = (*Registry)(nil)

// prefixed wraps a handler with a namespaced name.
type prefixed struct {
	Handler
	prefix string
}

func (p prefixed) Name() string {
	return fmt.Sprintf("%s.%s", p.prefix, p.Handler.Name())
}
