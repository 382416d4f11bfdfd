// Package dispatch defines the boundary between the workflow engine and the
// external action executor. The engine only ever sees the Dispatcher
// interface; concrete handlers (browser driver, test fakes) live behind it.
package dispatch

import (
	"context"
	"time"

	"github.com/pagerun/pagerun/pkg/schema"
)

// Request carries one resolved step action across the boundary. Selector and
// Value have already been through template substitution.
type Request struct {
	Action   string
	Selector string
	Value    schema.Value

	// Timeout is informational: the context passed to Dispatch is already
	// bounded by it. Handlers that talk to drivers with their own timeout
	// knobs (Playwright) forward it.
	Timeout time.Duration
}

// Dispatcher executes one action and returns its opaque output.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (schema.Value, error)
}

// Handler is a single registered action implementation.
type Handler interface {
	Name() string
	Description() string
	Execute(ctx context.Context, req Request) (schema.Value, error)
}

// Info is a summary of a registered handler for listing.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
