// Package expressions provides the pluggable expression engines used by
// expression-form conditions (expr, cel) and output extraction (jq).
package expressions

import "context"

// Engine evaluates an expression against a data environment.
// Three implementations: Expr (default condition logic), CEL (condition
// logic with a sandboxed environment), GoJQ (output extraction).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
