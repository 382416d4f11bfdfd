// Package conditions evaluates step-gating predicates. Conditions are a
// gating mechanism, not a failure point: every internal error resolves to
// false instead of propagating.
package conditions

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/pagerun/pagerun/internal/expressions"
	"github.com/pagerun/pagerun/internal/variables"
	"github.com/pagerun/pagerun/pkg/schema"
)

// Evaluator evaluates structured and expression-form conditions against a
// variable manager. Safe for concurrent use across runs.
type Evaluator struct {
	expr *expressions.ExprEngine
	cel  *expressions.CELEngine

	mu      sync.RWMutex
	regexps map[string]*regexp.Regexp
}

// NewEvaluator creates an Evaluator. The CEL engine is optional: when its
// construction fails, cel-form conditions evaluate to false.
func NewEvaluator() *Evaluator {
	celEngine, _ := expressions.NewCELEngine()
	return &Evaluator{
		expr:    expressions.NewExprEngine(),
		cel:     celEngine,
		regexps: make(map[string]*regexp.Regexp),
	}
}

// Evaluate returns true only when every condition in the set holds
// (logical AND; OR composition is deliberately not part of the format).
// An empty set is vacuously true.
func (e *Evaluator) Evaluate(ctx context.Context, set schema.ConditionSet, vars *variables.Manager) bool {
	for i := range set {
		if !e.evaluateOne(ctx, &set[i], vars) {
			return false
		}
	}
	return true
}

// evaluateOne evaluates a single condition. The structured form wins when
// both forms are present.
func (e *Evaluator) evaluateOne(ctx context.Context, c *schema.Condition, vars *variables.Manager) bool {
	if c.Operator != "" {
		return e.evaluateStructured(c, vars)
	}
	if c.Expression != "" {
		return e.evaluateExpression(ctx, c, vars)
	}
	return false
}

func (e *Evaluator) evaluateStructured(c *schema.Condition, vars *variables.Manager) bool {
	// Existence operators inspect the raw left operand, not its resolution.
	switch c.Operator {
	case schema.OpExists:
		return e.exists(c.Left, vars)
	case schema.OpNotExists:
		return !e.exists(c.Left, vars)
	}

	left := vars.Resolve(c.Left)

	switch c.Operator {
	case schema.OpIsTrue:
		return left.Truthy()
	case schema.OpIsFalse:
		return !left.Truthy()
	}

	right := vars.Resolve(c.Right)

	switch c.Operator {
	case schema.OpEqual:
		return left.Equal(right)
	case schema.OpNotEqual:
		return !left.Equal(right)

	case schema.OpGreater, schema.OpGreaterOrEqual, schema.OpLess, schema.OpLessOrEqual:
		lf, lok := left.AsFloat()
		rf, rok := right.AsFloat()
		if !lok || !rok {
			return false
		}
		switch c.Operator {
		case schema.OpGreater:
			return lf > rf
		case schema.OpGreaterOrEqual:
			return lf >= rf
		case schema.OpLess:
			return lf < rf
		default:
			return lf <= rf
		}

	case schema.OpContains, schema.OpNotContains, schema.OpStartsWith, schema.OpEndsWith, schema.OpMatches:
		if left.Kind() != schema.KindString || right.Kind() != schema.KindString {
			return false
		}
		ls, rs := left.Str(), right.Str()
		switch c.Operator {
		case schema.OpContains:
			return strings.Contains(ls, rs)
		case schema.OpNotContains:
			return !strings.Contains(ls, rs)
		case schema.OpStartsWith:
			return strings.HasPrefix(ls, rs)
		case schema.OpEndsWith:
			return strings.HasSuffix(ls, rs)
		default:
			re := e.compile(rs)
			return re != nil && re.MatchString(ls)
		}

	case schema.OpIn, schema.OpNotIn:
		seq := membershipList(right)
		if seq == nil {
			return false
		}
		found := false
		for _, item := range seq {
			if left.Equal(item) {
				found = true
				break
			}
		}
		if c.Operator == schema.OpIn {
			return found
		}
		return !found
	}

	return false
}

// exists resolves the left operand to a variable name: either a bare name
// or a single {{name}} token.
func (e *Evaluator) exists(left schema.Value, vars *variables.Manager) bool {
	if left.Kind() != schema.KindString {
		return !left.IsNull()
	}
	name := strings.TrimSpace(left.Str())
	if strings.HasPrefix(name, "{{") && strings.HasSuffix(name, "}}") {
		name = strings.TrimSpace(name[2 : len(name)-2])
	}
	if name == "" {
		return false
	}
	_, ok := vars.Lookup(name)
	return ok
}

// evaluateExpression runs the expression form through the selected engine.
// Only a boolean true result satisfies the condition.
func (e *Evaluator) evaluateExpression(ctx context.Context, c *schema.Condition, vars *variables.Manager) bool {
	var engine expressions.Engine
	switch c.Engine {
	case "", "expr":
		engine = e.expr
	case "cel":
		if e.cel == nil {
			return false
		}
		engine = e.cel
	default:
		return false
	}

	out, err := engine.Evaluate(ctx, c.Expression, vars.Snapshot())
	if err != nil {
		return false
	}
	b, ok := out.(bool)
	return ok && b
}

// compile returns a cached compiled regexp, or nil when the pattern is
// invalid (which the caller treats as a non-match).
func (e *Evaluator) compile(pattern string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.regexps[pattern]
	e.mu.RUnlock()
	if ok {
		return re
	}

	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}

	e.mu.Lock()
	e.regexps[pattern] = compiled
	e.mu.Unlock()
	return compiled
}

// membershipList widens the right operand of in/not_in to a []Value.
// Strings are parsed as a JSON array when possible, otherwise comma-split.
func membershipList(v schema.Value) []schema.Value {
	switch v.Kind() {
	case schema.KindList:
		return v.List()
	case schema.KindString:
		s := strings.TrimSpace(v.Str())
		if strings.HasPrefix(s, "[") {
			var parsed schema.Value
			if err := parsed.UnmarshalJSON([]byte(s)); err == nil && parsed.Kind() == schema.KindList {
				return parsed.List()
			}
		}
		if s == "" {
			return nil
		}
		parts := strings.Split(s, ",")
		out := make([]schema.Value, len(parts))
		for i, p := range parts {
			out[i] = schema.StringValue(strings.TrimSpace(p))
		}
		return out
	default:
		return nil
	}
}
