package validation

import (
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/pagerun/pagerun/pkg/schema"
)

// ActionLookup reports whether an action name is registered. The dispatch
// registry satisfies this interface.
type ActionLookup interface {
	Has(name string) bool
}

// maxNestingDepth bounds loop nesting during validation so that a
// pathologically deep document cannot blow the stack.
const maxNestingDepth = 16

// validateSemantic performs semantic analysis on the workflow.
// Checks: unique step names (including nested), action-or-loop exclusivity,
// next_step references, per-type loop configuration, condition well-formedness,
// and extract expression syntax.
func validateSemantic(wf *schema.Workflow, lookup ActionLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	// Top-level step names: next_step may only target these.
	topNames := make(map[string]bool, len(wf.Steps))
	for _, s := range wf.Steps {
		topNames[s.Name] = true
	}

	// All step names, including nested loop bodies, must be unique.
	seen := make(map[string]bool)

	for i := range wf.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		validateStepSemantic(&wf.Steps[i], path, topNames, seen, lookup, result, 0, false)
	}

	return result
}

// validateStepSemantic checks a single step and recurses into its loop body.
// nested is true for steps inside a loop's actions.
func validateStepSemantic(step *schema.Step, path string, topNames, seen map[string]bool, lookup ActionLookup, result *schema.ValidationResult, depth int, nested bool) {
	if seen[step.Name] {
		result.AddError(path+".name", schema.ErrCodeValidation,
			fmt.Sprintf("duplicate step name %q", step.Name))
	}
	seen[step.Name] = true

	// A step performs exactly one of: an action or a loop.
	switch {
	case step.Action == "" && step.Loop == nil:
		result.AddError(path, schema.ErrCodeValidation,
			fmt.Sprintf("step %q must declare an action or a loop", step.Name))
	case step.Action != "" && step.Loop != nil:
		result.AddError(path, schema.ErrCodeValidation,
			fmt.Sprintf("step %q declares both an action and a loop", step.Name))
	}

	// Action existence.
	if step.Action != "" && lookup != nil {
		if !lookup.Has(step.Action) {
			result.AddError(path+".action", schema.ErrCodeActionUnavailable,
				fmt.Sprintf("action %q not registered", step.Action))
		}
	}

	// next_step may only appear on top-level steps and must target one.
	if step.NextStep != "" {
		if nested {
			result.AddError(path+".next_step", schema.ErrCodeValidation,
				fmt.Sprintf("step %q is inside a loop body and cannot use next_step", step.Name))
		} else if !topNames[step.NextStep] {
			result.AddError(path+".next_step", schema.ErrCodeValidation,
				fmt.Sprintf("references non-existent step %q", step.NextStep))
		}
	}

	validateConditionSet(step.Condition, path+".condition", result)

	if step.Extract != "" {
		if _, err := gojq.Parse(step.Extract); err != nil {
			result.AddError(path+".extract", schema.ErrCodeValidation,
				fmt.Sprintf("invalid jq expression: %v", err))
		}
	}

	if step.Retry != nil && step.Retry.MaxAttempts > 10 {
		result.AddWarning(path+".retry.max_attempts", schema.ErrCodeValidation,
			fmt.Sprintf("high retry count (%d) may cause excessive delays", step.Retry.MaxAttempts))
	}

	if step.Loop != nil {
		if len(step.Condition) > 0 {
			result.AddWarning(path+".condition", schema.ErrCodeValidation,
				fmt.Sprintf("condition on step %q gates the entire loop, not individual iterations", step.Name))
		}
		validateLoop(step, path+".loop", topNames, seen, lookup, result, depth)
	}
}

// validateLoop checks per-type loop configuration and recurses into the body.
func validateLoop(step *schema.Step, path string, topNames, seen map[string]bool, lookup ActionLookup, result *schema.ValidationResult, depth int) {
	loop := step.Loop

	if depth >= maxNestingDepth {
		result.AddError(path, schema.ErrCodeValidation,
			fmt.Sprintf("loop nesting exceeds maximum depth of %d", maxNestingDepth))
		return
	}

	switch loop.Type {
	case schema.LoopFor:
		if loop.Var == "" {
			result.AddError(path+".var", schema.ErrCodeValidation,
				"for loop requires a var name")
		}
		if loop.Step != 0 {
			if loop.Step > 0 && loop.End < loop.Start {
				result.AddWarning(path+".step", schema.ErrCodeValidation,
					"positive step with end < start produces zero iterations")
			}
			if loop.Step < 0 && loop.End > loop.Start {
				result.AddWarning(path+".step", schema.ErrCodeValidation,
					"negative step with end > start produces zero iterations")
			}
		}
	case schema.LoopForEach:
		if loop.Var == "" {
			result.AddError(path+".var", schema.ErrCodeValidation,
				"for_each loop requires a var name")
		}
		if loop.Items.IsNull() {
			result.AddError(path+".items", schema.ErrCodeValidation,
				"for_each loop requires items")
		}
	case schema.LoopWhile, schema.LoopDoWhile, schema.LoopUntil:
		if len(loop.Condition) == 0 {
			result.AddError(path+".condition", schema.ErrCodeValidation,
				fmt.Sprintf("%s loop requires a condition", loop.Type))
		}
		for i := range loop.Condition {
			validateCondition(&loop.Condition[i], fmt.Sprintf("%s.condition[%d]", path, i), result)
		}
	case schema.LoopRepeat:
		if loop.Times < 1 {
			result.AddError(path+".times", schema.ErrCodeValidation,
				"repeat loop requires times >= 1")
		}
	default:
		result.AddError(path+".type", schema.ErrCodeValidation,
			fmt.Sprintf("unknown loop type %q", loop.Type))
	}

	if len(loop.Actions) == 0 {
		result.AddError(path+".actions", schema.ErrCodeValidation,
			"loop requires at least one action step")
	}

	for i := range loop.Actions {
		childPath := fmt.Sprintf("%s.actions[%d]", path, i)
		validateStepSemantic(&loop.Actions[i], childPath, topNames, seen, lookup, result, depth+1, true)
	}
}

// validateConditionSet checks every condition in a set.
func validateConditionSet(set schema.ConditionSet, path string, result *schema.ValidationResult) {
	for i := range set {
		p := path
		if len(set) > 1 {
			p = fmt.Sprintf("%s[%d]", path, i)
		}
		validateCondition(&set[i], p, result)
	}
}

// validateCondition checks a single condition for well-formedness: exactly
// one of the structured form or the expression form, with a known operator.
func validateCondition(c *schema.Condition, path string, result *schema.ValidationResult) {
	structured := c.Operator != "" || !c.Left.IsNull() || !c.Right.IsNull()

	if c.Expression != "" && structured {
		result.AddError(path, schema.ErrCodeValidation,
			"condition mixes expression and operator forms")
		return
	}

	if c.Expression == "" && !structured {
		result.AddError(path, schema.ErrCodeValidation,
			"condition requires an operator or an expression")
		return
	}

	if c.Expression != "" {
		switch c.Engine {
		case "", "expr", "cel":
		default:
			result.AddError(path+".engine", schema.ErrCodeValidation,
				fmt.Sprintf("unknown expression engine %q", c.Engine))
		}
		return
	}

	if c.Operator == "" {
		result.AddError(path+".operator", schema.ErrCodeValidation,
			"condition requires an operator")
		return
	}

	if !validOperator(c.Operator) {
		result.AddError(path+".operator", schema.ErrCodeValidation,
			fmt.Sprintf("unknown operator %q", c.Operator))
	}
}

func validOperator(op schema.Operator) bool {
	for _, known := range schema.Operators {
		if op == known {
			return true
		}
	}
	return false
}
