package validation

import (
	"fmt"
	"strings"

	"github.com/pagerun/pagerun/pkg/schema"
)

// validateGraph detects control-flow cycles formed by next_step jumps.
// Each step has exactly one successor: its next_step target when set,
// otherwise the step that follows it in document order. A workflow with
// max_step_visits > 0 opts into bounded revisiting, so cycle detection
// is skipped and a warning notes the bounded loop instead.
func validateGraph(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if len(wf.Steps) == 0 {
		return result
	}

	index := make(map[string]int, len(wf.Steps))
	for i, s := range wf.Steps {
		index[s.Name] = i
	}

	// successor[i] is the next step index, or -1 for workflow exit.
	successor := make([]int, len(wf.Steps))
	hasJump := false
	for i, s := range wf.Steps {
		if s.NextStep != "" {
			target, ok := index[s.NextStep]
			if !ok {
				// Dangling refs are reported by the semantic stage.
				successor[i] = -1
				continue
			}
			successor[i] = target
			hasJump = true
			continue
		}
		if i+1 < len(wf.Steps) {
			successor[i] = i + 1
		} else {
			successor[i] = -1
		}
	}

	if wf.MaxStepVisits > 0 {
		if hasJump {
			result.AddWarning("max_step_visits", schema.ErrCodeValidation,
				fmt.Sprintf("next_step cycles are permitted and bounded to %d visits per step", wf.MaxStepVisits))
		}
		return result
	}

	// Each node has at most one successor, so a walk from any unvisited
	// node either exits or closes a cycle on the current path.
	const (
		white = iota // unvisited
		gray         // on the current path
		black        // proven cycle-free
	)
	color := make([]int, len(wf.Steps))

	for start := range wf.Steps {
		if color[start] != white {
			continue
		}

		path := make([]int, 0, len(wf.Steps))
		node := start
		for node != -1 && color[node] == white {
			color[node] = gray
			path = append(path, node)
			node = successor[node]
		}

		if node != -1 && color[node] == gray {
			result.AddError("steps", schema.ErrCodeCycleDetected,
				fmt.Sprintf("next_step cycle detected: %s (set max_step_visits to permit bounded cycles)",
					cyclePath(wf, path, node)))
		}

		for _, n := range path {
			color[n] = black
		}
	}

	return result
}

// cyclePath renders the cycle portion of a walk as "a -> b -> c -> a".
func cyclePath(wf *schema.Workflow, path []int, entry int) string {
	var names []string
	inCycle := false
	for _, n := range path {
		if n == entry {
			inCycle = true
		}
		if inCycle {
			names = append(names, wf.Steps[n].Name)
		}
	}
	names = append(names, wf.Steps[entry].Name)
	return strings.Join(names, " -> ")
}
