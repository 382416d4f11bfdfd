package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/pagerun/pagerun/internal/store"
	"github.com/pagerun/pagerun/pkg/schema"
)

// handleRun validates and executes a workflow document.
func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, err := parseWorkflowArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if result := s.validator.Validate(wf); !result.Valid() {
		return marshalResult(map[string]any{
			"valid":  false,
			"issues": result.Errors,
		})
	}

	run := s.engine.NewRun(wf)

	if raw := mcp.ParseStringMap(req, "variables", nil); len(raw) > 0 {
		overrides := make(map[string]schema.Value, len(raw))
		for k, v := range raw {
			overrides[k] = schema.FromAny(v)
		}
		run.Variables().BulkSet(overrides)
	}

	return marshalResult(run.Execute(ctx))
}

// handleValidate runs the validation pipeline without executing.
func (s *Server) handleValidate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, err := parseWorkflowArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.validator.Validate(wf)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"issues":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleHistory lists past runs or fetches a single run by ID.
func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("run history is not enabled"), nil
	}

	if runID := req.GetString("run_id", ""); runID != "" {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("get run failed: %v", err)), nil
		}
		return marshalResult(run)
	}

	limit := req.GetInt("limit", 20)
	runs, err := s.store.ListRuns(ctx, store.RunFilter{
		Workflow: req.GetString("workflow", ""),
		Status:   schema.RunStatus(req.GetString("status", "")),
		Limit:    limit,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
	}

	// Traces are bulky; the list view only carries summaries.
	summaries := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		completed, failed, skipped := run.Trace.Counts()
		summary := map[string]any{
			"run_id":     run.RunID,
			"workflow":   run.Workflow,
			"status":     run.Status,
			"started_at": run.StartedAt,
			"steps": map[string]int{
				"completed": completed,
				"failed":    failed,
				"skipped":   skipped,
			},
		}
		if run.CompletedAt != nil {
			summary["completed_at"] = run.CompletedAt
		}
		if run.Error != nil {
			summary["error"] = run.Error.Message
		}
		summaries = append(summaries, summary)
	}
	return marshalResult(summaries)
}

// handleActions lists registered action handlers.
func (s *Server) handleActions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(s.registry.List())
}

// parseWorkflowArg decodes the required "workflow" object argument.
func parseWorkflowArg(req mcp.CallToolRequest) (*schema.Workflow, error) {
	raw := mcp.ParseStringMap(req, "workflow", nil)
	if len(raw) == 0 {
		return nil, fmt.Errorf("workflow is required")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}

	var wf schema.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("invalid workflow document: %w", err)
	}
	return &wf, nil
}

func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
