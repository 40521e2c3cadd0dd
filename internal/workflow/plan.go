// Package workflow contains Temporal workflow definitions.
//
// plan.go handles interception of update_plan tool calls: the model
// maintains a visible task plan the CLI renders alongside the turn status.
package workflow

import (
	"encoding/json"
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/turnrelay/engine/internal/models"
)

// PlanStep is one entry of the model-maintained plan.
type PlanStep struct {
	Step   string `json:"step"`
	Status string `json:"status"` // "pending", "in_progress", "completed"
}

// PlanState is the current plan, replaced wholesale on every update_plan call.
type PlanState struct {
	Explanation string     `json:"explanation,omitempty"`
	Steps       []PlanStep `json:"steps"`
}

// validPlanStatuses are the accepted per-step statuses.
var validPlanStatuses = map[string]bool{
	"pending":     true,
	"in_progress": true,
	"completed":   true,
}

// handleUpdatePlan intercepts an update_plan tool call, validates the plan,
// stores it on the session, and returns a FunctionCallOutput item.
func (s *SessionState) handleUpdatePlan(ctx workflow.Context, fc models.ConversationItem) (models.ConversationItem, error) {
	logger := workflow.GetLogger(ctx)

	plan, err := parseUpdatePlanArgs(fc.Arguments)
	if err != nil {
		logger.Warn("Invalid update_plan args", "error", err)
		return failedCallOutput(fc.CallID, fmt.Sprintf("Invalid update_plan arguments: %v", err)), nil
	}

	s.Plan = plan
	logger.Info("Plan updated", "steps", len(plan.Steps))

	trueVal := true
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: fc.CallID,
		Output: &models.FunctionCallOutputPayload{
			Content: "Plan updated",
			Success: &trueVal,
		},
	}, nil
}

// parseUpdatePlanArgs validates the update_plan arguments: non-empty steps,
// known statuses, and at most one step in progress.
func parseUpdatePlanArgs(argsJSON string) (*PlanState, error) {
	var args struct {
		Explanation string     `json:"explanation"`
		Plan        []PlanStep `json:"plan"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(args.Plan) == 0 {
		return nil, fmt.Errorf("plan must not be empty")
	}

	inProgress := 0
	for i, step := range args.Plan {
		if step.Step == "" {
			return nil, fmt.Errorf("step %d: description is required", i+1)
		}
		if !validPlanStatuses[step.Status] {
			return nil, fmt.Errorf("step %d: invalid status %q", i+1, step.Status)
		}
		if step.Status == "in_progress" {
			inProgress++
		}
	}
	if inProgress > 1 {
		return nil, fmt.Errorf("at most one step can be in_progress, got %d", inProgress)
	}

	return &PlanState{Explanation: args.Explanation, Steps: args.Plan}, nil
}
