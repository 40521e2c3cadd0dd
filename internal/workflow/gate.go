// Package workflow contains Temporal workflow definitions.
//
// gate.go implements the ApprovalGate: the per-turn pipeline that decides,
// for each model-issued tool call, whether it runs immediately, waits for
// user approval, or is rejected outright. Decisions combine the session
// approval mode, the exec policy rules, and the session approval cache of
// commands the user already approved for the session.
package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/turnrelay/engine/internal/approval"
	"github.com/turnrelay/engine/internal/execpolicy"
	"github.com/turnrelay/engine/internal/models"
	"github.com/turnrelay/engine/internal/tools"
)

// ApprovalGate classifies tool calls and applies the user's approval
// decisions for one turn. Constructed per turn; the approval cache it
// borrows belongs to the session and outlives the gate.
type ApprovalGate struct {
	mode      models.ApprovalMode
	policyMgr *execpolicy.ExecPolicyManager // nil when no rules are loaded
	cache     *approval.Cache
}

// NewApprovalGate builds a gate from the session approval mode, the
// serialized exec policy rules, and the session approval cache.
func NewApprovalGate(mode models.ApprovalMode, policyRules string, cache *approval.Cache) *ApprovalGate {
	var policyMgr *execpolicy.ExecPolicyManager
	if policyRules != "" {
		if mgr, err := execpolicy.LoadExecPolicyFromSource(policyRules); err == nil {
			policyMgr = mgr
		}
	}
	if cache == nil {
		cache = approval.NewCache()
	}
	return &ApprovalGate{mode: mode, policyMgr: policyMgr, cache: cache}
}

// Classify splits the tool calls into those needing approval and those
// rejected outright. Calls in neither list are auto-approved.
func (g *ApprovalGate) Classify(functionCalls []models.ConversationItem) (pending []PendingApproval, forbidden []models.ConversationItem) {
	for _, fc := range functionCalls {
		// An escalated-permissions request under any mode other than
		// on-request is rejected with a fixed message the model knows to
		// retry without.
		if msg, rejected := g.rejectEscalation(fc); rejected {
			forbidden = append(forbidden, failedCallOutput(fc.CallID, msg))
			continue
		}

		req, reason := g.evaluateToolApproval(fc)
		switch req {
		case tools.ApprovalSkip:
			continue
		case tools.ApprovalNeeded:
			pending = append(pending, PendingApproval{
				CallID:    fc.CallID,
				ToolName:  fc.Name,
				Arguments: fc.Arguments,
				Reason:    reason,
			})
		case tools.ApprovalForbidden:
			msg := "This command is forbidden by exec policy."
			if reason != "" {
				msg = fmt.Sprintf("Forbidden: %s", reason)
			}
			forbidden = append(forbidden, failedCallOutput(fc.CallID, msg))
		}
	}
	return pending, forbidden
}

// ApplyDecision filters the calls by the user's response. CallIDs in
// Approved (or ApprovedForSession) pass through; everything else gets a
// denial output for the model. ApprovedForSession commands are also added
// to the session approval cache so identical invocations skip the prompt.
func (g *ApprovalGate) ApplyDecision(functionCalls []models.ConversationItem, resp *ApprovalResponse) (approved, denied []models.ConversationItem) {
	if resp == nil {
		// No response (interrupted) — deny everything.
		for _, fc := range functionCalls {
			denied = append(denied, failedCallOutput(fc.CallID, "Tool call was denied by the user."))
		}
		return nil, denied
	}

	approvedSet := make(map[string]bool, len(resp.Approved)+len(resp.ApprovedForSession))
	for _, id := range resp.Approved {
		approvedSet[id] = true
	}
	for _, id := range resp.ApprovedForSession {
		approvedSet[id] = true
	}
	sessionSet := make(map[string]bool, len(resp.ApprovedForSession))
	for _, id := range resp.ApprovedForSession {
		sessionSet[id] = true
	}

	for _, fc := range functionCalls {
		if !approvedSet[fc.CallID] {
			denied = append(denied, failedCallOutput(fc.CallID, "Tool call was denied by the user."))
			continue
		}
		if sessionSet[fc.CallID] {
			if argv, ok := commandVector(fc); ok {
				g.cache.Insert(argv)
			}
		}
		approved = append(approved, fc)
	}
	return approved, denied
}

// Cache exposes the gate's approval cache (for escalation outcomes that
// also carry ApprovedForSession).
func (g *ApprovalGate) Cache() *approval.Cache {
	return g.cache
}

// rejectEscalation enforces the with_escalated_permissions contract: only
// the on-request mode may grant escalation; every other mode rejects with
// the exact message the model is trained to react to.
func (g *ApprovalGate) rejectEscalation(fc models.ConversationItem) (string, bool) {
	if g.mode == models.ApprovalOnRequest {
		return "", false
	}
	var args struct {
		WithEscalatedPermissions bool `json:"with_escalated_permissions"`
	}
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
		return "", false
	}
	if !args.WithEscalatedPermissions {
		return "", false
	}
	msg := fmt.Sprintf(
		"approval policy is %s; reject command — you should not ask for escalated permissions if the approval policy is %s",
		g.mode.DisplayName(), g.mode.DisplayName())
	return msg, true
}

// evaluateToolApproval determines the approval requirement for a single
// tool call and a human-readable reason.
func (g *ApprovalGate) evaluateToolApproval(fc models.ConversationItem) (tools.ExecApprovalRequirement, string) {
	// Collab tools are workflow-intercepted coordination calls, never
	// commands; they run without approval in every mode.
	if isCollabToolCall(fc.Name) {
		return tools.ApprovalSkip, ""
	}

	switch fc.Name {
	case "read_file", "list_dir", "grep_files", "request_user_input", "update_plan", "view_image":
		return tools.ApprovalSkip, "" // read-only / workflow-intercepted tools always safe

	case "shell", "local_shell", "unified_exec":
		if argv, ok := commandVector(fc); ok && g.cache.Contains(argv) {
			return tools.ApprovalSkip, "" // previously approved for the session
		}
		return g.evaluateShellApproval(fc.Arguments)

	case "write_file", "apply_patch":
		if g.mode == "" || g.mode == models.ApprovalNever {
			return tools.ApprovalSkip, ""
		}
		return tools.ApprovalNeeded, "mutating file operation"

	default:
		if g.mode == "" || g.mode == models.ApprovalNever {
			return tools.ApprovalSkip, ""
		}
		return tools.ApprovalNeeded, "unknown tool"
	}
}

// evaluateShellApproval evaluates a shell-family call through the exec
// policy engine, falling back to the command-safety heuristic.
func (g *ApprovalGate) evaluateShellApproval(arguments string) (tools.ExecApprovalRequirement, string) {
	if g.mode == "" || g.mode == models.ApprovalNever {
		return tools.ApprovalSkip, ""
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return tools.ApprovalNeeded, "cannot parse arguments"
	}
	cmd, ok := args["command"].(string)
	if !ok || cmd == "" {
		return tools.ApprovalNeeded, "missing command"
	}

	if g.policyMgr != nil {
		eval := g.policyMgr.GetEvaluation([]string{"bash", "-c", cmd}, string(g.mode))
		return decisionToApprovalReq(eval.Decision), eval.Justification
	}

	if g.mode == models.ApprovalOnFailure {
		return tools.ApprovalSkip, "" // runs in sandbox; escalates on failure
	}
	mgr := execpolicy.NewExecPolicyManager(execpolicy.NewPolicy())
	return mgr.EvaluateShellCommand(cmd, string(g.mode)), ""
}

// classifyToolsForApproval classifies calls without a pre-built gate —
// one-shot classification with an empty approval cache.
func classifyToolsForApproval(
	functionCalls []models.ConversationItem,
	mode models.ApprovalMode,
	policyRules string,
) (pending []PendingApproval, forbidden []models.ConversationItem) {
	return NewApprovalGate(mode, policyRules, nil).Classify(functionCalls)
}

// evaluateToolApproval evaluates a single call with an explicit policy
// manager and an empty approval cache.
func evaluateToolApproval(
	toolName, arguments string,
	policyMgr *execpolicy.ExecPolicyManager,
	mode models.ApprovalMode,
) (tools.ExecApprovalRequirement, string) {
	g := &ApprovalGate{mode: mode, policyMgr: policyMgr, cache: approval.NewCache()}
	return g.evaluateToolApproval(models.ConversationItem{Name: toolName, Arguments: arguments})
}

// decisionToApprovalReq maps a policy Decision to ExecApprovalRequirement.
func decisionToApprovalReq(d execpolicy.Decision) tools.ExecApprovalRequirement {
	switch d {
	case execpolicy.DecisionAllow:
		return tools.ApprovalSkip
	case execpolicy.DecisionPrompt:
		return tools.ApprovalNeeded
	case execpolicy.DecisionForbidden:
		return tools.ApprovalForbidden
	default:
		return tools.ApprovalNeeded
	}
}

// commandVector extracts the exact argv a shell-family call will run, for
// approval-cache lookups. Equality is elementwise over the vector — never
// a prefix match.
func commandVector(fc models.ConversationItem) ([]string, bool) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
		return nil, false
	}
	if cmd, ok := args["command"].(string); ok && cmd != "" {
		return []string{"bash", "-c", cmd}, true
	}
	// unified_exec: argv is the concatenated input chunks of a fresh session.
	if chunks, ok := args["input_chunks"].([]interface{}); ok && len(chunks) > 0 {
		argv := make([]string, 0, len(chunks))
		for _, c := range chunks {
			if s, ok := c.(string); ok {
				argv = append(argv, s)
			}
		}
		if len(argv) > 0 {
			return argv, true
		}
	}
	return nil, false
}

// failedCallOutput builds a failed FunctionCallOutput item for the model.
func failedCallOutput(callID, message string) models.ConversationItem {
	falseVal := false
	return models.ConversationItem{
		Type:   models.ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: &models.FunctionCallOutputPayload{
			Content: message,
			Success: &falseVal,
		},
	}
}
