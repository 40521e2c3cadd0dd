// Package workflow contains Temporal workflow definitions.
//
// agentic.go holds the AgenticWorkflow entry points and the outer
// multi-turn loop. The per-turn LLM/tool loop lives in turn.go; session
// initialization in init.go; handler registration in handlers.go.
package workflow

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/turnrelay/engine/internal/activities"
	"github.com/turnrelay/engine/internal/history"
	"github.com/turnrelay/engine/internal/instructions"
	"github.com/turnrelay/engine/internal/models"
)

// IdleTimeout is how long the workflow waits for user input before triggering ContinueAsNew.
const IdleTimeout = 24 * time.Hour

// maxIterationsBeforeCAN is the total iteration count across all turns in a
// single workflow run before triggering ContinueAsNew to keep history bounded.
const maxIterationsBeforeCAN = 100

// maxRepeatToolCalls is the number of consecutive identical tool call batches
// before the turn is ended early to prevent tight loops.
const maxRepeatToolCalls = 3

// AgenticWorkflow is the main durable agentic loop.
func AgenticWorkflow(ctx workflow.Context, input WorkflowInput) (WorkflowResult, error) {
	state := SessionState{
		ConversationID: input.ConversationID,
		History:        history.NewInMemoryHistory(),
		Config:         input.Config,
		MaxIterations:  20,
		IterationCount: 0,
		AgentCtl:       NewAgentControl(input.Depth),
	}
	ctrl := &LoopControl{}

	// Resolve the model profile (pure computation, informs tool building).
	state.resolveProfile()

	// Optional: run the session on a dedicated git worktree branch.
	if state.Config.UseWorktree {
		state.initWorktree(ctx, input.UserMessage)
	}

	// Build tool specs based on configuration and profile overrides.
	state.ToolSpecs = buildToolSpecs(state.Config.Tools, state.ResolvedProfile)

	// Resolve instructions unless the harness pre-assembled them.
	if state.Config.BaseInstructions == "" {
		state.resolveInstructions(ctx)
	}

	// Load exec policy rules unless transported in the config.
	state.ExecPolicyRules = state.Config.ExecPolicyRules
	if state.ExecPolicyRules == "" {
		state.loadExecPolicy(ctx)
	}

	// Connect configured MCP servers and merge their tool specs.
	if err := state.initMcpServers(ctx); err != nil {
		return WorkflowResult{}, err
	}

	// Open the on-disk session transcript.
	state.openRollout(ctx)

	// First turn starts immediately with the initial user message.
	turnID := state.nextTurnID()
	ctrl.SetPendingUserInput(turnID)

	state.addHistoryItem(ctx, ctrl, models.ConversationItem{
		Type:   models.ItemTypeTurnStarted,
		TurnID: turnID,
	})

	// Environment context precedes the first user message.
	if state.Config.Cwd != "" {
		state.addHistoryItem(ctx, ctrl, models.ConversationItem{
			Type:    models.ItemTypeUserMessage,
			Content: instructions.BuildEnvironmentContext(state.Config.Cwd, ""),
			TurnID:  turnID,
		})
	}

	state.addHistoryItem(ctx, ctrl, models.ConversationItem{
		Type:    models.ItemTypeUserMessage,
		Content: input.UserMessage,
		TurnID:  turnID,
	})

	state.persistTurnContext(ctx)

	// Register handlers and run multi-turn loop
	state.registerHandlers(ctx, ctrl)
	return state.runMultiTurnLoop(ctx, ctrl)
}

// AgenticWorkflowContinued handles ContinueAsNew.
func AgenticWorkflowContinued(ctx workflow.Context, state SessionState) (WorkflowResult, error) {
	// Restore History interface from serialized HistoryItems
	state.initHistory()
	// Child futures are transient and lost on ContinueAsNew; the map must
	// exist before any new child is spawned.
	if state.AgentCtl != nil {
		state.AgentCtl.restoreTransient()
	} else {
		state.AgentCtl = NewAgentControl(0)
	}
	// Coordination state is rebuilt fresh on every run.
	ctrl := &LoopControl{}
	state.registerHandlers(ctx, ctrl)
	return state.runMultiTurnLoop(ctx, ctrl)
}

// initWorktree branches a per-session git worktree off the repository at
// cwd and points the session at it. Best-effort: on failure the session
// runs in the original cwd.
func (s *SessionState) initWorktree(ctx workflow.Context, task string) {
	logger := workflow.GetLogger(ctx)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	if s.Config.SessionTaskQueue != "" {
		actOpts.TaskQueue = s.Config.SessionTaskQueue
	}
	wtCtx := workflow.WithActivityOptions(ctx, actOpts)

	input := activities.SetupWorktreeInput{
		Cwd:  s.Config.Cwd,
		Home: s.Config.CodexHome,
		Task: task,
	}
	var out activities.SetupWorktreeOutput
	if err := workflow.ExecuteActivity(wtCtx, "SetupWorktree", input).Get(ctx, &out); err != nil {
		logger.Warn("Worktree setup failed, running in original cwd", "error", err)
		return
	}

	logger.Info("Session worktree ready",
		"branch", out.Branch,
		"path", out.WorktreePath,
		"copied_files", out.CopiedFiles)
	s.Config.Cwd = out.WorktreePath
}

// runMultiTurnLoop is the outer loop that waits for user input between turns.
func (s *SessionState) runMultiTurnLoop(ctx workflow.Context, ctrl *LoopControl) (WorkflowResult, error) {
	logger := workflow.GetLogger(ctx)

	for {
		// Wait for pending user input (first turn has it set already)
		if !ctrl.HasPendingWork() {
			ctrl.SetPhase(PhaseWaitingForInput)
			ctrl.ClearToolsInFlight()
			logger.Info("Waiting for user input or shutdown")
			timedOut, err := ctrl.WaitForInput(ctx)
			if err != nil {
				return WorkflowResult{}, fmt.Errorf("await failed: %w", err)
			}
			if timedOut {
				logger.Info("Idle timeout reached, triggering ContinueAsNew")
				return s.continueAsNew(ctx, ctrl)
			}
		}

		// Check for shutdown
		if ctrl.IsShutdown() {
			logger.Info("Shutdown requested, completing workflow")
			s.closeRollout(ctx)
			items, _ := s.History.GetRawItems()
			return WorkflowResult{
				ConversationID:    s.ConversationID,
				TotalIterations:   s.IterationCount,
				TotalTokens:       s.TotalTokens,
				ToolCallsExecuted: s.ToolCallsExecuted,
				EndReason:         "shutdown",
				FinalMessage:      extractFinalMessage(items),
			}, nil
		}

		// Manual compaction (CLI /compact command)
		if ctrl.IsCompactRequested() {
			ctrl.ClearCompactRequested()
			if err := s.performCompaction(ctx, ctrl); err != nil {
				logger.Warn("Manual compaction failed", "error", err)
			}
			ctrl.SetPhase(PhaseWaitingForInput)
			continue
		}

		// Reset for new turn
		ctrl.StartTurn()
		s.IterationCount = 0
		s.persistTurnContext(ctx)

		// Run the agentic turn
		done, err := s.runAgenticTurn(ctx, ctrl)
		if err != nil {
			return WorkflowResult{}, err
		}

		if done {
			// ContinueAsNew was triggered
			return s.continueAsNew(ctx, ctrl)
		}

		// Accumulate iterations for CAN threshold across turns.
		s.TotalIterationsForCAN += s.IterationCount
		if s.TotalIterationsForCAN >= maxIterationsBeforeCAN {
			logger.Info("Total iterations across turns reached CAN threshold",
				"total", s.TotalIterationsForCAN)
			return s.continueAsNew(ctx, ctrl)
		}

		// Turn complete — add TurnComplete marker (unless interrupted, which already added it)
		if !ctrl.IsInterrupted() {
			s.addHistoryItem(ctx, ctrl, models.ConversationItem{
				Type:   models.ItemTypeTurnComplete,
				TurnID: ctrl.CurrentTurnID(),
			})
		}

		// Post-turn prompt suggestion (best-effort; skipped for subagents).
		if !s.Config.DisableSuggestions && s.AgentCtl != nil && s.AgentCtl.ParentDepth == 0 {
			s.generateSuggestion(ctx, ctrl)
		}

		ctrl.SetPhase(PhaseWaitingForInput)
		ctrl.ClearToolsInFlight()
		logger.Info("Turn complete, waiting for next input", "turn_id", ctrl.CurrentTurnID())
	}
}

// awaitWithIdleTimeout waits for condition or idle timeout.
// Returns (timedOut, error).
func awaitWithIdleTimeout(ctx workflow.Context, condition func() bool) (bool, error) {
	ok, err := workflow.AwaitWithTimeout(ctx, IdleTimeout, condition)
	if err != nil {
		return false, err
	}
	return !ok, nil // ok=false means timed out
}

// continueAsNew prepares state and triggers ContinueAsNew.
func (s *SessionState) continueAsNew(ctx workflow.Context, ctrl *LoopControl) (WorkflowResult, error) {
	// Unblock long-polls so clients reconnect against the new run.
	ctrl.SetDraining()

	// Wait for all update handlers to finish before ContinueAsNew
	_ = workflow.Await(ctx, func() bool {
		return workflow.AllHandlersFinished(ctx)
	})

	s.syncHistoryItems()
	return WorkflowResult{}, workflow.NewContinueAsNewError(ctx, "AgenticWorkflowContinued", *s)
}

// truncate returns s truncated to n bytes with "..." appended if it was longer.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// toolCallsKey produces a deterministic hash for a batch of tool calls
// based on tool names and arguments, used for repeat detection.
func toolCallsKey(calls []models.ConversationItem) string {
	// Build a sorted list of "name:args" strings for deterministic ordering.
	parts := make([]string, len(calls))
	for i, c := range calls {
		parts[i] = c.Name + ":" + c.Arguments
	}
	sort.Strings(parts)
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// toInt64 converts a JSON-decoded number (float64) to int64.
func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}
