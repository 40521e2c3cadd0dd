// Package workflow contains Temporal workflow definitions.
//
// rollout.go wires the on-disk session transcript (internal/rollout) into
// the turn loop: the transcript is opened on session start, appended after
// every history mutation, and flushed+closed on shutdown. All file I/O
// happens in activities; the workflow only sequences the appends.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/turnrelay/engine/internal/activities"
	"github.com/turnrelay/engine/internal/rollout"
)

// rolloutActivityOptions returns the short-deadline options used for all
// transcript activities, routed to the session task queue when set.
func (s *SessionState) rolloutActivityOptions(ctx workflow.Context) workflow.Context {
	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 2,
		},
	}
	if s.Config.SessionTaskQueue != "" {
		actOpts.TaskQueue = s.Config.SessionTaskQueue
	}
	return workflow.WithActivityOptions(ctx, actOpts)
}

// openRollout starts the session transcript, persisting the SessionMeta
// first line and recording the file path for subsequent appends.
// Best-effort: a session without a transcript still runs.
func (s *SessionState) openRollout(ctx workflow.Context) {
	if s.RolloutPath != "" || s.Config.CodexHome == "" {
		return
	}
	logger := workflow.GetLogger(ctx)

	input := activities.OpenRolloutInput{
		SessionID: s.ConversationID,
		Meta: rollout.SessionMeta{
			ID:             s.ConversationID,
			Timestamp:      workflow.Now(ctx),
			Cwd:            s.Config.Cwd,
			Model:          s.Config.Model.Model,
			ApprovalPolicy: string(s.Config.ApprovalMode),
			SandboxPolicy:  s.Config.SandboxMode,
		},
	}

	var out activities.OpenRolloutOutput
	err := workflow.ExecuteActivity(s.rolloutActivityOptions(ctx), "OpenRollout", input).Get(ctx, &out)
	if err != nil {
		logger.Warn("Failed to open rollout transcript", "error", err)
		return
	}
	s.RolloutPath = out.Path
}

// persistRollout appends items to the session transcript. Best-effort:
// transcript failures never gate turn progress.
func (s *SessionState) persistRollout(ctx workflow.Context, items []rollout.Item) {
	if s.RolloutPath == "" || len(items) == 0 {
		return
	}
	input := activities.AppendRolloutInput{Path: s.RolloutPath, Items: items}
	err := workflow.ExecuteActivity(s.rolloutActivityOptions(ctx), "AppendRollout", input).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to append rollout items", "error", err)
	}
}

// persistTurnContext snapshots the settings in effect so resume restores
// the last known sandbox/approval/cwd/model. Written on turn start and
// after every compaction.
func (s *SessionState) persistTurnContext(ctx workflow.Context) {
	s.persistRollout(ctx, []rollout.Item{{
		Kind: rollout.KindTurnContext,
		TurnContext: &rollout.TurnContext{
			Cwd:            s.Config.Cwd,
			Model:          s.Config.Model.Model,
			ApprovalPolicy: string(s.Config.ApprovalMode),
			SandboxMode:    s.Config.SandboxMode,
		},
	}})
}

// closeRollout flushes and closes the transcript. Called before a shutdown
// completes so the file is durable.
func (s *SessionState) closeRollout(ctx workflow.Context) {
	if s.RolloutPath == "" {
		return
	}
	input := activities.CloseRolloutInput{Path: s.RolloutPath}
	err := workflow.ExecuteActivity(s.rolloutActivityOptions(ctx), "CloseRollout", input).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Warn("Failed to close rollout transcript", "error", err)
	}
}
