// Package rollout implements the Rollout Log (spec.md §4.10, C1): an
// append-only JSONL transcript of every session, independent of whatever
// durability the orchestration substrate provides. Grounded on the shape of
// internal/history's append-oriented ContextManager and on
// _examples/original_source/codex-rs/core/src/session_manager.rs for the
// resume and paginated-listing semantics.
package rollout

import (
	"time"

	"github.com/turnrelay/engine/internal/models"
)

// ItemKind discriminates the RolloutItem sum type from spec.md §3.
type ItemKind string

const (
	KindSessionMeta     ItemKind = "session_meta"
	KindTurnContext     ItemKind = "turn_context"
	KindResponseItem    ItemKind = "response_item"
	KindCompactedBridge ItemKind = "compacted_bridge"
	KindEventNotif      ItemKind = "event_notification"
)

// SessionMeta is always the first line of a rollout file.
type SessionMeta struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Cwd            string    `json:"cwd"`
	Model          string    `json:"model"`
	ApprovalPolicy string    `json:"approval_policy"`
	SandboxPolicy  string    `json:"sandbox_policy"`
}

// TurnContext snapshots the settings in effect at a point in the session —
// written on every turn start and on every compaction, so resume restores
// the last known sandbox/approval/cwd/model per spec.md §4.10.
type TurnContext struct {
	Cwd            string `json:"cwd"`
	Model          string `json:"model"`
	ApprovalPolicy string `json:"approval_policy"`
	SandboxMode    string `json:"sandbox_mode"`
}

// CompactedBridge records an auto-compaction event (spec.md §4.11).
type CompactedBridge struct {
	Message string `json:"message"`
}

// EventNotification mirrors an outbound event for transcript purposes —
// rollout persistence is append-after-emit (spec.md §4.10's write policy),
// so this is informational, not the source of truth for delivery.
type EventNotification struct {
	SubmissionID string `json:"submission_id"`
	Summary      string `json:"summary"`
}

// Item is one JSONL line: a tagged union over the five RolloutItem kinds.
// Exactly one of the payload fields is non-nil, selected by Kind.
type Item struct {
	Kind ItemKind `json:"kind"`

	SessionMeta     *SessionMeta             `json:"session_meta,omitempty"`
	TurnContext     *TurnContext             `json:"turn_context,omitempty"`
	ResponseItem    *models.ConversationItem `json:"response_item,omitempty"`
	CompactedBridge *CompactedBridge         `json:"compacted_bridge,omitempty"`
	EventNotif      *EventNotification       `json:"event_notification,omitempty"`
}
