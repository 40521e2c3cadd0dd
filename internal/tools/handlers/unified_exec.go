package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/turnrelay/engine/internal/execsession"
	"github.com/turnrelay/engine/internal/tools"
)

const (
	unifiedExecDefaultTimeoutMs = 1_000
	unifiedExecMaxTimeoutMs     = 60_000
	unifiedExecRingCapBytes     = 128 * 1024
)

// UnifiedExecTool opens or resumes a long-lived PTY session, per spec.md
// §4.5/§4.6. It supersedes the two-tool exec_command/write_stdin split
// (internal/tools/exec_spec.go) with the single-request contract the
// session-replay and approval-caching semantics require: one call either
// starts a brand new session or feeds input to an existing one.
type UnifiedExecTool struct {
	registry *execsession.Registry
}

// NewUnifiedExecTool creates a handler backed by the given session registry.
func NewUnifiedExecTool(registry *execsession.Registry) *UnifiedExecTool {
	return &UnifiedExecTool{registry: registry}
}

func (t *UnifiedExecTool) Name() string { return "unified_exec" }

func (t *UnifiedExecTool) Kind() tools.ToolKind { return tools.ToolKindFunction }

// IsMutating is conservatively true: a PTY session can run arbitrary state-
// mutating commands and the dispatcher cannot classify it ahead of time.
func (t *UnifiedExecTool) IsMutating(_ *tools.ToolInvocation) bool { return true }

func (t *UnifiedExecTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	store := t.registry.GetOrCreate(invocation.SessionID)

	var sessionID *int32
	if raw, ok := invocation.Arguments["session_id"]; ok && raw != nil {
		id, err := toInt32(raw)
		if err != nil {
			return nil, tools.NewValidationError("session_id must be an integer: " + err.Error())
		}
		sessionID = &id
	}

	var chunks []string
	if raw, ok := invocation.Arguments["input_chunks"]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, tools.NewValidationError("input_chunks must be an array of strings")
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, tools.NewValidationError("input_chunks must be an array of strings")
			}
			chunks = append(chunks, s)
		}
	}

	timeoutMs := unifiedExecDefaultTimeoutMs
	if raw, ok := invocation.Arguments["timeout_ms"]; ok && raw != nil {
		v, err := toInt32(raw)
		if err != nil {
			return nil, tools.NewValidationError("timeout_ms must be an integer")
		}
		timeoutMs = int(v)
	}

	warning := ""
	if timeoutMs > unifiedExecMaxTimeoutMs {
		warning = fmt.Sprintf("Warning: requested timeout %dms exceeds maximum of %dms; clamping to %dms.\n",
			timeoutMs, unifiedExecMaxTimeoutMs, unifiedExecMaxTimeoutMs)
		timeoutMs = unifiedExecMaxTimeoutMs
	}

	var sess *execsession.ExecSession
	var resultSessionID *int32

	if sessionID != nil {
		var ok bool
		sess, ok = store.Get(*sessionID)
		if !ok {
			failure := false
			return &tools.ToolOutput{
				Content: fmt.Sprintf("UnknownSessionId: %d", *sessionID),
				Success: &failure,
			}, nil
		}
		resultSessionID = sessionID
	} else {
		if len(chunks) == 0 {
			return nil, tools.NewValidationError("input_chunks must be non-empty when session_id is not set")
		}
		newID := store.Allocate()
		newSess, err := execsession.StartSession(execsession.SessionOpts{
			ProcessID: fmt.Sprintf("%d", newID),
			Command:   chunks,
			Cwd:       invocation.Cwd,
			TTY:       true,
		})
		if err != nil {
			failure := false
			return &tools.ToolOutput{
				Content: fmt.Sprintf("failed to start unified exec session: %v", err),
				Success: &failure,
			}, nil
		}
		store.Put(newID, newSess)
		sess = newSess
		resultSessionID = &newID
		chunks = nil // already consumed as the spawn argv
	}

	if sessionID != nil && len(chunks) > 0 {
		joined := joinInputChunks(chunks)
		if err := sess.WriteStdin([]byte(joined)); err != nil {
			return nil, fmt.Errorf("WriteToStdin: %w", err)
		}
	}

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	collected := sess.CollectOutput(deadline, invocation.Heartbeat)
	output := decodeAndTruncate(collected, unifiedExecRingCapBytes)

	if sess.HasExited() {
		store.Remove(*resultSessionID)
		resultSessionID = nil
	}

	payload := struct {
		SessionID *int32 `json:"session_id"`
		Output    string `json:"output"`
	}{SessionID: resultSessionID, Output: warning + output}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode unified_exec result: %w", err)
	}

	success := true
	return &tools.ToolOutput{
		Content: string(encoded),
		Success: &success,
	}, nil
}

// joinInputChunks concatenates chunks, inserting a single space between two
// chunks when neither the trailing character of the first nor the leading
// character of the second is whitespace. Empty chunks are skipped.
func joinInputChunks(chunks []string) string {
	var b strings.Builder
	prevEnd := rune(0)
	havePrev := false
	for _, c := range chunks {
		if c == "" {
			continue
		}
		if havePrev {
			nextStart := []rune(c)[0]
			if !unicode.IsSpace(prevEnd) && !unicode.IsSpace(nextStart) {
				b.WriteByte(' ')
			}
		}
		b.WriteString(c)
		runes := []rune(c)
		prevEnd = runes[len(runes)-1]
		havePrev = true
	}
	return b.String()
}

// decodeAndTruncate lossily decodes bytes as UTF-8 and middle-truncates to
// capBytes, matching the PTY session's 128 KiB result cap from spec.md §4.6
// (distinct from the model-output truncation rule in internal/exec).
func decodeAndTruncate(b []byte, capBytes int) string {
	s := strings.ToValidUTF8(string(b), "�")
	if len(s) <= capBytes {
		return s
	}
	half := capBytes / 2
	return s[:half] + "\n[... output truncated ...]\n" + s[len(s)-half:]
}

func toInt32(v interface{}) (int32, error) {
	switch n := v.(type) {
	case int32:
		return n, nil
	case int:
		return int32(n), nil
	case int64:
		return int32(n), nil
	case float64:
		return int32(n), nil
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}
