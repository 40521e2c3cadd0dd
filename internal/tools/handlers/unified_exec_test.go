package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnrelay/engine/internal/execsession"
	"github.com/turnrelay/engine/internal/tools"
)

func TestJoinInputChunks(t *testing.T) {
	cases := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"empty", nil, ""},
		{"single", []string{"echo hi"}, "echo hi"},
		{"no space needed", []string{"echo ", "hi"}, "echo hi"},
		{"space inserted", []string{"echo", "hi"}, "echo hi"},
		{"skips empty chunks", []string{"echo", "", "hi"}, "echo hi"},
		{"trailing newline keeps no extra space", []string{"ls\n", "-la"}, "ls\n-la"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, joinInputChunks(c.chunks))
		})
	}
}

func TestDecodeAndTruncate_UnderCap(t *testing.T) {
	out := decodeAndTruncate([]byte("hello world"), 1024)
	assert.Equal(t, "hello world", out)
}

func TestDecodeAndTruncate_OverCap(t *testing.T) {
	big := make([]byte, 100)
	for i := range big {
		big[i] = 'a'
	}
	out := decodeAndTruncate(big, 40)
	assert.Contains(t, out, "[... output truncated ...]")
	assert.True(t, len(out) < 100)
}

func TestToInt32_SupportedTypes(t *testing.T) {
	v, err := toInt32(float64(7))
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	v, err = toInt32(int(3))
	require.NoError(t, err)
	assert.Equal(t, int32(3), v)

	_, err = toInt32("nope")
	assert.Error(t, err)
}

func TestUnifiedExecTool_UnknownSessionId(t *testing.T) {
	tool := NewUnifiedExecTool(execsession.NewRegistry())
	invocation := &tools.ToolInvocation{
		SessionID: "conv-1",
		Arguments: map[string]interface{}{"session_id": float64(999)},
	}
	out, err := tool.Handle(context.Background(), invocation)
	require.NoError(t, err)
	require.NotNil(t, out.Success)
	assert.False(t, *out.Success)
	assert.Contains(t, out.Content, "UnknownSessionId: 999")
}

func TestUnifiedExecTool_StartAndCollect(t *testing.T) {
	tool := NewUnifiedExecTool(execsession.NewRegistry())
	invocation := &tools.ToolInvocation{
		SessionID: "conv-1",
		Arguments: map[string]interface{}{
			"input_chunks": []interface{}{"echo", "hello-unified-exec"},
			"timeout_ms":   float64(2000),
		},
	}
	out, err := tool.Handle(context.Background(), invocation)
	require.NoError(t, err)
	require.NotNil(t, out.Success)
	assert.True(t, *out.Success)

	var payload struct {
		SessionID *int32 `json:"session_id"`
		Output    string `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Content), &payload))
	assert.Contains(t, payload.Output, "hello-unified-exec")
}

func TestUnifiedExecTool_TimeoutClamped(t *testing.T) {
	tool := NewUnifiedExecTool(execsession.NewRegistry())
	invocation := &tools.ToolInvocation{
		SessionID: "conv-1",
		Arguments: map[string]interface{}{
			"input_chunks": []interface{}{"echo", "hi"},
			"timeout_ms":   float64(120_000),
		},
	}
	out, err := tool.Handle(context.Background(), invocation)
	require.NoError(t, err)

	var payload struct {
		Output string `json:"output"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Content), &payload))
	assert.Contains(t, payload.Output, "clamping to 60000ms")
}

func TestUnifiedExecTool_RequiresChunksForNewSession(t *testing.T) {
	tool := NewUnifiedExecTool(execsession.NewRegistry())
	invocation := &tools.ToolInvocation{
		SessionID: "conv-1",
		Arguments: map[string]interface{}{},
	}
	_, err := tool.Handle(context.Background(), invocation)
	assert.Error(t, err)
}
