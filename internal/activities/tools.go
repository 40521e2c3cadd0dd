package activities

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"

	"github.com/turnrelay/engine/internal/models"
	"github.com/turnrelay/engine/internal/tools"
)

// ToolActivityInput is the input for tool execution.
type ToolActivityInput struct {
	CallID    string                 `json:"call_id"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments"`

	// Cwd is the working directory the tool should run in.
	Cwd string `json:"cwd,omitempty"`

	// SessionID identifies the owning workflow, used for MCP/exec session lookup.
	SessionID string `json:"session_id,omitempty"`

	// SandboxPolicy restricts the execution environment for shell-family tools.
	SandboxPolicy *tools.SandboxPolicyRef `json:"sandbox_policy,omitempty"`

	// EnvPolicy filters environment variables passed to shell-family tools.
	EnvPolicy *tools.EnvPolicyRef `json:"env_policy,omitempty"`

	// McpToolRef routes this call to an MCP server tool instead of a built-in handler.
	McpToolRef *tools.McpToolRef `json:"mcp_tool_ref,omitempty"`

	// McpServers carries the session's MCP server configs for auto-reconnect.
	// Typed as interface{} (map[string]mcp.McpServerConfig) to avoid import cycles.
	McpServers interface{} `json:"mcp_servers,omitempty"`
}

// ToolActivityOutput is the output from tool execution.
// Only returned on successful activity completion. Infrastructure errors
// are returned as temporal.ApplicationError (retryable or non-retryable).
type ToolActivityOutput struct {
	CallID  string `json:"call_id"`
	Content string `json:"content,omitempty"`
	Success *bool  `json:"success,omitempty"`

	// ImageURL/ImagePath are set by view_image: the data URL to attach to
	// the next prompt and the resolved path it came from.
	ImageURL  string `json:"image_url,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
}

// ToolActivities contains tool-related activities.
type ToolActivities struct {
	registry *tools.ToolRegistry
}

// NewToolActivities creates a new ToolActivities instance.
func NewToolActivities(registry *tools.ToolRegistry) *ToolActivities {
	return &ToolActivities{registry: registry}
}

// ExecuteTool executes a single tool call.
//
// Error handling:
//   - Tool not found → successful return with the fixed unsupported-tool message
//   - Handler validation error → non-retryable ApplicationError (ToolValidation)
//   - Handler timeout → non-retryable ApplicationError (ToolTimeout)
//   - Tool runs but fails (e.g., command exits non-zero) → successful return with Success=false
//   - Tool runs successfully → successful return with Success=true
func (a *ToolActivities) ExecuteTool(ctx context.Context, input ToolActivityInput) (ToolActivityOutput, error) {
	dispatchName := input.ToolName
	if input.McpToolRef != nil {
		dispatchName = "mcp"
	}
	// local_shell is the provider-shortcut spelling of shell.
	if dispatchName == "local_shell" {
		dispatchName = "shell"
	}

	handler, err := a.registry.GetHandler(dispatchName)
	if err != nil {
		// Unknown tools are not activity failures: the model gets a fixed
		// message and can adjust.
		success := false
		return ToolActivityOutput{
			CallID:  input.CallID,
			Content: "unsupported custom tool call: " + input.ToolName,
			Success: &success,
		}, nil
	}

	invocation := &tools.ToolInvocation{
		CallID:        input.CallID,
		ToolName:      input.ToolName,
		Arguments:     input.Arguments,
		Cwd:           input.Cwd,
		SandboxPolicy: input.SandboxPolicy,
		EnvPolicy:     input.EnvPolicy,
		McpToolRef:    input.McpToolRef,
		SessionID:     input.SessionID,
		McpServers:    input.McpServers,
	}

	invocation.Heartbeat = func(details ...interface{}) {
		activity.RecordHeartbeat(ctx, details...)
	}

	output, err := handler.Handle(ctx, invocation)
	if err != nil {
		return ToolActivityOutput{}, classifyHandlerError(input.ToolName, err)
	}

	return ToolActivityOutput{
		CallID:    input.CallID,
		Content:   output.Content,
		Success:   output.Success,
		ImageURL:  output.ImageURL,
		ImagePath: output.ImagePath,
	}, nil
}

// classifyHandlerError converts a handler error into the appropriate
// temporal.ApplicationError based on the error context.
//
// Currently all handler errors are non-retryable because they represent
// validation failures (missing args, bad types) or execution issues
// (timeouts) that won't resolve on retry. If a handler detects a
// transient issue, it should wrap it with tools.ErrTransient so this
// function can classify it as retryable.
func classifyHandlerError(toolName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewToolTimeoutError(toolName, err)
	}

	// Default: treat handler errors as validation/execution errors (non-retryable).
	// The same invalid input will produce the same error on retry.
	return models.NewToolValidationError(toolName, err)
}
