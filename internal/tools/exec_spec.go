package tools

func init() {
	RegisterSpec(SpecEntry{Name: "exec_command", Constructor: NewExecCommandToolSpec})
	RegisterSpec(SpecEntry{Name: "write_stdin", Constructor: NewWriteStdinToolSpec})
	RegisterSpec(SpecEntry{Name: "unified_exec", Constructor: NewUnifiedExecToolSpec})
	RegisterSpec(SpecEntry{Name: "view_image", Constructor: NewViewImageToolSpec})
}

// approvalParameters returns the shared with_escalated_permissions/
// justification pair that every exec-shaped tool exposes so the model can
// ask for a sandbox bypass (spec.md §4.2's shell contract). mutating
// indicates whether the tool's default escalation wording should mention
// that the command may alter the workspace.
func approvalParameters(mutating bool) []ToolParameter {
	justification := "Only set when with_escalated_permissions is true: a one-sentence reason the command needs to bypass the sandbox."
	if mutating {
		justification = "Only set when with_escalated_permissions is true: a one-sentence reason this write needs to bypass the sandbox."
	}
	return []ToolParameter{
		{
			Name:        "with_escalated_permissions",
			Type:        "boolean",
			Description: "Set to true to request the command run outside the sandbox. Only honored when the approval policy is on-request; otherwise the call is rejected and must be retried without escalation.",
			Required:    false,
		},
		{
			Name:        "justification",
			Type:        "string",
			Description: justification,
			Required:    false,
		},
	}
}

// NewUnifiedExecToolSpec creates the specification for the unified_exec
// tool — spec.md §4.5/§4.6's single entry point for opening or resuming a
// long-lived PTY session.
func NewUnifiedExecToolSpec() ToolSpec {
	return ToolSpec{
		Name: "unified_exec",
		Description: `Opens or resumes a long-lived interactive shell session.
- Omit session_id to start a new session; input_chunks becomes the argv of the spawned process (no shell interpretation).
- Pass session_id from a prior call to send more input to that same session; input_chunks are joined with a single space where needed and written to its stdin.
- timeout_ms bounds how long this call waits for output (default 1000ms, max 60000ms — longer requests are clamped with a warning).
- The response's session_id is omitted once the underlying process has exited; reusing an id after exit returns an UnknownSessionId error.`,
		Parameters: []ToolParameter{
			{
				Name:        "session_id",
				Type:        "number",
				Description: "Identifier of an existing session to resume. Omit to start a new one.",
				Required:    false,
			},
			{
				Name:        "input_chunks",
				Type:        "array",
				Description: "Argv (new session) or input text chunks (existing session) to write.",
				Required:    true,
				Items:       map[string]interface{}{"type": "string"},
			},
			{
				Name:        "timeout_ms",
				Type:        "number",
				Description: "How long to wait for output before returning. Defaults to 1000ms, clamped to 60000ms.",
				Required:    false,
			},
		},
		DefaultTimeoutMs: unifiedExecHardTimeoutCapMs + 5_000,
	}
}

// NewViewImageToolSpec creates the specification for the view_image tool.
func NewViewImageToolSpec() ToolSpec {
	return ToolSpec{
		Name:        "view_image",
		Description: "Attaches a local image file to the next message sent to you, so you can see it.",
		Parameters: []ToolParameter{
			{
				Name:        "path",
				Type:        "string",
				Description: "Path to a local image file, absolute or relative to the working directory.",
				Required:    true,
			},
		},
		DefaultTimeoutMs: DefaultToolTimeoutMs,
	}
}

// Default timeouts for exec tools.
const (
	// DefaultExecCommandTimeoutMs covers max yield (30s) + overhead.
	DefaultExecCommandTimeoutMs = 45_000
	// DefaultWriteStdinTimeoutMs covers max yield (30s) + overhead.
	DefaultWriteStdinTimeoutMs = 45_000
	// unifiedExecHardTimeoutCapMs is the spec.md §4.5 clamp ceiling for
	// unified_exec's own timeout_ms argument.
	unifiedExecHardTimeoutCapMs = 60_000
)

// NewExecCommandToolSpec creates the specification for the exec_command tool.
// Runs a command in a PTY or pipes, returning output or a session ID for
// ongoing interaction via write_stdin.
func NewExecCommandToolSpec() ToolSpec {
	params := []ToolParameter{
		{
			Name:        "cmd",
			Type:        "string",
			Description: "Shell command to execute.",
			Required:    true,
		},
		{
			Name:        "workdir",
			Type:        "string",
			Description: "Optional working directory to run the command in; defaults to the turn cwd.",
			Required:    false,
		},
		{
			Name:        "shell",
			Type:        "string",
			Description: "Shell binary to launch. Defaults to the user's default shell.",
			Required:    false,
		},
		{
			Name:        "login",
			Type:        "boolean",
			Description: "Whether to launch the shell as a login shell. Defaults to true.",
			Required:    false,
		},
		{
			Name:        "tty",
			Type:        "boolean",
			Description: "Whether to run in a PTY (interactive) or pipes (non-interactive). Defaults to false.",
			Required:    false,
		},
		{
			Name:        "yield_time_ms",
			Type:        "number",
			Description: "How long to wait (in milliseconds) for output before yielding. Defaults to 10000. Range: 250-30000.",
			Required:    false,
		},
		{
			Name:        "max_output_tokens",
			Type:        "number",
			Description: "Maximum number of tokens to return. Excess output will be truncated.",
			Required:    false,
		},
	}
	params = append(params, approvalParameters(false)...)

	return ToolSpec{
		Name: "exec_command",
		Description: `Runs a command in a PTY, returning output or a session ID for ongoing interaction.
- For short commands, the output and exit code are returned immediately.
- For long-running commands, a session_id is returned. Use write_stdin to send further input and poll for output.
- Set tty=true for interactive commands (REPLs, editors) that need terminal emulation.
- yield_time_ms controls how long to wait for initial output (default 10s, max 30s).`,
		Parameters:       params,
		DefaultTimeoutMs: DefaultExecCommandTimeoutMs,
	}
}

// NewWriteStdinToolSpec creates the specification for the write_stdin tool.
// Writes characters to an existing exec session and returns recent output.
func NewWriteStdinToolSpec() ToolSpec {
	return ToolSpec{
		Name: "write_stdin",
		Description: `Writes characters to an existing unified exec session and returns recent output.
- Use session_id from a previous exec_command call.
- Send empty chars to poll for new output without sending input.
- yield_time_ms controls how long to wait for output (default 250ms for writes, min 5000ms for empty polls).`,
		Parameters: []ToolParameter{
			{
				Name:        "session_id",
				Type:        "number",
				Description: "Identifier of the running unified exec session.",
				Required:    true,
			},
			{
				Name:        "chars",
				Type:        "string",
				Description: "Bytes to write to stdin (may be empty to poll for output).",
				Required:    false,
			},
			{
				Name:        "yield_time_ms",
				Type:        "number",
				Description: "How long to wait (in milliseconds) for output before yielding. Defaults to 250.",
				Required:    false,
			},
			{
				Name:        "max_output_tokens",
				Type:        "number",
				Description: "Maximum number of tokens to return. Excess output will be truncated.",
				Required:    false,
			},
		},
		DefaultTimeoutMs: DefaultWriteStdinTimeoutMs,
	}
}
