package models

import "github.com/turnrelay/engine/internal/mcp"

// ApprovalMode controls when tool executions must pause for human approval.
type ApprovalMode string

const (
	// ApprovalUnlessTrusted prompts for everything except commands the
	// exec policy has classified as allow.
	ApprovalUnlessTrusted ApprovalMode = "unless-trusted"
	// ApprovalOnFailure lets commands run and only escalates to a human
	// after the command itself reports failure (sandboxed retry path).
	ApprovalOnFailure ApprovalMode = "on-failure"
	// ApprovalOnRequest only prompts when a tool call explicitly asks for
	// escalated permissions.
	ApprovalOnRequest ApprovalMode = "on-request"
	// ApprovalNever never prompts; forbidden commands are rejected outright.
	ApprovalNever ApprovalMode = "never"
)

// DisplayName returns the PascalCase variant name used in model-facing
// messages (the wording the model is trained against), e.g. "Never" rather
// than the wire value "never".
func (m ApprovalMode) DisplayName() string {
	switch m {
	case ApprovalUnlessTrusted:
		return "UnlessTrusted"
	case ApprovalOnFailure:
		return "OnFailure"
	case ApprovalOnRequest:
		return "OnRequest"
	case ApprovalNever:
		return "Never"
	default:
		return string(m)
	}
}

// ParseApprovalMode parses a string into an ApprovalMode.
func ParseApprovalMode(s string) (ApprovalMode, error) {
	switch ApprovalMode(s) {
	case ApprovalUnlessTrusted, ApprovalOnFailure, ApprovalOnRequest, ApprovalNever:
		return ApprovalMode(s), nil
	case "":
		return ApprovalUnlessTrusted, nil
	default:
		return "", &InvalidApprovalModeError{Value: s}
	}
}

// InvalidApprovalModeError reports an unrecognized approval mode string.
type InvalidApprovalModeError struct {
	Value string
}

func (e *InvalidApprovalModeError) Error() string {
	return "invalid approval mode " + e.Value + ": must be unless-trusted, on-failure, on-request, or never"
}

// ModelConfig configures the LLM model parameters
type ModelConfig struct {
	Provider      string  `json:"provider,omitempty"` // "openai", "anthropic"
	Model         string  `json:"model"`              // e.g., "gpt-5.1", "claude-opus-4-6"
	Temperature   float64 `json:"temperature"`        // 0.0 to 2.0
	MaxTokens     int     `json:"max_tokens"`         // Max tokens to generate
	ContextWindow int     `json:"context_window"`     // Max context window size

	// ReasoningEffort selects the provider's reasoning effort tier for
	// models that support it ("low", "medium", "high"). Empty uses the
	// provider default.
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

// DefaultModelConfig returns a sensible default configuration
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Provider:      "openai",
		Model:         "gpt-4o-mini",
		Temperature:   0.7,
		MaxTokens:     4096,
		ContextWindow: 128000,
	}
}

// ShellType selects which flavor of the shell tool is exposed to the model.
type ShellType string

const (
	// ShellToolDefault exposes the full shell tool (command + workdir + timeout_ms).
	ShellToolDefault ShellType = ""
	// ShellToolShellCommand exposes a simplified single-argument shell_command tool.
	ShellToolShellCommand ShellType = "shell_command"
	// ShellToolDisabled exposes no shell tool at all.
	ShellToolDisabled ShellType = "disabled"
)

// ToolsConfig configures which tools are enabled
type ToolsConfig struct {
	EnableShell    bool `json:"enable_shell"`
	EnableReadFile bool `json:"enable_read_file"`
	EnableWriteFile  bool `json:"enable_write_file,omitempty"`  // Built-in write_file tool
	EnableListDir    bool `json:"enable_list_dir,omitempty"`    // Built-in list_dir tool
	EnableGrepFiles  bool `json:"enable_grep_files,omitempty"`  // Built-in grep_files tool
	EnableApplyPatch bool `json:"enable_apply_patch,omitempty"` // Built-in apply_patch tool
	EnableUpdatePlan bool `json:"enable_update_plan,omitempty"` // Built-in update_plan tool
	EnableCollab     bool `json:"enable_collab,omitempty"`      // Subagent spawn/send_input/wait/close_agent/resume_agent tools

	// ShellType selects which shell tool variant is exposed, when EnableShell is true.
	ShellType ShellType `json:"shell_type,omitempty"`

	// EnabledTools optionally pins an explicit tool allowlist for child
	// agent configs. A copy is taken when cloning a parent config so role
	// overrides don't mutate the parent.
	EnabledTools []string `json:"enabled_tools,omitempty"`

	// RemovedTools lists tools stripped by RemoveTools that have no
	// dedicated Enable* flag (e.g. "request_user_input").
	RemovedTools []string `json:"removed_tools,omitempty"`
}

// RemoveTools disables the named tools. Tools with a dedicated Enable* flag
// have that flag cleared; everything else is recorded in RemovedTools and
// filtered out during tool-spec construction.
func (t *ToolsConfig) RemoveTools(names ...string) {
	for _, name := range names {
		switch name {
		case "shell":
			t.EnableShell = false
		case "read_file":
			t.EnableReadFile = false
		case "write_file":
			t.EnableWriteFile = false
		case "list_dir":
			t.EnableListDir = false
		case "grep_files":
			t.EnableGrepFiles = false
		case "apply_patch":
			t.EnableApplyPatch = false
		case "update_plan":
			t.EnableUpdatePlan = false
		case "collab":
			t.EnableCollab = false
		default:
			if !t.IsRemoved(name) {
				t.RemovedTools = append(t.RemovedTools, name)
			}
		}
		for i, enabled := range t.EnabledTools {
			if enabled == name {
				t.EnabledTools = append(t.EnabledTools[:i], t.EnabledTools[i+1:]...)
				break
			}
		}
	}
}

// IsRemoved reports whether a tool without an Enable* flag was removed.
func (t *ToolsConfig) IsRemoved(name string) bool {
	for _, removed := range t.RemovedTools {
		if removed == name {
			return true
		}
	}
	return false
}

// ResolvedShellType returns the effective ShellType, accounting for EnableShell.
func (t ToolsConfig) ResolvedShellType() ShellType {
	if !t.EnableShell {
		return ShellToolDisabled
	}
	if t.ShellType == "" {
		return ShellToolDefault
	}
	return t.ShellType
}

// DefaultToolsConfig returns default tools configuration
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		EnableShell:      true,
		EnableReadFile:   true,
		EnableWriteFile:  true,
		EnableListDir:    true,
		EnableGrepFiles:  true,
		EnableApplyPatch: true,
		EnableUpdatePlan: true,
		EnableCollab:     false,
	}
}

// WebSearchMode controls whether the native provider web_search tool is attached.
type WebSearchMode string

const (
	WebSearchModeOff    WebSearchMode = ""
	WebSearchModeAuto   WebSearchMode = "auto"
	WebSearchModeForced WebSearchMode = "forced"
)

// SessionConfiguration configures a complete agentic session.
type SessionConfiguration struct {
	// Instructions hierarchy (base / developer / user tiers)
	BaseInstructions         string `json:"base_instructions,omitempty"`          // Core system prompt for the model
	DeveloperInstructions    string `json:"developer_instructions,omitempty"`     // Developer overrides (sent as developer message)
	UserInstructions         string `json:"user_instructions,omitempty"`          // Project docs (AGENTS.md content)
	CLIProjectDocs           string `json:"cli_project_docs,omitempty"`           // AGENTS.md discovered by the CLI's local project
	UserPersonalInstructions string `json:"user_personal_instructions,omitempty"` // From $CODEX_HOME/instructions.md

	// Model configuration
	Model ModelConfig `json:"model"`

	// Tool configuration
	Tools ToolsConfig `json:"tools"`

	// Execution context
	Cwd       string `json:"cwd,omitempty"`        // Working directory for tool execution
	CodexHome string `json:"codex_home,omitempty"` // $CODEX_HOME override

	// Approval and sandbox policy
	ApprovalMode         ApprovalMode `json:"approval_mode,omitempty"`
	SandboxMode          string       `json:"sandbox_mode,omitempty"`
	SandboxWritableRoots []string     `json:"sandbox_writable_roots,omitempty"`
	SandboxNetworkAccess bool         `json:"sandbox_network_access,omitempty"`

	// SandboxExcludeTmpdirEnvVar strips TMPDIR from spawned child envs.
	SandboxExcludeTmpdirEnvVar bool `json:"sandbox_exclude_tmpdir_env_var,omitempty"`

	// SandboxExcludeSlashTmp removes the default writable /tmp grant in
	// workspace-write mode.
	SandboxExcludeSlashTmp bool `json:"sandbox_exclude_slash_tmp,omitempty"`

	// ExecPolicyRules holds the Starlark exec policy source used to
	// auto-classify shell commands. Empty means the built-in defaults.
	ExecPolicyRules string `json:"exec_policy_rules,omitempty"`

	// McpServers configures Model Context Protocol servers to connect to
	// for the duration of the session.
	McpServers map[string]mcp.McpServerConfig `json:"mcp_servers,omitempty"`

	// AutoCompactTokenLimit overrides the context-window fraction at which
	// the session auto-compacts conversation history. Zero means use the
	// default computed from Model.ContextWindow.
	AutoCompactTokenLimit int `json:"auto_compact_token_limit,omitempty"`

	// SessionTaskQueue overrides the Temporal task queue that session
	// activities (LLM calls, tool execution) are dispatched on.
	SessionTaskQueue string `json:"session_task_queue,omitempty"`

	// DisableSuggestions turns off the post-turn follow-up suggestion pass.
	DisableSuggestions bool `json:"disable_suggestions,omitempty"`

	// UseWorktree runs the session's tools in a dedicated git worktree
	// branched from the repository at Cwd, keeping the user's checkout
	// untouched.
	UseWorktree bool `json:"use_worktree,omitempty"`

	// Session metadata
	SessionSource string `json:"session_source,omitempty"` // "cli", "api", "exec" — for logging/tracking
}

// DefaultSessionConfiguration returns sensible defaults.
func DefaultSessionConfiguration() SessionConfiguration {
	return SessionConfiguration{
		Model:        DefaultModelConfig(),
		Tools:        DefaultToolsConfig(),
		ApprovalMode: ApprovalUnlessTrusted,
	}
}
