// Package handlers contains built-in tool handler implementations.
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/turnrelay/engine/internal/command_safety"
	execpkg "github.com/turnrelay/engine/internal/exec"
	"github.com/turnrelay/engine/internal/execenv"
	"github.com/turnrelay/engine/internal/sandbox"
	"github.com/turnrelay/engine/internal/tools"
)

// ShellTool executes shell commands.
type ShellTool struct {
	sandboxMgr sandbox.SandboxManager
}

// NewShellTool creates a new shell tool handler.
func NewShellTool() *ShellTool {
	return &ShellTool{sandboxMgr: sandbox.NewNoopSandboxManager()}
}

// NewShellToolWithSandbox creates a shell tool handler with a sandbox manager.
func NewShellToolWithSandbox(mgr sandbox.SandboxManager) *ShellTool {
	return &ShellTool{sandboxMgr: mgr}
}

// Name returns the tool's name.
func (t *ShellTool) Name() string {
	return "shell"
}

// Kind returns ToolKindFunction.
func (t *ShellTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns true if the command might modify the environment.
// Uses command safety classification to identify read-only commands.
func (t *ShellTool) IsMutating(invocation *tools.ToolInvocation) bool {
	commandArg, ok := invocation.Arguments["command"]
	if !ok {
		return true // Can't determine safety without a command
	}
	command, ok := commandArg.(string)
	if !ok || command == "" {
		return true
	}
	cmdVec := []string{"bash", "-c", command}
	return !command_safety.IsKnownSafeCommand(cmdVec)
}

// Handle executes a shell command. Timeout is managed by Temporal's
// StartToCloseTimeout on the activity options — the context is cancelled
// when the timeout fires, and Temporal retries per the RetryPolicy.
//
// If a SandboxPolicy is set on the invocation, the command is wrapped
// through the SandboxManager before execution.
func (t *ShellTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	commandArg, ok := invocation.Arguments["command"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: command")
	}

	command, ok := commandArg.(string)
	if !ok {
		return nil, tools.NewValidationError("command must be a string")
	}

	if command == "" {
		return nil, tools.NewValidationError("command cannot be empty")
	}

	// A shell invocation of apply_patch is redirected to the patch
	// handler so the envelope goes through validation and the
	// writable-roots check instead of a subprocess.
	if patchText, ok := extractApplyPatchInvocation(command); ok {
		redirect := &tools.ToolInvocation{
			CallID:        invocation.CallID,
			ToolName:      "apply_patch",
			Arguments:     map[string]interface{}{"input": patchText},
			Cwd:           invocation.Cwd,
			SandboxPolicy: invocation.SandboxPolicy,
		}
		return NewApplyPatchTool().Handle(ctx, redirect)
	}

	// Build the command spec and apply sandbox if configured
	spec := sandbox.CommandSpec{
		Program: "bash",
		Args:    []string{"-c", command},
		Cwd:     invocation.Cwd,
	}

	execEnv, err := t.resolveExecEnv(spec, invocation.SandboxPolicy)
	if err != nil {
		return nil, tools.NewValidationError("sandbox setup failed: " + err.Error())
	}

	// A timeout_ms argument bounds this command independently of the
	// activity deadline; expiry is reported to the model with a fixed
	// prefix rather than failing the activity.
	runCtx := ctx
	var timeoutMs int64
	if v, ok := invocation.Arguments["timeout_ms"]; ok {
		if ms, ok := argToInt64(v); ok && ms > 0 {
			timeoutMs = ms
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
			defer cancel()
		}
	}

	cmd := exec.CommandContext(runCtx, execEnv.Command[0], execEnv.Command[1:]...)
	if execEnv.Cwd != "" {
		cmd.Dir = execEnv.Cwd
	}

	// Apply environment variable filtering if an env policy is set.
	// When a policy is present, we clear the inherited env and use the filtered set.
	if invocation.EnvPolicy != nil {
		filteredEnv := resolveFilteredEnv(invocation.EnvPolicy)
		cmd.Env = execenv.EnvMapToSlice(filteredEnv)
	}

	// Apply sandbox environment variables (merged on top of any filtered env)
	if len(execEnv.Env) > 0 {
		if cmd.Env == nil {
			cmd.Env = os.Environ() // start from current env if not already filtered
		}
		cmd.Env = appendEnvMap(cmd.Env, execEnv.Env)
	}

	// Strip variables the sandbox policy forbids (e.g. TMPDIR).
	if policy := sandboxPolicyRefToPolicy(invocation.SandboxPolicy); policy != nil {
		if forbidden := policy.ForbiddenEnvVars(); len(forbidden) > 0 {
			if cmd.Env == nil {
				cmd.Env = os.Environ()
			}
			cmd.Env = stripForbiddenEnv(cmd.Env, forbidden)
		}
	}

	// Capture stdout and stderr separately for smart aggregation with output limiting.
	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	// Aggregate and limit output.
	output := execpkg.AggregateOutput(stdoutBuf.Bytes(), stderrBuf.Bytes())

	// Command-level timeout: report with the fixed prefix and exit 124
	// semantics so the model can decide to retry with a longer budget.
	if timeoutMs > 0 && runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		success := false
		return &tools.ToolOutput{
			Content: fmt.Sprintf("command timed out after %d milliseconds\n", timeoutMs) + string(output),
			Success: &success,
		}, nil
	}

	if err != nil {
		if ctx.Err() != nil {
			// Context cancelled or deadline exceeded — let Temporal handle retry.
			return nil, ctx.Err()
		}
		// Command failed but produced output - return as tool result with Success=false
		success := false
		return &tools.ToolOutput{
			Content: string(output),
			Success: &success,
		}, nil
	}

	success := true
	return &tools.ToolOutput{
		Content: string(output),
		Success: &success,
	}, nil
}

// resolveExecEnv applies sandbox wrapping if a policy is set.
func (t *ShellTool) resolveExecEnv(spec sandbox.CommandSpec, policyRef *tools.SandboxPolicyRef) (*sandbox.ExecEnv, error) {
	if policyRef == nil || t.sandboxMgr == nil {
		return &sandbox.ExecEnv{
			Command: append([]string{spec.Program}, spec.Args...),
			Cwd:     spec.Cwd,
		}, nil
	}

	policy := sandboxPolicyRefToPolicy(policyRef)
	return t.sandboxMgr.Transform(spec, policy)
}

// sandboxPolicyRefToPolicy converts the serializable ref to a sandbox.SandboxPolicy.
func sandboxPolicyRefToPolicy(ref *tools.SandboxPolicyRef) *sandbox.SandboxPolicy {
	if ref == nil {
		return nil
	}
	roots := make([]sandbox.WritableRoot, len(ref.WritableRoots))
	for i, r := range ref.WritableRoots {
		roots[i] = sandbox.WritableRoot(r)
	}
	return &sandbox.SandboxPolicy{
		Mode:                sandbox.SandboxMode(ref.Mode),
		WritableRoots:       roots,
		NetworkAccess:       ref.NetworkAccess,
		ExcludeTmpdirEnvVar: ref.ExcludeTmpdirEnvVar,
		ExcludeSlashTmp:     ref.ExcludeSlashTmp,
	}
}

// stripForbiddenEnv removes policy-forbidden variables from an env slice.
func stripForbiddenEnv(env []string, forbidden []string) []string {
	if len(forbidden) == 0 {
		return env
	}
	banned := make(map[string]bool, len(forbidden))
	for _, name := range forbidden {
		banned[name] = true
	}
	filtered := env[:0]
	for _, entry := range env {
		name, _, _ := strings.Cut(entry, "=")
		if !banned[name] {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

// resolveFilteredEnv converts an EnvPolicyRef to a filtered environment map.
func resolveFilteredEnv(ref *tools.EnvPolicyRef) map[string]string {
	if ref == nil {
		return nil
	}
	policy := &execenv.ShellEnvironmentPolicy{
		Inherit:               execenv.Inherit(ref.Inherit),
		IgnoreDefaultExcludes: ref.IgnoreDefaultExcludes,
		Exclude:               ref.Exclude,
		Set:                   ref.Set,
		IncludeOnly:           ref.IncludeOnly,
	}
	return execenv.CreateEnv(policy)
}

// extractApplyPatchInvocation recognizes a shell command that is really an
// apply_patch call (typically a heredoc) and pulls out the patch envelope.
func extractApplyPatchInvocation(command string) (string, bool) {
	trimmed := strings.TrimSpace(command)
	if !strings.HasPrefix(trimmed, "apply_patch") {
		return "", false
	}
	begin := strings.Index(trimmed, "*** Begin Patch")
	end := strings.LastIndex(trimmed, "*** End Patch")
	if begin < 0 || end < begin {
		return "", false
	}
	return trimmed[begin : end+len("*** End Patch")], true
}

// argToInt64 converts a JSON-decoded numeric argument to int64.
func argToInt64(v interface{}) (int64, bool) {
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

// appendEnvMap appends key=value pairs from a map to an env slice.
func appendEnvMap(base []string, envMap map[string]string) []string {
	for k, v := range envMap {
		base = append(base, k+"="+v)
	}
	return base
}
