package handlers

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/turnrelay/engine/internal/tools"
	"github.com/turnrelay/engine/internal/tools/patch"
)

// ApplyPatchTool applies structured file patches. Before application the
// staged contents run through the validation checks (structural format
// parses plus best-effort external linters); findings are advisory and are
// appended to the tool output rather than blocking the apply.
type ApplyPatchTool struct {
	validateExternal bool
}

// NewApplyPatchTool creates a new apply_patch tool handler.
func NewApplyPatchTool() *ApplyPatchTool {
	return &ApplyPatchTool{validateExternal: true}
}

// Name returns the tool's name.
func (t *ApplyPatchTool) Name() string {
	return "apply_patch"
}

// Kind returns ToolKindFunction.
func (t *ApplyPatchTool) Kind() tools.ToolKind {
	return tools.ToolKindFunction
}

// IsMutating returns true - apply_patch always modifies the environment.
func (t *ApplyPatchTool) IsMutating(invocation *tools.ToolInvocation) bool {
	return true
}

// Handle parses the patch from the "input" argument and applies it to the filesystem.
func (t *ApplyPatchTool) Handle(ctx context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	inputArg, ok := invocation.Arguments["input"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: input")
	}

	input, ok := inputArg.(string)
	if !ok {
		return nil, tools.NewValidationError("input must be a string")
	}

	if input == "" {
		return nil, tools.NewValidationError("input cannot be empty")
	}

	cwd := invocation.Cwd
	if cwd == "" {
		cwd = "."
	}

	parsed, err := patch.Parse(input)
	if err != nil {
		return failure("apply_patch verification failed: " + err.Error()), nil
	}

	// Patch safety: every affected path must lie within the writable roots
	// (plus cwd). Patches are applied in-process, never sandboxed, so an
	// out-of-bounds path is rejected outright here.
	if denied := checkPatchWritable(parsed, cwd, invocation.SandboxPolicy); denied != "" {
		return failure(denied), nil
	}

	staged, err := patch.Stage(parsed, cwd)
	if err != nil {
		return failure("apply_patch verification failed: " + err.Error()), nil
	}

	report := patch.Validate(ctx, staged, patch.ValidateOptions{RunExternal: t.validateExternal})

	result, err := patch.Apply(input, cwd)
	if err != nil {
		return failure(err.Error() + "\n" + report.RenderMessage()), nil
	}

	success := true
	return &tools.ToolOutput{
		Content: result + report.RenderMessage() + "\n" + report.JSONSummary(),
		Success: &success,
	}, nil
}

// checkPatchWritable verifies every path a patch touches resolves inside
// the writable roots implied by the sandbox policy. Normalization is
// lexical (spec: remove "." and resolve ".." without touching disk).
// Returns a rejection message, or "" when the patch is allowed.
func checkPatchWritable(p *patch.Patch, cwd string, policy *tools.SandboxPolicyRef) string {
	if policy == nil || policy.Mode == "" || policy.Mode == "full-access" {
		return ""
	}
	if policy.Mode == "read-only" {
		return "writing outside of the project; rejected by user approval settings"
	}

	roots := make([]string, 0, len(policy.WritableRoots)+1)
	roots = append(roots, filepath.Clean(cwd))
	for _, r := range policy.WritableRoots {
		roots = append(roots, filepath.Clean(r))
	}

	for _, path := range affectedPaths(p) {
		abs := path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(cwd, abs)
		}
		abs = filepath.Clean(abs)
		if !underAnyRoot(abs, roots) {
			return "writing outside of the project; rejected by user approval settings"
		}
	}
	return ""
}

// affectedPaths collects every path a patch reads or writes, including
// rename destinations.
func affectedPaths(p *patch.Patch) []string {
	var paths []string
	for _, h := range p.Hunks {
		paths = append(paths, h.Path)
		if h.MovePath != "" {
			paths = append(paths, h.MovePath)
		}
	}
	return paths
}

func underAnyRoot(abs string, roots []string) bool {
	for _, root := range roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func failure(content string) *tools.ToolOutput {
	success := false
	return &tools.ToolOutput{Content: content, Success: &success}
}
