package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Validation limits. Findings beyond maxFindings are counted but not
// included in the model summary; per-finding fields are clipped so a noisy
// linter cannot flood the conversation.
const (
	maxFindings          = 12
	maxToolNameLen       = 120
	maxFindingMessageLen = 800
	externalCheckTimeout = 6 * time.Second
)

// Finding is a single validation issue discovered in a staged file.
type Finding struct {
	Tool    string `json:"tool"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// ValidationReport summarizes all checks run against a patch's staged
// contents. Issues holds at most maxFindings entries; IssueCount is the
// full count and Truncated reports whether any were dropped.
type ValidationReport struct {
	Issues     []Finding `json:"issues"`
	Checks     []string  `json:"checks"`
	IssueCount int       `json:"issue_count"`
	Truncated  bool      `json:"truncated"`
}

// ValidateOptions controls which check layers run.
type ValidateOptions struct {
	// RunExternal enables shelling out to allow-listed lint tools found on
	// PATH. Structural format checks always run.
	RunExternal bool

	// DisabledTools names external tools that must not run even when
	// present on PATH.
	DisabledTools map[string]bool
}

// Validate runs structural and (optionally) external checks over the staged
// new contents of a patch, keyed by the path as written in the patch.
// Validation never blocks application: findings are advisory and are fed
// back to the model alongside the apply result.
func Validate(ctx context.Context, staged map[string]string, opts ValidateOptions) *ValidationReport {
	report := &ValidationReport{Issues: []Finding{}, Checks: []string{}}

	paths := sortedKeys(staged)
	for _, path := range paths {
		runStructuralChecks(report, path, staged[path])
	}

	if opts.RunExternal && len(staged) > 0 {
		runExternalChecks(ctx, report, staged, opts)
	}

	report.IssueCount = len(report.Issues)
	if len(report.Issues) > maxFindings {
		report.Issues = report.Issues[:maxFindings]
		report.Truncated = true
	}
	for i := range report.Issues {
		report.Issues[i].Tool = clip(report.Issues[i].Tool, maxToolNameLen)
		report.Issues[i].Message = clip(report.Issues[i].Message, maxFindingMessageLen)
	}
	return report
}

// runStructuralChecks parses well-known formats in-process. These are cheap
// and always on.
func runStructuralChecks(report *ValidationReport, path, content string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		report.noteCheck("json")
		var v interface{}
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			report.add(Finding{Tool: "json", Path: path, Message: err.Error()})
		}
	case ".toml":
		report.noteCheck("toml")
		var v interface{}
		if err := toml.Unmarshal([]byte(content), &v); err != nil {
			report.add(Finding{Tool: "toml", Path: path, Message: err.Error()})
		}
	case ".yml", ".yaml":
		report.noteCheck("yaml")
		var v interface{}
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			report.add(Finding{Tool: "yaml", Path: path, Message: err.Error()})
		}
	}
}

// externalCheck pairs an allow-listed tool with the argv used to run it
// against one staged file.
type externalCheck struct {
	tool string
	args []string
}

// checksForFile returns the external tools applicable to a staged file.
// Only tools from the fixed allowlist are ever considered.
func checksForFile(path, content string) []externalCheck {
	var checks []externalCheck
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))
	normalized := filepath.ToSlash(path)

	isWorkflow := strings.Contains(normalized, ".github/workflows/") && (ext == ".yml" || ext == ".yaml")
	isScript := ext == ".sh" || strings.HasPrefix(content, "#!")
	isDockerfile := base == "Dockerfile" || strings.HasPrefix(base, "Dockerfile.")

	if isWorkflow {
		checks = append(checks, externalCheck{tool: "actionlint", args: []string{path}})
	}
	if isScript {
		checks = append(checks,
			externalCheck{tool: "shellcheck", args: []string{path}},
			externalCheck{tool: "shfmt", args: []string{"-d", path}},
		)
	}
	if ext == ".md" {
		checks = append(checks,
			externalCheck{tool: "markdownlint", args: []string{path}},
			externalCheck{tool: "markdownlint-cli2", args: []string{path}},
		)
	}
	if isDockerfile {
		checks = append(checks, externalCheck{tool: "hadolint", args: []string{path}})
	}
	if ext == ".yml" || ext == ".yaml" {
		checks = append(checks, externalCheck{tool: "yamllint", args: []string{path}})
	}
	if ext == ".rs" {
		checks = append(checks, externalCheck{tool: "rustfmt", args: []string{"--check", path}})
	}
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".css", ".scss", ".html":
		checks = append(checks, externalCheck{tool: "prettier", args: []string{"--check", path}})
	}
	return checks
}

// runExternalChecks stages the touched files into a temp workspace and runs
// each applicable allow-listed tool that is present on PATH. Every tool run
// is bounded by externalCheckTimeout; a nonzero exit adds a finding, a
// missing tool is silently skipped.
func runExternalChecks(ctx context.Context, report *ValidationReport, staged map[string]string, opts ValidateOptions) {
	workspace, err := os.MkdirTemp("", "patch-validate-*")
	if err != nil {
		return
	}
	defer os.RemoveAll(workspace)

	// Stage under relative names so tool output does not leak temp paths.
	stagedRel := make(map[string]string, len(staged))
	for path, content := range staged {
		rel := stageName(path)
		abs := filepath.Join(workspace, rel)
		if mkErr := os.MkdirAll(filepath.Dir(abs), 0o755); mkErr != nil {
			continue
		}
		if wrErr := os.WriteFile(abs, []byte(content), 0o644); wrErr != nil {
			continue
		}
		stagedRel[path] = rel
	}

	// Each markdownlint flavor is an alternative, not an addition: once one
	// of the pair has run for a file, skip the other.
	for _, path := range sortedKeys(staged) {
		rel, ok := stagedRel[path]
		if !ok {
			continue
		}
		ranMarkdownlint := false
		for _, check := range checksForFile(rel, staged[path]) {
			if opts.DisabledTools[check.tool] {
				continue
			}
			if strings.HasPrefix(check.tool, "markdownlint") {
				if ranMarkdownlint {
					continue
				}
			}
			if _, lookErr := exec.LookPath(check.tool); lookErr != nil {
				continue
			}
			if strings.HasPrefix(check.tool, "markdownlint") {
				ranMarkdownlint = true
			}
			report.noteCheck(check.tool)
			runOneExternalCheck(ctx, report, workspace, path, check)
		}
	}
}

// runOneExternalCheck executes a single tool with a timeout, capturing
// combined output. Nonzero exit or timeout becomes a finding; failures to
// even start the tool are ignored as best-effort.
func runOneExternalCheck(ctx context.Context, report *ValidationReport, workspace, origPath string, check externalCheck) {
	toolCtx, cancel := context.WithTimeout(ctx, externalCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(toolCtx, check.tool, check.args...)
	cmd.Dir = workspace
	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	if err == nil {
		return
	}
	if toolCtx.Err() == context.DeadlineExceeded {
		report.add(Finding{
			Tool:    check.tool,
			Path:    origPath,
			Message: fmt.Sprintf("check timed out after %s", externalCheckTimeout),
		})
		return
	}
	msg := strings.TrimSpace(combined.String())
	if msg == "" {
		msg = err.Error()
	}
	report.add(Finding{Tool: check.tool, Path: origPath, Message: msg})
}

// stageName converts a patch path (possibly absolute) into a relative name
// inside the staging workspace, preserving enough of the tail for tools
// that key off directory layout (e.g. actionlint's .github/workflows).
func stageName(path string) string {
	normalized := filepath.ToSlash(path)
	if idx := strings.Index(normalized, ".github/workflows/"); idx >= 0 {
		return filepath.FromSlash(normalized[idx:])
	}
	if filepath.IsAbs(path) {
		return filepath.Base(path)
	}
	return filepath.Clean(path)
}

// RenderMessage produces the human-readable multi-line summary fed back to
// the model alongside the apply result.
func (r *ValidationReport) RenderMessage() string {
	if r.IssueCount == 0 {
		return "✅ Validate New Code: no issues"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "❌ Validate New Code: %d issue(s)", r.IssueCount)
	for _, f := range r.Issues {
		b.WriteString("\n- ")
		b.WriteString(f.Tool)
		if f.Path != "" {
			b.WriteString(" (")
			b.WriteString(f.Path)
			b.WriteString(")")
		}
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	if r.Truncated {
		fmt.Fprintf(&b, "\n… and %d more issue(s) not shown", r.IssueCount-len(r.Issues))
	}
	return b.String()
}

// JSONSummary renders the structured { validation: … } envelope.
func (r *ValidationReport) JSONSummary() string {
	payload := struct {
		Validation *ValidationReport `json:"validation"`
	}{Validation: r}
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"validation":null}`
	}
	return string(data)
}

func (r *ValidationReport) add(f Finding) {
	r.Issues = append(r.Issues, f)
}

// noteCheck records a check name once, preserving first-seen order.
func (r *ValidationReport) noteCheck(name string) {
	for _, c := range r.Checks {
		if c == name {
			return
		}
	}
	r.Checks = append(r.Checks, name)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
