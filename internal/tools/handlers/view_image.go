package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/turnrelay/engine/internal/tools"
)

// ViewImageTool attaches a local image to the next user message, per
// spec.md §4.2's view_image contract.
type ViewImageTool struct {
	// onAttach, if set, receives the resolved path and data URL so the
	// caller (the turn engine) can push a pending InputImage item into the
	// next prompt. Left nil in contexts that only need the tool output
	// text (e.g. unit tests).
	onAttach func(path, dataURL string)
}

// NewViewImageTool creates a view_image handler. onAttach may be nil.
func NewViewImageTool(onAttach func(path, dataURL string)) *ViewImageTool {
	return &ViewImageTool{onAttach: onAttach}
}

func (t *ViewImageTool) Name() string { return "view_image" }

func (t *ViewImageTool) Kind() tools.ToolKind { return tools.ToolKindFunction }

func (t *ViewImageTool) IsMutating(_ *tools.ToolInvocation) bool { return false }

func (t *ViewImageTool) Handle(_ context.Context, invocation *tools.ToolInvocation) (*tools.ToolOutput, error) {
	pathArg, ok := invocation.Arguments["path"]
	if !ok {
		return nil, tools.NewValidationError("missing required argument: path")
	}
	path, ok := pathArg.(string)
	if !ok || path == "" {
		return nil, tools.NewValidationError("path must be a non-empty string")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(invocation.Cwd, abs)
	}

	info, err := os.Stat(abs)
	if err != nil {
		failure := false
		return &tools.ToolOutput{
			Content: fmt.Sprintf("unable to locate image at `%s`: %v", abs, err),
			Success: &failure,
		}, nil
	}
	if !info.Mode().IsRegular() {
		failure := false
		return &tools.ToolOutput{
			Content: fmt.Sprintf("image path `%s` is not a file", abs),
			Success: &failure,
		}, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		failure := false
		return &tools.ToolOutput{
			Content: fmt.Sprintf("unable to locate image at `%s`: %v", abs, err),
			Success: &failure,
		}, nil
	}

	mimeType := mime.TypeByExtension(filepath.Ext(abs))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	if t.onAttach != nil {
		t.onAttach(abs, dataURL)
	}

	// The data URL rides back on the output so the turn engine can push
	// the image into the next prompt.
	success := true
	return &tools.ToolOutput{
		Content:   "attached local image path",
		Success:   &success,
		ImageURL:  dataURL,
		ImagePath: abs,
	}, nil
}
