package activities

import (
	"context"
	"time"

	"github.com/turnrelay/engine/internal/worktree"
)

// SetupWorktreeInput creates a per-session git worktree branched from the
// repository containing Cwd.
type SetupWorktreeInput struct {
	Cwd  string `json:"cwd"`
	Home string `json:"home"` // engine home; worktrees live under <home>/working
	Task string `json:"task"` // first user message; slugified into the branch name
}

// SetupWorktreeOutput reports where the session's checkout lives.
type SetupWorktreeOutput struct {
	WorktreePath string `json:"worktree_path"`
	Branch       string `json:"branch"`
	CopiedFiles  int    `json:"copied_files"`
}

// WorktreeActivities contains git worktree activities.
type WorktreeActivities struct{}

// NewWorktreeActivities creates a new WorktreeActivities instance.
func NewWorktreeActivities() *WorktreeActivities {
	return &WorktreeActivities{}
}

// SetupWorktree resolves the git root for the session cwd, creates (or
// reuses) a worktree on a task-named branch, and carries the user's
// uncommitted changes into it.
func (a *WorktreeActivities) SetupWorktree(ctx context.Context, input SetupWorktreeInput) (SetupWorktreeOutput, error) {
	gitRoot, err := worktree.GitRoot(ctx, input.Cwd)
	if err != nil {
		return SetupWorktreeOutput{}, err
	}

	m := worktree.NewManager(input.Home)
	branch := worktree.GenerateBranchName(input.Task, time.Now())

	path, effectiveBranch, err := m.Setup(ctx, gitRoot, branch)
	if err != nil {
		return SetupWorktreeOutput{}, err
	}

	copied, err := m.CopyUncommitted(ctx, gitRoot, path)
	if err != nil {
		// The worktree itself is usable; report the copy failure without
		// failing session start.
		copied = 0
	}

	return SetupWorktreeOutput{
		WorktreePath: path,
		Branch:       effectiveBranch,
		CopiedFiles:  copied,
	}, nil
}
