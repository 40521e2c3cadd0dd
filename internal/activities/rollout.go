package activities

import (
	"context"
	"sync"
	"time"

	"github.com/turnrelay/engine/internal/rollout"
)

// RolloutActivities owns the per-session rollout writers on this worker.
// Writers are keyed by file path; a worker restart simply re-opens the file
// in append mode on the next write.
type RolloutActivities struct {
	home    string
	mu      sync.Mutex
	writers map[string]*rollout.Writer
}

// NewRolloutActivities creates rollout activities rooted at the engine home
// (rollout files live under <home>/sessions/...).
func NewRolloutActivities(home string) *RolloutActivities {
	return &RolloutActivities{
		home:    home,
		writers: make(map[string]*rollout.Writer),
	}
}

// OpenRolloutInput starts a session transcript.
type OpenRolloutInput struct {
	SessionID string              `json:"session_id"`
	Meta      rollout.SessionMeta `json:"meta"`
}

// OpenRolloutOutput carries the transcript path the workflow persists for
// subsequent appends.
type OpenRolloutOutput struct {
	Path string `json:"path"`
}

// OpenRollout creates the session's rollout file and writes the SessionMeta
// first line.
func (a *RolloutActivities) OpenRollout(_ context.Context, input OpenRolloutInput) (OpenRolloutOutput, error) {
	ts := input.Meta.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	path := rollout.FilenameLayout(a.home, ts, rollout.SessionUUID(input.SessionID))

	w, err := a.writer(path)
	if err != nil {
		return OpenRolloutOutput{}, err
	}
	meta := input.Meta
	meta.Timestamp = ts
	if meta.ID == "" {
		meta.ID = input.SessionID
	}
	if err := w.Append(rollout.Item{Kind: rollout.KindSessionMeta, SessionMeta: &meta}); err != nil {
		return OpenRolloutOutput{}, err
	}
	return OpenRolloutOutput{Path: path}, nil
}

// AppendRolloutInput appends a batch of items to an open transcript.
type AppendRolloutInput struct {
	Path  string         `json:"path"`
	Items []rollout.Item `json:"items"`
}

// AppendRollout appends the items in order. Append-after-emit per the write
// policy: the originating events have already been delivered by the time
// this activity runs.
func (a *RolloutActivities) AppendRollout(_ context.Context, input AppendRolloutInput) error {
	w, err := a.writer(input.Path)
	if err != nil {
		return err
	}
	for _, item := range input.Items {
		if err := w.Append(item); err != nil {
			return err
		}
	}
	return nil
}

// CloseRolloutInput flushes and closes a transcript.
type CloseRolloutInput struct {
	Path string `json:"path"`
}

// CloseRollout fsyncs and closes the writer. Called before a Shutdown
// completes so the transcript is durable.
func (a *RolloutActivities) CloseRollout(_ context.Context, input CloseRolloutInput) error {
	a.mu.Lock()
	w, ok := a.writers[input.Path]
	delete(a.writers, input.Path)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return w.Close()
}

// LoadRolloutInput resumes a session transcript by id.
type LoadRolloutInput struct {
	SessionID string `json:"session_id"`
}

// LoadRolloutOutput returns the resumed transcript.
type LoadRolloutOutput struct {
	Meta  rollout.SessionMeta `json:"meta"`
	Items []rollout.Item      `json:"items"`
	Path  string              `json:"path"`
}

// LoadRollout finds the newest rollout file for the session and loads it.
func (a *RolloutActivities) LoadRollout(_ context.Context, input LoadRolloutInput) (LoadRolloutOutput, error) {
	path, err := rollout.FindByID(a.home, rollout.SessionUUID(input.SessionID).String())
	if err != nil {
		return LoadRolloutOutput{}, err
	}
	loaded, err := rollout.Load(path)
	if err != nil {
		return LoadRolloutOutput{}, err
	}
	return LoadRolloutOutput{Meta: loaded.Meta, Items: loaded.Items, Path: loaded.Path}, nil
}

// writer returns the open writer for path, opening it if needed.
func (a *RolloutActivities) writer(path string) (*rollout.Writer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok := a.writers[path]; ok {
		return w, nil
	}
	w, err := rollout.NewWriter(path)
	if err != nil {
		return nil, err
	}
	a.writers[path] = w
	return w, nil
}
