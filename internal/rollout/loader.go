package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/turnrelay/engine/internal/models"
)

// Loaded is the result of resuming a session from disk: the session's
// metadata plus every item recorded after it, in file order.
type Loaded struct {
	Meta  SessionMeta
	Items []Item
	Path  string
}

// FindByID locates the newest rollout file under home that contains the
// given session id, per spec.md §4.10's resume rule ("the newest file
// containing that UUID is loaded").
func FindByID(home, sessionID string) (string, error) {
	root := filepath.Join(home, "sessions")
	var candidates []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk; skip unreadable entries
		}
		if d.IsDir() {
			return nil
		}
		if strings.Contains(filepath.Base(path), sessionID) && strings.HasSuffix(path, ".jsonl") {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("rollout: walk %s: %w", root, err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("rollout: no file found for session %s", sessionID)
	}

	// Filenames are lexicographically sortable by embedded timestamp
	// (YYYY-MM-DDThh-mm-ss), so the last one is the newest.
	sort.Strings(candidates)
	return candidates[len(candidates)-1], nil
}

// Load reads a rollout file in full and splits it into SessionMeta plus the
// remaining items, per spec.md §4.10's "Loader produces { meta, items }"
// contract.
func Load(path string) (*Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var meta *SessionMeta
	var items []Item
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("rollout: parse %s: %w", path, err)
		}
		if first {
			first = false
			if item.Kind != KindSessionMeta || item.SessionMeta == nil {
				return nil, fmt.Errorf("rollout: %s does not start with session_meta", path)
			}
			meta = item.SessionMeta
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan %s: %w", path, err)
	}
	if meta == nil {
		return nil, fmt.Errorf("rollout: %s is empty", path)
	}

	return &Loaded{Meta: *meta, Items: items, Path: path}, nil
}

// LastTurnContext returns the most recent TurnContext item, if any —
// resume restores the last known sandbox/approval/cwd/model from it.
func (l *Loaded) LastTurnContext() *TurnContext {
	for i := len(l.Items) - 1; i >= 0; i-- {
		if l.Items[i].Kind == KindTurnContext && l.Items[i].TurnContext != nil {
			return l.Items[i].TurnContext
		}
	}
	return nil
}

// ResponseItems extracts the ResponseItem payloads in order, for
// re-appending to a fresh in-memory History on resume.
func (l *Loaded) ResponseItems() []*models.ConversationItem {
	var out []*models.ConversationItem
	for i := range l.Items {
		if l.Items[i].Kind == KindResponseItem && l.Items[i].ResponseItem != nil {
			out = append(out, l.Items[i].ResponseItem)
		}
	}
	return out
}
