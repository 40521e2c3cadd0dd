package rollout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ListMode selects how much of each file the listing API returns, per
// spec.md §4.10.
type ListMode int

const (
	// Full returns every line of each matched file.
	Full ListMode = iota
	// Lite returns the first 5 non-state lines, the last 5, and the most
	// recent state (TurnContext) line — enough for a session picker to
	// show a preview without reading the whole transcript.
	Lite
)

const maxFilesScannedPerRequest = 50_000

// ListRequest is the paginated listing request shape from spec.md §4.10.
type ListRequest struct {
	PageSize  int
	PageToken string
	Start     *time.Time
	End       *time.Time
	IDs       map[string]bool // optional filter to specific session ids
	Mode      ListMode
}

// ListEntry is one file's listing result.
type ListEntry struct {
	Path  string
	Meta  SessionMeta
	Items []Item
}

// ListResult is one page of a listing, with a token to fetch the next page.
type ListResult struct {
	Entries       []ListEntry
	NextPageToken string
	FilesScanned  int
	Truncated     bool // true if the 50,000-file scan cap was hit
}

// fileTimestamp parses the "YYYY-MM-DDThh-mm-ss" embedded in a rollout
// filename, used both for range filtering and for page tokens.
func fileTimestamp(path string) (time.Time, error) {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, "rollout-")
	base = strings.TrimSuffix(base, ".jsonl")
	// base is now "YYYY-MM-DDThh-mm-ss-<uuid>"; the timestamp is the first
	// 19 characters ("2006-01-02T15-04-05").
	if len(base) < 19 {
		return time.Time{}, fmt.Errorf("rollout: malformed filename %s", path)
	}
	return time.Parse("2006-01-02T15-04-05", base[:19])
}

func fileSessionID(path string) string {
	base := filepath.Base(path)
	base = strings.TrimPrefix(base, "rollout-")
	base = strings.TrimSuffix(base, ".jsonl")
	if len(base) <= 20 {
		return ""
	}
	return base[20:]
}

// encodeToken produces the "<file_ts>|<uuid>" page token format.
func encodeToken(path string) (string, error) {
	ts, err := fileTimestamp(path)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d|%s", ts.Unix(), fileSessionID(path)), nil
}

func decodeToken(token string) (unixTS int64, sessionID string, err error) {
	parts := strings.SplitN(token, "|", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("rollout: malformed page token %q", token)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("rollout: malformed page token %q: %w", token, err)
	}
	return ts, parts[1], nil
}

// List walks home/sessions/YYYY/MM/DD in chronological order, applying the
// time range, id filter, and page token, and returns up to PageSize
// entries.
func List(home string, req ListRequest) (*ListResult, error) {
	root := filepath.Join(home, "sessions")

	var allFiles []string
	scanned := 0
	truncated := false

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort walk
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		scanned++
		if scanned > maxFilesScannedPerRequest {
			truncated = true
			return filepath.SkipAll
		}
		allFiles = append(allFiles, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rollout: walk %s: %w", root, err)
	}

	sort.Strings(allFiles)

	var afterUnix int64 = -1
	var afterID string
	if req.PageToken != "" {
		afterUnix, afterID, err = decodeToken(req.PageToken)
		if err != nil {
			return nil, err
		}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	var entries []ListEntry
	var nextToken string

	for _, path := range allFiles {
		ts, err := fileTimestamp(path)
		if err != nil {
			continue
		}
		if req.Start != nil && ts.Before(*req.Start) {
			continue
		}
		if req.End != nil && ts.After(*req.End) {
			continue
		}
		if afterUnix >= 0 {
			if ts.Unix() < afterUnix || (ts.Unix() == afterUnix && fileSessionID(path) <= afterID) {
				continue
			}
		}
		id := fileSessionID(path)
		if req.IDs != nil && !req.IDs[id] {
			continue
		}

		// Page full: the token records the last entry returned, so the
		// continuation resumes strictly after it.
		if len(entries) >= pageSize {
			nextToken, err = encodeToken(entries[len(entries)-1].Path)
			if err != nil {
				return nil, err
			}
			break
		}

		loaded, err := Load(path)
		if err != nil {
			continue
		}
		items := loaded.Items
		if req.Mode == Lite {
			items = liteView(items)
		}
		entries = append(entries, ListEntry{Path: path, Meta: loaded.Meta, Items: items})
	}

	return &ListResult{
		Entries:       entries,
		NextPageToken: nextToken,
		FilesScanned:  scanned,
		Truncated:     truncated,
	}, nil
}

// liteView keeps the first 5 non-state lines, the last 5, and the most
// recent TurnContext ("state") line, per spec.md §4.10.
func liteView(items []Item) []Item {
	var nonState []Item
	var lastState *Item
	for i := range items {
		if items[i].Kind == KindTurnContext {
			lastState = &items[i]
			continue
		}
		nonState = append(nonState, items[i])
	}

	var head, tail []Item
	if len(nonState) <= 10 {
		head = nonState
	} else {
		head = nonState[:5]
		tail = nonState[len(nonState)-5:]
	}

	out := make([]Item, 0, len(head)+len(tail)+1)
	out = append(out, head...)
	out = append(out, tail...)
	if lastState != nil {
		out = append(out, *lastState)
	}
	return out
}
