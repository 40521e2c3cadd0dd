package rollout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FilenameLayout produces the rollout path for a session started at ts with
// the given uuid, rooted at home — spec.md §6:
// ${home}/sessions/YYYY/MM/DD/rollout-YYYY-MM-DDThh-mm-ss-<uuid>.jsonl
func FilenameLayout(home string, ts time.Time, id uuid.UUID) string {
	ts = ts.UTC()
	dir := filepath.Join(home, "sessions",
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()))
	name := fmt.Sprintf("rollout-%s-%s.jsonl", ts.Format("2006-01-02T15-04-05"), id.String())
	return filepath.Join(dir, name)
}

// SessionUUID derives the UUID embedded in a session's rollout filename.
// A session id that already is a UUID is used as-is; any other id (e.g. a
// workflow id) maps to a stable name-based UUID so resume can re-derive it.
func SessionUUID(sessionID string) uuid.UUID {
	if id, err := uuid.Parse(sessionID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(sessionID))
}

// writeRequest is one append job submitted to the Writer's single-writer
// goroutine.
type writeRequest struct {
	item Item
	done chan error
}

// Writer is the single-writer-task JSONL appender for one session, fed by a
// buffered channel — mirrors the teacher's single-writer-per-PTY-session
// idiom in internal/execsession (one goroutine owns the file handle; all
// other goroutines hand it work over a channel instead of sharing a mutex).
type Writer struct {
	path    string
	f       *os.File
	reqs    chan writeRequest
	closed  chan struct{}
	closeFn chan chan error
}

// NewWriter creates the rollout file (and its year/month/day directories)
// and starts the writer goroutine. The first Append call is expected to be
// a SessionMeta item.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create session dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open %s: %w", path, err)
	}

	w := &Writer{
		path:    path,
		f:       f,
		reqs:    make(chan writeRequest, 64),
		closed:  make(chan struct{}),
		closeFn: make(chan chan error),
	}
	go w.run()
	return w, nil
}

func (w *Writer) run() {
	defer close(w.closed)
	enc := json.NewEncoder(w.f)
	for {
		select {
		case req := <-w.reqs:
			req.done <- enc.Encode(req.item)
		case reply := <-w.closeFn:
			// Drain any queued writes before syncing and closing, so a
			// Shutdown immediately after a burst of Append calls doesn't
			// drop the tail of the transcript.
			for {
				select {
				case req := <-w.reqs:
					req.done <- enc.Encode(req.item)
					continue
				default:
				}
				break
			}
			reply <- w.f.Sync()
			reply <- w.f.Close()
			return
		}
	}
}

// Append writes one RolloutItem as a JSON line. fsync is not required
// between calls per spec.md §4.10's write policy; it happens only in
// Close.
func (w *Writer) Append(item Item) error {
	done := make(chan error, 1)
	select {
	case w.reqs <- writeRequest{item: item, done: done}:
	case <-w.closed:
		return fmt.Errorf("rollout: writer for %s is closed", w.path)
	}
	return <-done
}

// Close flushes (fsync) and closes the underlying file. MUST be called
// before a Shutdown submission returns, per spec.md §4.10.
func (w *Writer) Close() error {
	reply := make(chan error, 2)
	select {
	case w.closeFn <- reply:
	case <-w.closed:
		return nil
	}
	syncErr := <-reply
	closeErr := <-reply
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
