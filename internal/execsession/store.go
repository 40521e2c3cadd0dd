package execsession

import "sync"

// Store is a worker-scoped registry of live exec sessions for one
// conversation, keyed by a monotonically increasing integer id. Mirrors the
// pattern used by mcp.McpStore: created once per session, shared across
// activity invocations for the lifetime of the enclosing workflow.
type Store struct {
	mu      sync.Mutex
	nextID  int32
	byID    map[int32]*ExecSession
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{byID: make(map[int32]*ExecSession)}
}

// Allocate reserves the next session id without yet registering a session.
// Callers spawn the process and then call Put with the returned id.
func (s *Store) Allocate() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID
}

// Put registers a session under the given id, replacing any prior entry.
func (s *Store) Put(id int32, sess *ExecSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[id] = sess
}

// Get returns the session for id and whether it is still present and
// running. A session whose process has already exited is removed and (nil,
// false) is returned, so the caller can surface UnknownSessionId.
func (s *Store) Get(id int32) (*ExecSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	if sess.HasExited() {
		delete(s.byID, id)
		return nil, false
	}
	return sess, true
}

// Remove drops a session from the store without closing it (the process may
// already have exited on its own).
func (s *Store) Remove(id int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// CloseAll terminates and forgets every session. Called when the enclosing
// Session ends (spec.md §3: PtySession lives until the Session ends).
func (s *Store) CloseAll() {
	s.mu.Lock()
	sessions := make([]*ExecSession, 0, len(s.byID))
	for id, sess := range s.byID {
		sessions = append(sessions, sess)
		delete(s.byID, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Registry is a worker-scoped map from conversation id to that
// conversation's Store. Created once at worker startup, shared across
// activities — same pattern as mcp.McpStore.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Store)}
}

// GetOrCreate returns the Store for sessionID, creating it if absent.
func (r *Registry) GetOrCreate(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.sessions[sessionID]; ok {
		return st
	}
	st := NewStore()
	r.sessions[sessionID] = st
	return st
}

// Remove closes every session belonging to sessionID and forgets its Store.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	st, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		st.CloseAll()
	}
}
