// Package approval implements the per-session Approval Cache (spec.md §4.8):
// a set of exact command argv vectors the user has pre-approved for the
// remainder of the session.
package approval

import "strings"

// Cache holds exact-match approved commands. Equality is elementwise over
// the argv vector (spec.md §4.8 and the Open Question resolution in
// SPEC_FULL.md §9: this implementation does not loosen to a prefix match).
//
// Cache is plain data (a map), not a mutex-guarded type: the Turn Engine
// runs as Temporal workflow code, which is already single-threaded per
// workflow execution, and the cache must itself be part of the serializable
// workflow state so it survives continue-as-new — see
// internal/workflow/state.go's SessionState.
type Cache struct {
	approved map[string]bool
}

// NewCache creates an empty approval cache.
func NewCache() *Cache {
	return &Cache{approved: make(map[string]bool)}
}

// Contains reports whether cmd has previously been approved for the
// session.
func (c *Cache) Contains(cmd []string) bool {
	if c == nil {
		return false
	}
	return c.approved[fingerprint(cmd)]
}

// Insert records cmd as approved for the remainder of the session.
func (c *Cache) Insert(cmd []string) {
	if c.approved == nil {
		c.approved = make(map[string]bool)
	}
	c.approved[fingerprint(cmd)] = true
}

// Snapshot returns the cache contents as a plain map, suitable for
// embedding in workflow state that Temporal serializes to JSON.
func (c *Cache) Snapshot() map[string]bool {
	out := make(map[string]bool, len(c.approved))
	for k, v := range c.approved {
		out[k] = v
	}
	return out
}

// FromSnapshot rebuilds a Cache from a previously captured Snapshot, e.g.
// after a workflow continue-as-new or rollout resume.
func FromSnapshot(snapshot map[string]bool) *Cache {
	c := NewCache()
	for k, v := range snapshot {
		c.approved[k] = v
	}
	return c
}

// fingerprint joins argv with a separator that cannot appear inside a
// shell argument unescaped, so distinct vectors never collide.
func fingerprint(cmd []string) string {
	return strings.Join(cmd, "\x1f")
}
