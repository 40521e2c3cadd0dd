package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_ContainsOnEmptyCache(t *testing.T) {
	c := NewCache()
	assert.False(t, c.Contains([]string{"ls", "-la"}))
}

func TestCache_InsertThenContains(t *testing.T) {
	c := NewCache()
	c.Insert([]string{"git", "status"})
	assert.True(t, c.Contains([]string{"git", "status"}))
}

func TestCache_ExactMatchOnly_NotPrefix(t *testing.T) {
	c := NewCache()
	c.Insert([]string{"git", "status"})

	assert.False(t, c.Contains([]string{"git"}), "a prefix of an approved command must not match")
	assert.False(t, c.Contains([]string{"git", "status", "--short"}), "a superset of an approved command must not match")
	assert.False(t, c.Contains([]string{"git", "log"}), "a different second argument must not match")
}

func TestCache_DistinctArgvsDoNotCollideAcrossJoin(t *testing.T) {
	c := NewCache()
	c.Insert([]string{"a", "b,c"})
	assert.False(t, c.Contains([]string{"a", "b", "c"}))
}

func TestCache_NilCacheContainsIsFalse(t *testing.T) {
	var c *Cache
	assert.False(t, c.Contains([]string{"rm", "-rf", "/"}))
}

func TestCache_SnapshotAndFromSnapshotRoundTrip(t *testing.T) {
	c := NewCache()
	c.Insert([]string{"npm", "install"})
	c.Insert([]string{"go", "build", "./..."})

	snap := c.Snapshot()
	restored := FromSnapshot(snap)

	assert.True(t, restored.Contains([]string{"npm", "install"}))
	assert.True(t, restored.Contains([]string{"go", "build", "./..."}))
	assert.False(t, restored.Contains([]string{"npm", "test"}))
}

func TestCache_SnapshotIsIndependentCopy(t *testing.T) {
	c := NewCache()
	c.Insert([]string{"echo", "hi"})
	snap := c.Snapshot()

	c.Insert([]string{"echo", "bye"})
	_, mutated := snap["echo\x1fbye"]
	assert.False(t, mutated, "mutating the cache after Snapshot must not affect the snapshot")
}
