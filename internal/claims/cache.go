package claims

import (
	"sync"
	"time"
)

// statCache is a short-TTL read-through cache over file stats. It
// only exists to dedupe redundant lookups when one verification call
// checks the same path several times; a disabled cache (zero TTL) is
// always correct.
type statCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]statEntry
}

type statEntry struct {
	state    FileState
	exists   bool
	storedAt time.Time
}

func newStatCache(ttl time.Duration) *statCache {
	return &statCache{
		ttl:     ttl,
		entries: make(map[string]statEntry),
	}
}

// get returns (state, exists, hit).
func (c *statCache) get(path string) (FileState, bool, bool) {
	if c.ttl <= 0 {
		return FileState{}, false, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || timeNow().Sub(e.storedAt) > c.ttl {
		delete(c.entries, path)
		return FileState{}, false, false
	}
	return e.state, e.exists, true
}

func (c *statCache) put(path string, st FileState, exists bool) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = statEntry{state: st, exists: exists, storedAt: timeNow()}
}
