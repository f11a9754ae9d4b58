package roles

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL bounds how long a snapshot is trusted without a reload.
const DefaultTTL = 15 * time.Minute

type memoryEntry struct {
	snap    Snapshot
	expires time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]memoryEntry
	gens    map[int64]uint64
	now     func() time.Time
}

// NewMemoryCache creates an empty cache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[int64]memoryEntry),
		gens:    make(map[int64]uint64),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, userID int64) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expires) {
		delete(c.entries, userID)
		return nil, nil
	}
	snap := e.snap
	return &snap, nil
}

func (c *MemoryCache) Generation(_ context.Context, userID int64) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

func (c *MemoryCache) Set(_ context.Context, snap *Snapshot, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[snap.UserID] != gen {
		return ErrSuperseded
	}
	c.entries[snap.UserID] = memoryEntry{snap: *snap, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, userID)
	c.gens[userID]++
	return nil
}
