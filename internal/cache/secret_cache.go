package cache

import (
	"maps"
	"sort"
	"sync"

	"github.com/kevin07696/vault-secret-agent/internal/domain"
	"github.com/kevin07696/vault-secret-agent/pkg/timeutil"
)

// SecretCache is the in-memory store of the latest successful read for every tracked path.
// Entries are replaced wholesale and never deleted, so a failed refresh keeps serving the
// previous value.
type SecretCache struct {
	mu      sync.RWMutex
	entries map[string]domain.SecretEntry
	clock   timeutil.Clock
}

// New creates an empty cache
func New(clock timeutil.Clock) *SecretCache {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &SecretCache{
		entries: make(map[string]domain.SecretEntry),
		clock:   clock,
	}
}

// Put replaces the entry for path and returns the stored copy
func (c *SecretCache) Put(path string, fields map[string]string, version *int64) domain.SecretEntry {
	entry := domain.SecretEntry{
		Path:      path,
		Fields:    maps.Clone(fields),
		FetchedAt: c.clock.Now(),
	}
	if entry.Fields == nil {
		entry.Fields = map[string]string{}
	}
	if version != nil {
		v := *version
		entry.Version = &v
	}

	c.mu.Lock()
	c.entries[path] = entry
	c.mu.Unlock()

	return entry.Clone()
}

// Get returns a copy of the entry for path
func (c *SecretCache) Get(path string) (domain.SecretEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()

	if !ok {
		return domain.SecretEntry{}, false
	}
	return entry.Clone(), true
}

// Snapshot returns copies of all entries sorted by path
func (c *SecretCache) Snapshot() []domain.SecretEntry {
	c.mu.RLock()
	out := make([]domain.SecretEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry.Clone())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Len returns the number of cached paths
func (c *SecretCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
