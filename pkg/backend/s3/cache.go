package s3

import (
	"sync"
	"time"

	"github.com/ACT3ai/jfk-blossom-server/pkg/backend"
)

// objectEntry is one remote object as last seen by the backend.
type objectEntry struct {
	Name     string
	Size     int64
	Modified time.Time
}

// objectCache is the backend's view of the bucket contents.
//
// Entries are grouped by the hash parsed from the object name; names that do
// not start with a valid hash are kept under "" so full listings still
// report them. Within a hash, entries keep insertion order and the first one
// is canonical.
//
// Thread Safety:
// All access goes through mu. Readers receive copies, never slices that a
// later write could mutate.
type objectCache struct {
	mu     sync.RWMutex
	byHash map[string][]objectEntry
}

func newObjectCache() *objectCache {
	return &objectCache{byHash: make(map[string][]objectEntry)}
}

// replace swaps the whole cache contents for entries.
func (c *objectCache) replace(entries []objectEntry) {
	byHash := make(map[string][]objectEntry, len(entries))
	for _, e := range entries {
		h := backend.HashFromName(e.Name)
		byHash[h] = append(byHash[h], e)
	}

	c.mu.Lock()
	c.byHash = byHash
	c.mu.Unlock()
}

// first returns the canonical entry for hash.
func (c *objectCache) first(hash string) (objectEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := c.byHash[hash]
	if hash == "" || len(entries) == 0 {
		return objectEntry{}, false
	}
	return entries[0], true
}

// entries returns a copy of every entry stored for hash.
func (c *objectCache) entries(hash string) []objectEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if hash == "" {
		return nil
	}
	return append([]objectEntry(nil), c.byHash[hash]...)
}

// add appends e unless an entry with the same name is already present.
func (c *objectCache) add(e objectEntry) {
	h := backend.HashFromName(e.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.byHash[h] {
		if existing.Name == e.Name {
			return
		}
	}
	c.byHash[h] = append(c.byHash[h], e)
}

// evict removes the entry named name.
func (c *objectCache) evict(name string) {
	h := backend.HashFromName(name)

	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.byHash[h]
	kept := make([]objectEntry, 0, len(entries))
	for _, e := range entries {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(c.byHash, h)
		return
	}
	c.byHash[h] = kept
}

// snapshot returns a copy of every cached entry.
func (c *objectCache) snapshot() []objectEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []objectEntry
	for _, entries := range c.byHash {
		out = append(out, entries...)
	}
	return out
}

// len returns the number of cached entries.
func (c *objectCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, entries := range c.byHash {
		n += len(entries)
	}
	return n
}
