package watcher

import (
	"os"
	"strings"
	"sync"

	"github.com/starford/noteapi/internal/checksum"
)

// HashCache remembers the content hash last sent to the index for each
// absolute path. It is shared by the watcher and the inline write path so
// that echoes of the service's own writes are recognised.
type HashCache struct {
	mu sync.Mutex
	m  map[string]uint64
}

// NewHashCache returns an empty cache.
func NewHashCache() *HashCache {
	return &HashCache{m: make(map[string]uint64)}
}

// Get returns the hash recorded for abs.
func (c *HashCache) Get(abs string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.m[abs]
	return h, ok
}

// Set records h for abs.
func (c *HashCache) Set(abs string, h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[abs] = h
}

// Remember records the hash of data for abs.
func (c *HashCache) Remember(abs string, data []byte) {
	c.Set(abs, checksum.Fast(data))
}

// Forget drops abs.
func (c *HashCache) Forget(abs string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, abs)
}

// Under returns every cached path inside dir.
func (c *HashCache) Under(dir string) []string {
	prefix := strings.TrimSuffix(dir, string(os.PathSeparator)) + string(os.PathSeparator)
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for p := range c.m {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of cached paths.
func (c *HashCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

// Clear empties the cache.
func (c *HashCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
}
