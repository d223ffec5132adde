package stores

import "sync"

// MemoryCache is an in-process Cache for tests and ephemeral runs.
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWrites makes Put and Delete fail, simulating a full or broken disk.
	FailWrites bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (c *MemoryCache) Get(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (c *MemoryCache) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrLocalWrite
	}
	c.data[key] = append([]byte(nil), value...)
	return nil
}

func (c *MemoryCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWrites {
		return ErrLocalWrite
	}
	delete(c.data, key)
	return nil
}

func (c *MemoryCache) Close() error { return nil }
