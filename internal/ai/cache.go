package ai

import (
	"slices"
	"sync"
	"time"
)

// ModelsCacheTTL is how long a fetched model list is served without a refresh.
const ModelsCacheTTL = 300 * time.Second

// ModelCache memoizes a provider's model list for a fixed window.
// Concurrent refreshes may both fetch; the last Put wins.
type ModelCache struct {
	TTL time.Duration
	// Now defaults to time.Now.
	Now func() time.Time

	mu     sync.Mutex
	models []string
	at     time.Time
}

func (c *ModelCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *ModelCache) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return ModelsCacheTTL
}

// Get returns a copy of the cached list if it is still fresh.
func (c *ModelCache) Get() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models == nil || c.now().Sub(c.at) >= c.ttl() {
		return nil, false
	}
	return slices.Clone(c.models), true
}

func (c *ModelCache) Put(models []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = slices.Clone(models)
	if c.models == nil {
		c.models = []string{}
	}
	c.at = c.now()
}

func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = nil
	c.at = time.Time{}
}

// Age reports how old the cached list is; ok is false when nothing is cached.
func (c *ModelCache) Age() (age time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.models == nil {
		return 0, false
	}
	return c.now().Sub(c.at), true
}
