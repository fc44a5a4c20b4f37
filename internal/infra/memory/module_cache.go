package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"learning-progress-service/internal/domain"
)

// ModuleLoader fetches module documents from the backing store.
type ModuleLoader interface {
	GetModule(ctx context.Context, id string) (domain.Module, error)
}

// ModuleCache is the session service's quiz catalog when no redis is configured.
// Start and submit resolve the requested quiz against the cached module, so a
// catalog edit becomes visible to them within one TTL. Progress never reads
// through it; completion keys and totals always come from the store.
type ModuleCache struct {
	loader ModuleLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedModule
}

type cachedModule struct {
	module    domain.Module
	expiresAt time.Time
}

// NewModuleCache wraps loader; entries live for ttl plus up to 10% jitter.
func NewModuleCache(loader ModuleLoader, ttl time.Duration) *ModuleCache {
	return &ModuleCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedModule),
	}
}

// GetModule serves a fresh cached module or loads it once for all concurrent
// callers of the same id. Load errors, including not found, are not cached.
func (c *ModuleCache) GetModule(ctx context.Context, id string) (domain.Module, error) {
	if m, ok := c.lookup(id); ok {
		return m, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		if m, ok := c.lookup(id); ok {
			return m, nil
		}

		m, err := c.loader.GetModule(ctx, id)
		if err != nil {
			return domain.Module{}, err
		}

		c.mu.Lock()
		c.cache[id] = cachedModule{
			module:    m,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return domain.Module{}, err
	}
	return result.(domain.Module), nil
}

// Invalidate drops a cached module so the next quiz resolution reloads it.
func (c *ModuleCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

func (c *ModuleCache) lookup(id string) (domain.Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[id]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Module{}, false
	}
	return entry.module, true
}

func (c *ModuleCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
