package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"learning-progress-service/internal/domain"
)

// ModuleLoader fetches module documents from the backing store.
type ModuleLoader interface {
	GetModule(ctx context.Context, id string) (domain.Module, error)
}

// ModuleCache caches module JSON in Redis so every instance shares catalog reads.
// Entries are stored as: SET catalog:module:{id} {json} EX ttl
type ModuleCache struct {
	client *redis.Client
	loader ModuleLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewModuleCache(client *redis.Client, loader ModuleLoader, ttl time.Duration) *ModuleCache {
	return &ModuleCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ModuleCache) GetModule(ctx context.Context, id string) (domain.Module, error) {
	if m, ok := c.cached(ctx, id); ok {
		return m, nil
	}

	result, err, _ := c.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if m, ok := c.cached(ctx, id); ok {
			return m, nil
		}

		m, err := c.loader.GetModule(ctx, id)
		if err != nil {
			return domain.Module{}, err
		}

		raw, err := json.Marshal(m)
		if err == nil {
			if err := c.client.Set(ctx, c.key(id), raw, c.ttlWithJitter()).Err(); err != nil {
				log.Printf("cache module %s: %v", id, err)
			}
		}
		return m, nil
	})
	if err != nil {
		return domain.Module{}, err
	}
	return result.(domain.Module), nil
}

// Invalidate drops a cached module.
func (c *ModuleCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *ModuleCache) cached(ctx context.Context, id string) (domain.Module, bool) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		return domain.Module{}, false
	}
	var m domain.Module
	if err := json.Unmarshal(raw, &m); err != nil {
		return domain.Module{}, false
	}
	return m, true
}

func (c *ModuleCache) key(id string) string {
	return "catalog:module:" + id
}

func (c *ModuleCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
