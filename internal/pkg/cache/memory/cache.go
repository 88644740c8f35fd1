package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache usa go-cache com expiração por TTL. O mutex cobre as
// operações leia-modifique-grave (AddOnce, Incr) que precisam ser atômicas.
type MemoryCache struct {
	mu    sync.Mutex
	items *gocache.Cache
}

func NewCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &MemoryCache{
		items: gocache.New(defaultTTL, 2*defaultTTL),
	}
}

func (c *MemoryCache) AddOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.items.Add(key, "1", ttl); err != nil {
		return false, nil // já vista dentro da janela
	}
	return true, nil
}

func (c *MemoryCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.items.Get(key); !found {
		c.items.Set(key, int64(1), gocache.NoExpiration)
		return 1, nil
	}
	val, err := c.items.IncrementInt64(key, 1)
	if err != nil {
		// valor não numérico: recomeça do 1
		c.items.Set(key, int64(1), gocache.NoExpiration)
		return 1, nil
	}
	return val, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, found := c.items.Get(key)
	if !found {
		return "", false, nil
	}
	switch v := val.(type) {
	case string:
		return v, true, nil
	case int64:
		return strconv.FormatInt(v, 10), true, nil
	default:
		return "", false, nil
	}
}

func (c *MemoryCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	c.items.Set(key, value, ttl)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.items.Delete(key)
	return nil
}
