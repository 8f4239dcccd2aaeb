package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClientSource yields the current redis client. A reconnecting holder
// satisfies this, so the cache keeps working after the underlying client
// has been swapped and the old one closed.
type ClientSource interface {
	Get() redis.UniversalClient
}

var errNoClient = errors.New("cache: no redis client available")

// Cache remembers which object keys are known to exist in the bucket, so
// repeated status polls do not translate into repeated HEAD probes.
// Only positive results are cached; absence is always re-checked.
type Cache struct {
	Clients   ClientSource
	Namespace string
	TTL       time.Duration
}

func NewCache(namespace string, clients ClientSource) *Cache {
	return &Cache{
		Namespace: namespace,
		Clients:   clients,
		TTL:       24 * time.Hour,
	}
}

// Exists reports whether key was previously marked as present. Errors are
// treated as a miss; the caller falls back to the store probe.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	cl := c.Clients.Get()
	if cl == nil {
		return false
	}
	n, err := cl.Exists(ctx, c.Namespace+":"+key).Result()
	return err == nil && n > 0
}

// MarkExists records that key is present in the bucket.
func (c *Cache) MarkExists(ctx context.Context, key string) error {
	cl := c.Clients.Get()
	if cl == nil {
		return errNoClient
	}
	return cl.Set(ctx, c.Namespace+":"+key, "1", c.TTL).Err()
}

// Remove drops the recorded flag for key, forcing the next check back to
// the store probe.
func (c *Cache) Remove(ctx context.Context, key string) error {
	cl := c.Clients.Get()
	if cl == nil {
		return errNoClient
	}
	return cl.Del(ctx, c.Namespace+":"+key).Err()
}
