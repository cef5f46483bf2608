// Package viewcache caches rendered aggregate views in Redis.
//
// Every cached entry is keyed by the version counters of the scopes it
// depends on. Bumping a scope makes every entry built on an older version
// unreachable; stale keys simply expire.
package viewcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Invalidation scopes.
const (
	ScopeProducts  = "products"
	ScopeDashboard = "dashboard"
	ScopeAnalytics = "analytics"

	versionPrefix = "viewcache:version:"
	entryPrefix   = "viewcache:entry:"
	bumpChannel   = "viewcache.bump"
)

// PriceHistScope is the scope of the price list of one product.
func PriceHistScope(code string) string {
	return "pricehist:" + code
}

// Cache wraps Redis based caching with per-scope versioning.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// New instantiates the cache helper. A nil client disables caching.
func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current version of scope, initialising when missing.
func (c *Cache) Version(ctx context.Context, scope string) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	key := versionPrefix + scope
	ver, err := c.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes an entry key from the current versions of scopes and the given parts.
func (c *Cache) BuildKey(ctx context.Context, scopes []string, parts ...string) (string, error) {
	sorted := append([]string(nil), scopes...)
	sort.Strings(sorted)
	segs := make([]string, 0, len(sorted)+len(parts))
	for _, scope := range sorted {
		ver, err := c.Version(ctx, scope)
		if err != nil {
			return "", err
		}
		segs = append(segs, fmt.Sprintf("%s@%d", scope, ver))
	}
	segs = append(segs, parts...)
	return entryPrefix + strings.Join(segs, ":"), nil
}

// FetchJSON loads a cached value or populates it using the loader.
// Concurrent misses on the same key share one loader call.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("viewcache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	raw, err, _ := c.group.Do(key, func() (any, error) {
		value, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw.([]byte), dest)
}

// Load builds the key for scopes and parts and fetches through it.
func (c *Cache) Load(ctx context.Context, scopes []string, parts []string, dest any, loader func(context.Context) (any, error)) error {
	key, err := c.BuildKey(ctx, scopes, parts...)
	if err != nil {
		return err
	}
	return c.FetchJSON(ctx, key, dest, loader)
}

// Bump invalidates scopes by incrementing their versions and publishing an event per scope.
func (c *Cache) Bump(ctx context.Context, scopes ...string) error {
	if c == nil || c.client == nil || len(scopes) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, scope := range scopes {
		pipe.Incr(ctx, versionPrefix+scope)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	for _, scope := range scopes {
		if err := c.client.Publish(ctx, bumpChannel, scope).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ListenForInvalidation calls fn for every scope bumped by any process until ctx ends.
func (c *Cache) ListenForInvalidation(ctx context.Context, fn func(scope string)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" && fn != nil {
					fn(msg.Payload)
				}
			}
		}
	}()
	return nil
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
