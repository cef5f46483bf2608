package viewcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, time.Minute), mr
}

func TestFetchJSONCachesUntilBump(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"products": calls}, nil
	}

	var got map[string]int
	require.NoError(t, cache.Load(ctx, []string{ScopeProducts}, []string{"list", "p1"}, &got, loader))
	require.NoError(t, cache.Load(ctx, []string{ScopeProducts}, []string{"list", "p1"}, &got, loader))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, got["products"])

	require.NoError(t, cache.Bump(ctx, ScopeDashboard))
	require.NoError(t, cache.Load(ctx, []string{ScopeProducts}, []string{"list", "p1"}, &got, loader))
	assert.Equal(t, 1, calls, "bumping an unrelated scope keeps the entry")

	require.NoError(t, cache.Bump(ctx, ScopeProducts, PriceHistScope("AD0001")))
	require.NoError(t, cache.Load(ctx, []string{ScopeProducts}, []string{"list", "p1"}, &got, loader))
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, got["products"])
}

func TestBuildKeyIsOrderIndependent(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	a, err := cache.BuildKey(ctx, []string{ScopeProducts, ScopeDashboard}, "x")
	require.NoError(t, err)
	b, err := cache.BuildKey(ctx, []string{ScopeDashboard, ScopeProducts}, "x")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "viewcache:entry:dashboard@1:products@1:x", a)
}

func TestLoaderErrorIsNotCached(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	boom := errors.New("store down")
	var got []string
	err := cache.Load(ctx, []string{ScopeDashboard}, nil, &got, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	err = cache.Load(ctx, []string{ScopeDashboard}, nil, &got, func(context.Context) (any, error) { return []string{"ok"}, nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, got)
}

func TestConcurrentMissesShareLoader(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cache.FetchJSON(ctx, "viewcache:entry:k", &results[i], loader)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestNilCacheCallsLoader(t *testing.T) {
	var cache *Cache
	var got int
	require.NoError(t, cache.FetchJSON(context.Background(), "k", &got, func(context.Context) (any, error) { return 7, nil }))
	assert.Equal(t, 7, got)
	require.NoError(t, cache.Bump(context.Background(), ScopeProducts))
}

func TestListenForInvalidation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan string, 4)
	require.NoError(t, cache.ListenForInvalidation(ctx, func(scope string) { got <- scope }))

	require.NoError(t, cache.Bump(context.Background(), ScopeAnalytics))
	select {
	case scope := <-got:
		assert.Equal(t, ScopeAnalytics, scope)
	case <-time.After(2 * time.Second):
		t.Fatal("no invalidation received")
	}
}
