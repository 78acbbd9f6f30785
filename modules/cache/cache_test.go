package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/example/file-ingestion/domain/file"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	store, err := NewMemoryStore(16)
	require.NoError(t, err)
	clock := newFakeClock()
	store.SetClock(clock.Now)
	return store, clock
}

func TestMemoryStore_SlidingWindow(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()
	p := Policy{Sliding: 20 * time.Second, Absolute: 100 * time.Second}

	require.NoError(t, store.Set(ctx, "k", []byte("v"), p))

	// each hit inside the sliding window extends it
	for i := 0; i < 3; i++ {
		clock.Advance(12 * time.Second)
		_, ok, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
	}

	// 57s old: under the ceiling, but idle past the sliding window
	clock.Advance(21 * time.Second)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_AbsoluteCeiling(t *testing.T) {
	store, clock := newTestMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), ListingPolicy))

	for i := 0; i < 3; i++ {
		clock.Advance(13 * time.Second)
		_, ok, _ := store.Get(ctx, "k")
		require.True(t, ok)
	}

	// 39s old and just read; one more second reaches the 40s ceiling
	clock.Advance(time.Second)
	_, ok, _ := store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_BoundedSize(t *testing.T) {
	store, err := NewMemoryStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, store.Set(ctx, k, []byte(k), ListingPolicy))
	}
	assert.Equal(t, 2, store.Len())

	_, ok, _ := store.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")
}

func TestPolicyFor(t *testing.T) {
	assert.Equal(t, ListingPolicy, PolicyFor(domain.NoFilter()))
	assert.Equal(t, ListingPolicy, PolicyFor(domain.NameContains("a")))
	assert.Equal(t, DateRangePolicy, PolicyFor(domain.UploadedBetween(nil, nil)))
	assert.Equal(t, 15*time.Second, DateRangePolicy.Sliding)
	assert.Equal(t, 30*time.Second, DateRangePolicy.Absolute)
}

func TestListingKey(t *testing.T) {
	empty, err := domain.ParseFilter("", "")
	require.NoError(t, err)
	unknown, err := domain.ParseFilter("owner", "bob")
	require.NoError(t, err)

	assert.Equal(t, ListingKey(domain.NoFilter()), ListingKey(empty))
	assert.Equal(t, ListingKey(domain.NoFilter()), ListingKey(unknown))
	assert.Equal(t, ListingKey(domain.NameContains("")), "files:name:<none>")
	assert.NotEqual(t, ListingKey(domain.NameContains("a")), ListingKey(domain.TypeContains("a")))
	assert.Equal(t, ListingKey(domain.NameContains("report")), ListingKey(domain.NameContains("Report")))
	assert.Equal(t, "files:type:.pdf", ListingKey(domain.TypeContains(".PDF")))

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))
	zero := time.Time{}
	assert.Equal(t, "files:range:2026-01-31T23:00:00Z:<none>", ListingKey(domain.UploadedBetween(&start, nil)))
	assert.Equal(t, ListingKey(domain.UploadedBetween(nil, nil)), ListingKey(domain.UploadedBetween(&zero, nil)))
}

func TestFetch_HitAndMiss(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	c := New(store, &mockLogger{})
	ctx := context.Background()

	var loads int32
	load := func(context.Context) ([]string, error) {
		n := atomic.AddInt32(&loads, 1)
		if n == 1 {
			return []string{"a.txt"}, nil
		}
		return []string{"a.txt", "b.txt"}, nil
	}

	first, err := Fetch(ctx, c, "files:all:<none>", ListingPolicy, load)
	require.NoError(t, err)
	second, err := Fetch(ctx, c, "files:all:<none>", ListingPolicy, load)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.Equal(t, uint64(1), stats.Sets)
	assert.InDelta(t, 50.0, stats.HitRate, 0.001)
}

func TestFetch_LoadErrorIsNotCached(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	c := New(store, &mockLogger{})
	ctx := context.Background()

	_, err := Fetch(ctx, c, "k", ListingPolicy, func(context.Context) (int, error) {
		return 0, errors.New("db down")
	})
	require.Error(t, err)

	v, err := Fetch(ctx, c, "k", ListingPolicy, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFetch_ConcurrentMissesShareLoad(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	c := New(store, &mockLogger{})
	ctx := context.Background()

	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return 42, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := Fetch(ctx, c, "shared", ListingPolicy, load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		assert.Equal(t, 42, v)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&loads), int32(callers))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&loads), int32(1))
}

// failingStore always errors.
type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}
func (failingStore) Set(context.Context, string, []byte, Policy) error { return errors.New("store down") }
func (failingStore) Ping(context.Context) error                       { return errors.New("store down") }
func (failingStore) Close() error                                     { return nil }

func TestFetch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	c := New(store, &mockLogger{})

	var loads int32
	started := make(chan struct{})
	release := make(chan struct{})
	load := func(loadCtx context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		close(started)
		<-release
		if err := loadCtx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Fetch(firstCtx, c, "shared", ListingPolicy, load)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		v   int
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		v, err := Fetch(context.Background(), c, "shared", ListingPolicy, load)
		second <- outcome{v, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 42, got.v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestFetch_LoadTimeout(t *testing.T) {
	store, _ := newTestMemoryStore(t)
	c := New(store, &mockLogger{})
	c.SetLoadTimeout(20 * time.Millisecond)

	_, err := Fetch(context.Background(), c, "slow", ListingPolicy, func(loadCtx context.Context) (int, error) {
		<-loadCtx.Done()
		return 0, loadCtx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_StoreFailureFallsBackToLoad(t *testing.T) {
	c := New(failingStore{}, &mockLogger{})

	v, err := Fetch(context.Background(), c, "k", ListingPolicy, func(context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, uint64(2), c.GetStats().Errors)
}

func TestModule_MemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewModule(DefaultConfig(), &mockLogger{})

	require.NoError(t, m.Start(ctx))
	require.NotNil(t, m.Cache())
	assert.True(t, m.Health(ctx).Healthy)
	require.NoError(t, m.Stop(ctx))
}

func TestModule_UnknownStore(t *testing.T) {
	m := NewModule(Config{Store: "memcached"}, &mockLogger{})
	assert.Error(t, m.Start(context.Background()))
}
