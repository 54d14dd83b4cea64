package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-offline-queue/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type memPersister struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func newMemPersister() *memPersister { return &memPersister{entries: map[string]Entry{}} }

func (p *memPersister) LoadCacheEntries(ctx context.Context) ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out, nil
}

func (p *memPersister) SaveCacheEntry(ctx context.Context, e Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[e.Key] = e
	return nil
}

func (p *memPersister) DeleteCacheEntry(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
	return nil
}

func (p *memPersister) ClearCacheEntries(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = map[string]Entry{}
	return nil
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "notes/1", Signature("notes", "1", nil))
	q := url.Values{"b": {"2"}, "a": {"1"}}
	assert.Equal(t, "notes/1?a=1&b=2", Signature("notes", "1", q))
}

func TestGetSetExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(WithTTL(time.Minute), WithClock(clock.Now), WithLogger(logging.Discard()))
	ctx := context.Background()

	c.Set(ctx, "k", []byte("v"))
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestBoundNeverExceeded(t *testing.T) {
	clock := newFakeClock()
	c := New(WithMaxEntries(10), WithTTL(time.Hour), WithClock(clock.Now), WithLogger(logging.Discard()))
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"))
		clock.Advance(time.Second)
		require.LessOrEqual(t, c.Len(), 10)
	}
	assert.Equal(t, 10, c.Len())

	// the oldest (closest to expiry) entries were evicted
	_, ok := c.Get("k0")
	assert.False(t, ok)
	_, ok = c.Get("k99")
	assert.True(t, ok)
}

func TestEvictionPrefersExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(WithMaxEntries(2), WithTTL(time.Hour), WithClock(clock.Now), WithLogger(logging.Discard()))
	ctx := context.Background()

	c.SetWithTTL(ctx, "short", []byte("1"), time.Second)
	c.Set(ctx, "long", []byte("2"))
	clock.Advance(2 * time.Second)

	c.Set(ctx, "new", []byte("3"))
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("long")
	assert.True(t, ok)
	_, ok = c.Get("new")
	assert.True(t, ok)
}

func TestGetOrLoad_CollapsesConcurrentLoads(t *testing.T) {
	c := New(WithLogger(logging.Discard()))
	var calls atomic.Int32
	release := make(chan struct{})

	loader := func(ctx context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("loaded"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "doc", loader)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// give the goroutines a moment to pile up on the same key
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []byte("loaded"), r)
	}
}

func TestGetOrLoad_ErrorNotCached(t *testing.T) {
	c := New(WithLogger(logging.Discard()))
	boom := errors.New("boom")

	_, err := c.GetOrLoad(context.Background(), "k", func(context.Context) ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrLoad(context.Background(), "k", func(context.Context) ([]byte, error) { return []byte("ok"), nil })
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), v)
}

func TestInvalidateDocument(t *testing.T) {
	c := New(WithLogger(logging.Discard()))
	ctx := context.Background()

	c.Set(ctx, Signature("notes", "1", nil), []byte("a"))
	c.Set(ctx, Signature("notes", "1", url.Values{"fields": {"title"}}), []byte("b"))
	c.Set(ctx, Signature("notes", "10", nil), []byte("c"))

	assert.Equal(t, 2, c.InvalidateDocument(ctx, "notes", "1"))
	_, ok := c.Get(Signature("notes", "10", nil))
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestPersisterRoundTrip(t *testing.T) {
	clock := newFakeClock()
	p := newMemPersister()
	ctx := context.Background()

	c := New(WithPersister(p), WithClock(clock.Now), WithTTL(time.Minute), WithLogger(logging.Discard()))
	c.Set(ctx, "keep", []byte("1"))
	c.SetWithTTL(ctx, "stale", []byte("2"), time.Second)
	clock.Advance(2 * time.Second)

	restored := New(WithPersister(p), WithClock(clock.Now), WithLogger(logging.Discard()))
	require.NoError(t, restored.Restore(ctx))
	assert.Equal(t, 1, restored.Len())
	v, ok := restored.Get("keep")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, restored.Clear(ctx))
	entries, _ := p.LoadCacheEntries(ctx)
	assert.Empty(t, entries)
}
