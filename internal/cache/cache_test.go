package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type detail struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestFetch_LoadsOnceAndServesFromCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	var loads int32
	load := func(context.Context) (detail, error) {
		atomic.AddInt32(&loads, 1)
		return detail{ID: "f1", Title: "SQL injection"}, nil
	}

	got, err := cache.Fetch(ctx, c, cache.FindingKey("f1"), load)
	require.NoError(t, err)
	require.Equal(t, "SQL injection", got.Title)

	got, err = cache.Fetch(ctx, c, cache.FindingKey("f1"), load)
	require.NoError(t, err)
	require.Equal(t, "SQL injection", got.Title)
	require.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestFetch_ExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.New(cache.NewMemory(), cache.Options{
		TTL: time.Minute,
		Now: func() time.Time { return now },
	})

	var loads int32
	load := func(context.Context) (int, error) {
		return int(atomic.AddInt32(&loads, 1)), nil
	}

	v, err := cache.Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	now = now.Add(30 * time.Second)
	v, err = cache.Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	now = now.Add(time.Minute)
	v, err = cache.Fetch(ctx, c, "k", load)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestFetch_ErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	boom := errors.New("backend down")
	_, err := cache.Fetch(ctx, c, "k", func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)

	v, err := cache.Fetch(ctx, c, "k", func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestFetch_SharesConcurrentLoads(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	release := make(chan struct{})
	var loads int32
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := cache.Fetch(ctx, c, "shared", load)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&loads) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, v := range results {
		require.Equal(t, 42, v)
	}
	require.LessOrEqual(t, atomic.LoadInt32(&loads), int32(2))
}

func TestInvalidate_DropsKeyAndPages(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	c := cache.New(mem, cache.Options{})

	for _, key := range []string{
		cache.ActivitiesPageKey("f1", 1, 50),
		cache.ActivitiesPageKey("f1", 2, 50),
		cache.FindingKey("f1"),
	} {
		_, err := cache.Fetch(ctx, c, key, func(context.Context) (string, error) { return "v", nil })
		require.NoError(t, err)
	}

	require.NoError(t, c.Invalidate(ctx, cache.ActivitiesKey("f1")))

	_, ok, _ := mem.Get(ctx, cache.ActivitiesPageKey("f1", 1, 50))
	require.False(t, ok)
	_, ok, _ = mem.Get(ctx, cache.ActivitiesPageKey("f1", 2, 50))
	require.False(t, ok)
	_, ok, _ = mem.Get(ctx, cache.FindingKey("f1"))
	require.True(t, ok)
}

func TestInvalidate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	require.NoError(t, c.Invalidate(ctx, cache.TriageKey("missing")))
	require.NoError(t, c.Invalidate(ctx, cache.TriageKey("missing")))
}

func TestInvalidate_NotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})

	var got []string
	unsubscribe := c.Subscribe(cache.ActivitiesKey("f1"), func(key string) { got = append(got, key) })

	require.NoError(t, c.Invalidate(ctx, cache.ActivitiesKey("f1")))
	require.NoError(t, c.Invalidate(ctx, cache.ActivitiesKey("f2")))
	unsubscribe()
	require.NoError(t, c.Invalidate(ctx, cache.ActivitiesKey("f1")))

	require.Equal(t, []string{cache.ActivitiesKey("f1")}, got)
}

func TestFetch_InvalidationDuringLoadSkipsStore(t *testing.T) {
	ctx := context.Background()
	mem := cache.NewMemory()
	c := cache.New(mem, cache.Options{})

	key := cache.ActivitiesPageKey("f1", 1, 50)
	v, err := cache.Fetch(ctx, c, key, func(ctx context.Context) (string, error) {
		assert.NoError(t, c.Invalidate(ctx, cache.ActivitiesKey("f1")))
		return "stale", nil
	})
	require.NoError(t, err)
	require.Equal(t, "stale", v)

	_, ok, _ := mem.Get(ctx, key)
	require.False(t, ok)
}

func TestFetch_AfterInvalidateDoesNotJoinOlderLoad(t *testing.T) {
	ctx := context.Background()
	c := cache.New(cache.NewMemory(), cache.Options{})
	key := cache.ActivitiesPageKey("f1", 1, 50)

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan string, 1)
	go func() {
		v, err := cache.Fetch(ctx, c, key, func(context.Context) (string, error) {
			close(started)
			<-release
			return "before-invalidate", nil
		})
		assert.NoError(t, err)
		firstDone <- v
	}()
	<-started

	require.NoError(t, c.Invalidate(ctx, cache.ActivitiesKey("f1")))

	v, err := cache.Fetch(ctx, c, key, func(context.Context) (string, error) {
		return "after-invalidate", nil
	})
	require.NoError(t, err)
	require.Equal(t, "after-invalidate", v)

	close(release)
	require.Equal(t, "before-invalidate", <-firstDone)

	v, err = cache.Fetch(ctx, c, key, func(context.Context) (string, error) {
		return "reloaded", nil
	})
	require.NoError(t, err)
	require.Equal(t, "after-invalidate", v, "the older load must not overwrite the newer entry")
}

func TestFetch_SharedLoadSurvivesCanceledCaller(t *testing.T) {
	c := cache.New(cache.NewMemory(), cache.Options{})
	key := cache.FindingKey("f1")

	started := make(chan struct{})
	release := make(chan struct{})
	var loadErr atomic.Value
	load := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
			return "", err
		}
		return "detail", nil
	}

	callerCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Fetch(callerCtx, c, key, load)
		firstErr <- err
	}()
	<-started

	secondDone := make(chan string, 1)
	go func() {
		v, err := cache.Fetch(context.Background(), c, key, func(context.Context) (string, error) {
			return "second load", nil
		})
		assert.NoError(t, err)
		secondDone <- v
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	v := <-secondDone
	require.Contains(t, []string{"detail", "second load"}, v)
	require.Nil(t, loadErr.Load(), "the shared load must not see the caller's cancellation")
}
