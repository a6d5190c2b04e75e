package tokenstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRedisStoreTest(t *testing.T, clock *testClock) (*RedisStore, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "vrt", WithClock(clock.Now)), rdb, mr
}

type backend struct {
	name  string
	build func(t *testing.T, clock *testClock) Store
}

func backends() []backend {
	return []backend{
		{name: "memory", build: func(_ *testing.T, clock *testClock) Store {
			return NewMemoryStore(WithClock(clock.Now))
		}},
		{name: "redis", build: func(t *testing.T, clock *testClock) Store {
			s, _, _ := newRedisStoreTest(t, clock)
			return s
		}},
	}
}

func TestStorePutGetRoundTrip(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)
			ctx := context.Background()
			exp := clock.Now().Add(time.Hour)

			if err := s.Put(ctx, "u-1", "refresh-a", exp); err != nil {
				t.Fatalf("put: %v", err)
			}
			rec, err := s.Get(ctx, "u-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if rec.OwnerID != "u-1" || !rec.ExpiresAt.Equal(exp) || !rec.CreatedAt.Equal(clock.Now()) {
				t.Fatalf("unexpected record %+v", rec)
			}
			if !rec.Matches("refresh-a") {
				t.Fatal("expected stored token to match")
			}
			if rec.Matches("refresh-b") {
				t.Fatal("expected other token not to match")
			}
		})
	}
}

func TestStorePutOverwritesPreviousRecord(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)
			ctx := context.Background()

			if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Hour)); err != nil {
				t.Fatalf("put a: %v", err)
			}
			if err := s.Put(ctx, "u-1", "refresh-b", clock.Now().Add(2*time.Hour)); err != nil {
				t.Fatalf("put b: %v", err)
			}
			rec, err := s.Get(ctx, "u-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if rec.Matches("refresh-a") || !rec.Matches("refresh-b") {
				t.Fatal("expected second put to replace the first")
			}
		})
	}
}

func TestStoreGetTreatsExpiredAsAbsent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)
			ctx := context.Background()

			if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Minute)); err != nil {
				t.Fatalf("put: %v", err)
			}

			clock.Advance(time.Minute - time.Millisecond)
			if _, err := s.Get(ctx, "u-1"); err != nil {
				t.Fatalf("expected record live before expiry: %v", err)
			}

			clock.Advance(time.Millisecond)
			if _, err := s.Get(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound at expiry, got %v", err)
			}
		})
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)
			ctx := context.Background()

			if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Hour)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Delete(ctx, "u-1"); err != nil {
				t.Fatalf("first delete: %v", err)
			}
			if err := s.Delete(ctx, "u-1"); err != nil {
				t.Fatalf("second delete: %v", err)
			}
			if err := s.Delete(ctx, "never-existed"); err != nil {
				t.Fatalf("delete missing: %v", err)
			}
			if _, err := s.Get(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
		})
	}
}

func TestStoreRotate(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)
			ctx := context.Background()

			if err := s.Rotate(ctx, "u-1", "refresh-a", "refresh-b", clock.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for missing record, got %v", err)
			}

			if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Hour)); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := s.Rotate(ctx, "u-1", "refresh-a", "refresh-b", clock.Now().Add(2*time.Hour)); err != nil {
				t.Fatalf("rotate: %v", err)
			}
			if err := s.Rotate(ctx, "u-1", "refresh-a", "refresh-c", clock.Now().Add(2*time.Hour)); !errors.Is(err, ErrMismatch) {
				t.Fatalf("expected ErrMismatch for superseded token, got %v", err)
			}

			rec, err := s.Get(ctx, "u-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !rec.Matches("refresh-b") {
				t.Fatal("expected rotated token to be stored")
			}
			if !rec.ExpiresAt.Equal(clock.Now().Add(2 * time.Hour)) {
				t.Fatalf("unexpected expiry %v", rec.ExpiresAt)
			}

			clock.Advance(2 * time.Hour)
			if err := s.Rotate(ctx, "u-1", "refresh-b", "refresh-c", clock.Now().Add(time.Hour)); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound for expired record, got %v", err)
			}
		})
	}
}

func TestStoreRejectsPastExpiry(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)

			if err := s.Put(context.Background(), "u-1", "refresh-a", clock.Now()); !errors.Is(err, ErrExpiryNotInFuture) {
				t.Fatalf("expected ErrExpiryNotInFuture, got %v", err)
			}
		})
	}
}

func TestStoreConcurrentRotateSingleWinner(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := newTestClock()
			s := b.build(t, clock)
			ctx := context.Background()

			if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Hour)); err != nil {
				t.Fatalf("put: %v", err)
			}

			const workers = 16
			var wg sync.WaitGroup
			results := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					next := "refresh-next-" + string(rune('a'+i))
					results <- s.Rotate(ctx, "u-1", "refresh-a", next, clock.Now().Add(time.Hour))
				}(i)
			}
			wg.Wait()
			close(results)

			success := 0
			for err := range results {
				switch {
				case err == nil:
					success++
				case errors.Is(err, ErrMismatch):
				default:
					t.Fatalf("unexpected rotate error: %v", err)
				}
			}
			if success != 1 {
				t.Fatalf("expected exactly one successful rotation, got %d", success)
			}
		})
	}
}
