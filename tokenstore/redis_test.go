package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRedisPutSetsKeyTTL(t *testing.T) {
	clock := newTestClock()
	s, rdb, _ := newRedisStoreTest(t, clock)
	ctx := context.Background()

	if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("put: %v", err)
	}
	ttl, err := rdb.PTTL(ctx, "vrt:u-1").Result()
	if err != nil {
		t.Fatalf("pttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestRedisKeyEvictionReadsAsNotFound(t *testing.T) {
	clock := newTestClock()
	s, _, mr := newRedisStoreTest(t, clock)
	ctx := context.Background()

	if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(time.Minute)
	if _, err := s.Get(ctx, "u-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after eviction, got %v", err)
	}
}

func TestRedisCorruptRecord(t *testing.T) {
	clock := newTestClock()
	s, rdb, _ := newRedisStoreTest(t, clock)
	ctx := context.Background()

	if err := rdb.Set(ctx, "vrt:u-1", []byte{9, 9, 9}, time.Hour).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.Get(ctx, "u-1"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt from get, got %v", err)
	}
	if err := s.Rotate(ctx, "u-1", "a", "b", clock.Now().Add(time.Hour)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt from rotate, got %v", err)
	}
}

func TestRedisUnavailable(t *testing.T) {
	clock := newTestClock()
	s, _, mr := newRedisStoreTest(t, clock)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.Put(ctx, "u-1", "refresh-a", clock.Now().Add(time.Hour)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from put, got %v", err)
	}
	if _, err := s.Get(ctx, "u-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from get, got %v", err)
	}
}

func TestEncodeDecodeRejectsTrailingBytes(t *testing.T) {
	rec := &Record{
		OwnerID:   "u-1",
		TokenHash: HashToken("x"),
		CreatedAt: time.UnixMilli(1_700_000_000_000),
		ExpiresAt: time.UnixMilli(1_700_000_600_000),
	}
	data, err := encodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeRecord(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OwnerID != rec.OwnerID || got.TokenHash != rec.TokenHash || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Fatalf("unexpected decoded record %+v", got)
	}
	if _, err := decodeRecord(append(data, 0)); err == nil {
		t.Fatal("expected trailing bytes to be rejected")
	}
	if _, err := encodeRecord(&Record{}); err == nil {
		t.Fatal("expected empty owner to be rejected")
	}
}
