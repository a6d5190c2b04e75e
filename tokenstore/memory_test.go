package tokenstore

import (
	"context"
	"testing"
	"time"
)

func TestMemorySweepRemovesOnlyExpired(t *testing.T) {
	clock := newTestClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	if err := s.Put(ctx, "short", "a", clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("put short: %v", err)
	}
	if err := s.Put(ctx, "long", "b", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("put long: %v", err)
	}

	clock.Advance(time.Minute)
	if s.Len() != 2 {
		t.Fatalf("expected expired record to remain until sweep, got %d", s.Len())
	}

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 || s.Len() != 1 {
		t.Fatalf("expected one record swept, got n=%d len=%d", n, s.Len())
	}
	if _, err := s.Get(ctx, "long"); err != nil {
		t.Fatalf("expected long-lived record to survive: %v", err)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	clock := newTestClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx, cancel := context.WithCancel(context.Background())

	if err := s.Put(ctx, "u-1", "a", clock.Now().Add(time.Minute)); err != nil {
		t.Fatalf("put: %v", err)
	}
	clock.Advance(time.Hour)

	done := make(chan error, 1)
	go func() { done <- RunSweeper(ctx, s, 5*time.Millisecond, nil) }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not remove expired record")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	clock := newTestClock()
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	if err := s.Put(ctx, "u-1", "a", clock.Now().Add(time.Hour)); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec, err := s.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rec.TokenHash = HashToken("tampered")

	again, err := s.Get(ctx, "u-1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if !again.Matches("a") {
		t.Fatal("expected mutation of returned record not to affect store")
	}
}
