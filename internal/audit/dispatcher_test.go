package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type warnLog struct {
	mu    sync.Mutex
	lines []string
}

func (w *warnLog) warn(format string, args ...any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, fmt.Sprintf(format, args...))
}

func (w *warnLog) snapshot() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...)
}

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected nil dispatcher to report zero drops")
	}
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a full buffer")
	}

	close(sink.gate)
	d.Close()
}

type enteredSink struct {
	gate    chan struct{}
	entered chan struct{}
}

func (s *enteredSink) Emit(context.Context, Event) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
}

func TestDispatcherCountsDropsPerEventType(t *testing.T) {
	sink := &enteredSink{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	warns := &warnLog{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true, Warn: warns.warn}, sink)

	// The first event blocks the run loop inside the sink; the second fills
	// the buffer.
	d.Emit(context.Background(), Event{EventType: "login_success"})
	<-sink.entered
	d.Emit(context.Background(), Event{EventType: "login_success"})

	for i := 0; i < 8; i++ {
		d.Emit(context.Background(), Event{EventType: "login_failure"})
	}
	d.Emit(context.Background(), Event{EventType: "refresh_failure"})

	if got := d.Dropped(); got != 9 {
		t.Fatalf("expected 9 drops, got %d", got)
	}
	byEvent := d.DroppedByEvent()
	if byEvent["login_failure"] != 8 || byEvent["refresh_failure"] != 1 {
		t.Fatalf("unexpected per-event drops %v", byEvent)
	}

	// Warnings on drops 1, 2, 4 and 8 of login_failure plus 1 of refresh_failure.
	lines := warns.snapshot()
	if len(lines) != 5 {
		t.Fatalf("expected 5 drop warnings, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[3], "login_failure dropped (8 of this type, 8 total)") {
		t.Fatalf("unexpected warning %q", lines[3])
	}

	close(sink.gate)
	d.Close()
}

func TestDispatcherCountsEventLostToCancelledContext(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{EventType: "logout"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// One of the next two may still fit into the buffer; the other cannot.
	d.Emit(ctx, Event{EventType: "logout"})
	d.Emit(ctx, Event{EventType: "logout"})

	if d.Dropped() == 0 {
		t.Fatal("expected an event lost to the cancelled context to count as dropped")
	}

	close(sink.gate)
	d.Close()
}

type panicSink struct {
	count atomic.Int64
}

func (s *panicSink) Emit(_ context.Context, e Event) {
	if e.EventType == "boom" {
		panic("sink failure")
	}
	s.count.Add(1)
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panicSink{}
	warns := &warnLog{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8, Warn: warns.warn}, sink)

	d.Emit(context.Background(), Event{EventType: "boom"})
	d.Emit(context.Background(), Event{EventType: "register_success"})
	d.Close()

	if got := sink.count.Load(); got != 1 {
		t.Fatalf("expected delivery after a sink panic, got %d", got)
	}
	lines := warns.snapshot()
	if len(lines) != 1 || !strings.Contains(lines[0], "panicked on boom") {
		t.Fatalf("unexpected warnings %v", lines)
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "logout", UserID: "u-1", Success: true})

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventType != "logout" || got.UserID != "u-1" || !got.Success {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewSlogSink(logger)

	sink.Emit(context.Background(), Event{
		EventType: "refresh_reuse_detected",
		UserID:    "u-1",
		Error:     "refresh_revoked",
		Metadata:  map[string]string{"reason": "mismatch"},
	})

	out := buf.String()
	for _, want := range []string{"msg=audit", "event_type=refresh_reuse_detected", "user_id=u-1", "error=refresh_revoked", "meta.reason=mismatch"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
