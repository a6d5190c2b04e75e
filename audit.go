package vitaauth

import (
	"io"
	"log/slog"

	"github.com/vitadrop/vitaauth/internal/audit"
)

// AuditEvent is one structured security event. Sinks receive it from a
// background goroutine, never from the request path.
type AuditEvent = audit.Event

// AuditSink consumes audit events.
type AuditSink = audit.Sink

type (
	NoOpSink       = audit.NoOpSink
	ChannelSink    = audit.ChannelSink
	JSONWriterSink = audit.JSONWriterSink
	SlogSink       = audit.SlogSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink logs each event as an "audit" record on logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return audit.NewSlogSink(logger)
}
