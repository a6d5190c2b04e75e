package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitadrop/vitaauth"
	otelexport "github.com/vitadrop/vitaauth/metrics/export/otel"
)

type staticSource struct {
	snapshot vitaauth.MetricsSnapshot
	dropped  uint64
}

func (s staticSource) MetricsSnapshot() vitaauth.MetricsSnapshot { return s.snapshot }
func (s staticSource) AuditDropped() uint64                      { return s.dropped }

func TestMeterProviderLogsEngineCounters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mp := newMeterProvider(logger, time.Hour)
	src := staticSource{
		snapshot: vitaauth.MetricsSnapshot{
			Counters: map[vitaauth.MetricID]uint64{vitaauth.MetricLoginSuccess: 3},
		},
		dropped: 7,
	}
	exp, err := otelexport.NewExporter(mp.Meter("test"), src)
	require.NoError(t, err)
	defer func() { _ = exp.Close() }()

	ctx := context.Background()
	require.NoError(t, mp.ForceFlush(ctx))

	out := buf.String()
	assert.Contains(t, out, "name=vitaauth_login_success_total value=3")
	assert.Contains(t, out, "name=vitaauth_audit_dropped_total value=7")

	require.NoError(t, mp.Shutdown(ctx))
}
