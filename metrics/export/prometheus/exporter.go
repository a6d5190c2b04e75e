package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/vitadrop/vitaauth"
	"github.com/vitadrop/vitaauth/metrics/export/internaldefs"
)

// Source is satisfied by *vitaauth.Engine.
type Source interface {
	MetricsSnapshot() vitaauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders a [Source] on demand.
type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = p.WriteTo(w)
	})
}

// Render returns the exposition text. A nil exporter renders nothing.
func (p *Exporter) Render() string {
	var b strings.Builder
	_ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes every counter, then the latency histogram, then the audit
// drop counter.
func (p *Exporter) WriteTo(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}

	snapshot := p.source.MetricsSnapshot()
	bw := bufio.NewWriter(w)

	for _, def := range internaldefs.CounterDefs {
		writeCounter(bw, def, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(bw, def, internaldefs.Cumulative(raw))
	}
	writeCounter(bw, internaldefs.AuditDropped, p.source.AuditDropped())

	return bw.Flush()
}

func writeHeader(w *bufio.Writer, def internaldefs.Def, kind string) {
	w.WriteString("# HELP " + def.Name + " " + escapeHelp(def.Help) + "\n")
	w.WriteString("# TYPE " + def.Name + " " + kind + "\n")
}

func writeCounter(w *bufio.Writer, def internaldefs.Def, value uint64) {
	writeHeader(w, def, "counter")
	w.WriteString(def.Name + " " + strconv.FormatUint(value, 10) + "\n")
}

func writeHistogram(w *bufio.Writer, def internaldefs.Def, cumulative [internaldefs.BucketCount]uint64) {
	writeHeader(w, def, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.WriteString(def.Name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	// Only bucket counts are tracked, so the sum is always reported as zero.
	w.WriteString(def.Name + "_sum 0\n")
	w.WriteString(def.Name + "_count " + strconv.FormatUint(cumulative[internaldefs.BucketCount-1], 10) + "\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
