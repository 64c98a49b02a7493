package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fieldtrack"

// Upload paths.
const (
	PathFlush  = "flush"
	PathReplay = "replay"
)

// Metrics bundles every collector the agent updates.
type Metrics struct {
	reg *prometheus.Registry

	recordsIngested prometheus.Counter
	recordsDropped  prometheus.Counter
	flushes         *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	uploadDuration  *prometheus.HistogramVec
	payloadBytes    prometheus.Histogram
	replayed        prometheus.Counter
	spoolEntries    prometheus.Gauge
}

// New registers all agent collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		recordsIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Sensor records appended to the ingestion buffer.",
		}),
		recordsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_dropped_total",
			Help:      "Records evicted from a full ingestion buffer.",
		}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Flush ticks by outcome.",
		}, []string{"outcome"}),
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload attempts by path and result.",
		}, []string{"path", "result"}),
		uploadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Duration of upload attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"path"}),
		payloadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payload_bytes",
			Help:      "Size of encoded batch payloads.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}),
		replayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_total",
			Help:      "Spooled payloads delivered by the replay sweeper.",
		}),
		spoolEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spool_entries",
			Help:      "Entries in the spool as of the last sweep or flush.",
		}),
	}
}

// Registry returns the registry holding every agent collector.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// RecordIngested counts one appended record.
func (m *Metrics) RecordIngested() {
	if m != nil {
		m.recordsIngested.Inc()
	}
}

// RecordDropped counts one evicted record.
func (m *Metrics) RecordDropped() {
	if m != nil {
		m.recordsDropped.Inc()
	}
}

// Flush counts one flush tick with the given outcome.
func (m *Metrics) Flush(outcome string) {
	if m != nil {
		m.flushes.WithLabelValues(outcome).Inc()
	}
}

// Upload records one upload attempt. result is "ok" or a failure reason.
func (m *Metrics) Upload(path, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(path, result).Inc()
	m.uploadDuration.WithLabelValues(path).Observe(d.Seconds())
}

// Payload records the size of an encoded batch.
func (m *Metrics) Payload(size int) {
	if m != nil {
		m.payloadBytes.Observe(float64(size))
	}
}

// Replayed counts one delivered spool entry.
func (m *Metrics) Replayed() {
	if m != nil {
		m.replayed.Inc()
	}
}

// SpoolEntries sets the spool depth gauge.
func (m *Metrics) SpoolEntries(n int) {
	if m != nil {
		m.spoolEntries.Set(float64(n))
	}
}

// GaugeFunc registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}
