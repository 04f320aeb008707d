// Package metrics records what the mirror did, as plog summaries and as
// Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus exports every observation as a Prometheus collector and forwards
// it to an inner Metrics, so progress logging keeps working.
type Prometheus struct {
	inner    Metrics
	registry *prometheus.Registry

	files         *prometheus.CounterVec
	bytesWritten  prometheus.Counter
	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	enabled       prometheus.Gauge
}

// NewPrometheus registers the collectors on a fresh registry. A nil inner is NoopMetrics.
func NewPrometheus(inner Metrics) *Prometheus {
	if inner == nil {
		inner = NoopMetrics{}
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		inner:    inner,
		registry: reg,
		files: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "musicmirror_files_total",
			Help: "Files changed in the mirror, by operation.",
		}, []string{"operation"}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "musicmirror_bytes_written_total",
			Help: "Bytes copied into the mirror.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "musicmirror_events_total",
			Help: "Change events processed, by kind and result.",
		}, []string{"kind", "result"}),
		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "musicmirror_event_duration_seconds",
			Help:    "Time spent processing one change event.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "musicmirror_events_in_flight",
			Help: "Change events accepted but not yet finished.",
		}),
		enabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "musicmirror_sync_enabled",
			Help: "1 while synchronization is enabled.",
		}),
	}
}

// Registry exposes the registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the collectors in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) AddFilesTranscoded(n int64) {
	p.files.WithLabelValues("transcoded").Add(float64(n))
	p.inner.AddFilesTranscoded(n)
}

func (p *Prometheus) AddFilesCopied(n int64) {
	p.files.WithLabelValues("copied").Add(float64(n))
	p.inner.AddFilesCopied(n)
}

func (p *Prometheus) AddFilesLinked(n int64) {
	p.files.WithLabelValues("linked").Add(float64(n))
	p.inner.AddFilesLinked(n)
}

func (p *Prometheus) AddFilesDeleted(n int64) {
	p.files.WithLabelValues("deleted").Add(float64(n))
	p.inner.AddFilesDeleted(n)
}

func (p *Prometheus) AddFilesRenamed(n int64) {
	p.files.WithLabelValues("renamed").Add(float64(n))
	p.inner.AddFilesRenamed(n)
}

func (p *Prometheus) AddFilesUpToDate(n int64) {
	p.files.WithLabelValues("uptodate").Add(float64(n))
	p.inner.AddFilesUpToDate(n)
}

func (p *Prometheus) AddBytesWritten(n int64) {
	p.bytesWritten.Add(float64(n))
	p.inner.AddBytesWritten(n)
}

func (p *Prometheus) ObserveEvent(kind string, failed bool, d time.Duration) {
	result := "success"
	if failed {
		result = "failure"
	}
	p.events.WithLabelValues(kind, result).Inc()
	p.eventDuration.WithLabelValues(kind).Observe(d.Seconds())
	p.inner.ObserveEvent(kind, failed, d)
}

func (p *Prometheus) SetInFlight(n int64) {
	p.inFlight.Set(float64(n))
	p.inner.SetInFlight(n)
}

func (p *Prometheus) SetEnabled(enabled bool) {
	if enabled {
		p.enabled.Set(1)
	} else {
		p.enabled.Set(0)
	}
	p.inner.SetEnabled(enabled)
}

func (p *Prometheus) LogSummary(msg string) { p.inner.LogSummary(msg) }

func (p *Prometheus) StartProgress(msg string, interval time.Duration) {
	p.inner.StartProgress(msg, interval)
}

func (p *Prometheus) StopProgress() { p.inner.StopProgress() }

var _ Metrics = (*Prometheus)(nil)
