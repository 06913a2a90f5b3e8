// Package metrics provides Prometheus metrics for the ingestion pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline holds the pipeline's collectors. A nil *Pipeline records nothing.
type Pipeline struct {
	// RecordsTotal counts processed feed records by entity and outcome
	RecordsTotal *prometheus.CounterVec

	// FeedFetchesTotal counts feed downloads by feed and status
	FeedFetchesTotal *prometheus.CounterVec

	// NotificationsTotal counts deliveries by platform, event kind and status
	NotificationsTotal *prometheus.CounterVec

	// ScreenshotsTotal counts capture attempts by result
	ScreenshotsTotal *prometheus.CounterVec

	// RunDuration tracks full ingest run duration in seconds
	RunDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ransomwatch",
				Subsystem: "pipeline",
				Name:      "records_total",
				Help:      "Total number of feed records processed by entity and outcome",
			},
			[]string{"entity", "outcome"},
		),
		FeedFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ransomwatch",
				Subsystem: "feed",
				Name:      "fetches_total",
				Help:      "Total number of feed fetches by feed and status",
			},
			[]string{"feed", "status"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ransomwatch",
				Subsystem: "notify",
				Name:      "deliveries_total",
				Help:      "Total number of notification deliveries by platform, kind and status",
			},
			[]string{"platform", "kind", "status"},
		),
		ScreenshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ransomwatch",
				Subsystem: "screenshot",
				Name:      "captures_total",
				Help:      "Total number of screenshot captures by result",
			},
			[]string{"result"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ransomwatch",
				Subsystem: "pipeline",
				Name:      "run_duration_seconds",
				Help:      "Duration of ingest runs in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
		),
	}
}

func (p *Pipeline) Record(entity, outcome string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.RecordsTotal.WithLabelValues(entity, outcome).Add(float64(n))
}

func (p *Pipeline) FeedFetch(feed string, err error) {
	if p == nil {
		return
	}
	p.FeedFetchesTotal.WithLabelValues(feed, status(err)).Inc()
}

func (p *Pipeline) Notification(platform, kind string, err error) {
	if p == nil {
		return
	}
	p.NotificationsTotal.WithLabelValues(platform, kind, status(err)).Inc()
}

func (p *Pipeline) Screenshot(result string) {
	if p == nil {
		return
	}
	p.ScreenshotsTotal.WithLabelValues(result).Inc()
}

func (p *Pipeline) ObserveRun(d time.Duration) {
	if p == nil {
		return
	}
	p.RunDuration.Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
