package scraper

import (
	"time"

	"github.com/aluiziolira/go-product-monitor/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the monitor.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	SkipsTotal        *prometheus.CounterVec
	CheckpointsTotal  prometheus.Counter
	CacheHitsTotal    prometheus.Counter
	NewProducts       prometheus.Gauge
	LastRunTimestamp  prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_requests_total",
			Help: "Total HTTP requests issued by the monitor.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "monitor_request_duration_seconds",
			Help:    "HTTP request latency for monitor requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_items_scraped_total",
			Help: "Total number of products extracted.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_retries_total",
			Help: "Total number of fetch retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)
	skips := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monitor_skipped_urls_total",
			Help: "URLs that produced no product, by reason.",
		},
		[]string{"reason"},
	)
	checkpoints := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_checkpoints_total",
			Help: "Partial result checkpoints written.",
		},
	)
	cacheHits := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monitor_page_cache_hits_total",
			Help: "Pages served from the in-run page cache.",
		},
	)
	newProducts := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_new_products",
			Help: "New products detected by the last run.",
		},
	)
	lastRun := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monitor_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, retries, errorsTotal,
		skips, checkpoints, cacheHits, newProducts, lastRun)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		SkipsTotal:        skips,
		CheckpointsTotal:  checkpoints,
		CacheHitsTotal:    cacheHits,
		NewProducts:       newProducts,
		LastRunTimestamp:  lastRun,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncItems increments the items scraped counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsScrapedTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncSkip increments the skipped URL counter for a reason.
func (m *Metrics) IncSkip(reason models.SkipReason) {
	if m == nil {
		return
	}
	m.SkipsTotal.WithLabelValues(string(reason)).Inc()
}

// IncCheckpoint increments the checkpoint counter.
func (m *Metrics) IncCheckpoint() {
	if m == nil {
		return
	}
	m.CheckpointsTotal.Inc()
}

// IncCacheHit increments the page cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.CacheHitsTotal.Inc()
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(newProducts int, finished time.Time) {
	if m == nil {
		return
	}
	m.NewProducts.Set(float64(newProducts))
	m.LastRunTimestamp.Set(float64(finished.Unix()))
}
