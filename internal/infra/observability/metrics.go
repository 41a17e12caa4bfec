package observability

import (
	"time"

	"github.com/boddenberg/monosync/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the sync engine.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	remoteRequests  *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	rateLimitWait   *prometheus.CounterVec
	syncRuns        *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	lastSyncSeconds prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		remoteRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monosync_remote_requests_total",
				Help: "Requests sent to the bank API by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		remoteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monosync_remote_request_duration_seconds",
				Help:    "Duration of bank API requests by endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		rateLimitWait: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monosync_rate_limit_wait_seconds_total",
				Help: "Time spent waiting for the request scheduler, by reason.",
			},
			[]string{"reason"},
		),
		syncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monosync_sync_runs_total",
				Help: "Sync runs by result.",
			},
			[]string{"result"},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monosync_transactions_total",
				Help: "Transactions fetched from the API and added to the dataset.",
			},
			[]string{"kind"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monosync_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monosync_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		lastSyncSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "monosync_last_successful_sync_timestamp_seconds",
				Help: "Unix time of the last successful sync.",
			},
		),
	}
}

// ObserveRemoteRequest records one bank API request.
func (m *Metrics) ObserveRemoteRequest(endpoint, outcome string, d time.Duration) {
	m.remoteRequests.WithLabelValues(endpoint, outcome).Inc()
	m.remoteLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveRateLimitWait records time blocked in the scheduler.
func (m *Metrics) ObserveRateLimitWait(reason string, d time.Duration) {
	m.rateLimitWait.WithLabelValues(reason).Add(d.Seconds())
}

// IncrSyncRun counts a finished sync run: success, error or skipped.
func (m *Metrics) IncrSyncRun(result string) {
	m.syncRuns.WithLabelValues(result).Inc()
}

// RecordSyncTransactions adds fetched and added counts of one run.
func (m *Metrics) RecordSyncTransactions(fetched, added int) {
	m.transactions.WithLabelValues("fetched").Add(float64(fetched))
	m.transactions.WithLabelValues("added").Add(float64(added))
}

// SetLastSuccessfulSync records when the last sync succeeded.
func (m *Metrics) SetLastSuccessfulSync(t time.Time) {
	m.lastSyncSeconds.Set(float64(t.Unix()))
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() *domain.SyncMetrics {
	var requests, rateLimited, failed float64
	for _, endpoint := range []string{"client-info", "statement"} {
		for _, outcome := range []string{"ok", "rate_limited", "unauthorized", "api_error", "transport_error"} {
			v := getCounterValue(m.remoteRequests, endpoint, outcome)
			requests += v
			switch outcome {
			case "rate_limited":
				rateLimited += v
			case "ok":
			default:
				failed += v
			}
		}
	}

	hits := getCounterValue(m.cacheHits, "client-info")
	misses := getCounterValue(m.cacheMisses, "client-info")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.SyncMetrics{
		RemoteRequests:      int64(requests),
		RateLimitedRequests: int64(rateLimited),
		FailedRequests:      int64(failed),
		RateLimitWaitSecs:   getCounterValue(m.rateLimitWait, "interval"),
		ThrottleWaitSecs:    getCounterValue(m.rateLimitWait, "throttled"),
		SyncRunsSucceeded:   int64(getCounterValue(m.syncRuns, "success")),
		SyncRunsFailed:      int64(getCounterValue(m.syncRuns, "error")),
		SyncRunsSkipped:     int64(getCounterValue(m.syncRuns, "skipped")),
		FetchedTransactions: int64(getCounterValue(m.transactions, "fetched")),
		AddedTransactions:   int64(getCounterValue(m.transactions, "added")),
		CacheHitRate:        hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
