package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the account actors.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	liveActors     prometheus.Gauge
	commandsTotal  *prometheus.CounterVec
	eventsApplied  *prometheus.CounterVec
	anomalies      *prometheus.CounterVec
	evictions      prometheus.Counter
	flushBatchSize prometheus.Histogram
	storeDuration  *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
}

// ActorSnapshot is a point-in-time summary served by GET /v1/metrics/actors.
type ActorSnapshot struct {
	LiveActors       int64   `json:"live_actors"`
	Evictions        int64   `json:"evictions"`
	CommandsAccepted int64   `json:"commands_accepted"`
	CommandsRejected int64   `json:"commands_rejected"`
	PaymentsDeclined int64   `json:"payments_declined"`
	Anomalies        int64   `json:"anomalies"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		liveActors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accounts_live_actors",
			Help: "Number of account actors currently registered.",
		}),
		commandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_commands_total",
				Help: "Commands handled by account actors.",
			},
			[]string{"command", "outcome"},
		),
		eventsApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_events_applied_total",
				Help: "Events applied to account state.",
			},
			[]string{"type"},
		),
		anomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_anomalies_total",
				Help: "Non-fatal anomalies reported by account actors.",
			},
			[]string{"kind"},
		),
		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "accounts_evictions_total",
			Help: "Account actors terminated after the idle window.",
		}),
		flushBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "accounts_flush_batch_size",
			Help:    "Number of events delivered per flush.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		storeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_store_duration_seconds",
				Help:    "Duration of event store calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"store", "operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_store_errors_total",
				Help: "Total errors from event stores.",
			},
			[]string{"store"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// SetLiveActors sets the live actor gauge.
func (m *Metrics) SetLiveActors(n int) {
	m.liveActors.Set(float64(n))
}

// IncrCommand counts a handled command. outcome is "accepted" or "rejected".
func (m *Metrics) IncrCommand(command, outcome string) {
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
}

// IncrEventApplied counts an applied event by type.
func (m *Metrics) IncrEventApplied(eventType string) {
	m.eventsApplied.WithLabelValues(eventType).Inc()
}

// IncrAnomaly counts a non-fatal anomaly.
func (m *Metrics) IncrAnomaly(kind string) {
	m.anomalies.WithLabelValues(kind).Inc()
}

// IncrEviction counts an idle eviction.
func (m *Metrics) IncrEviction() {
	m.evictions.Inc()
}

// ObserveFlush records the size of a flushed batch.
func (m *Metrics) ObserveFlush(n int) {
	m.flushBatchSize.Observe(float64(n))
}

// RecordStoreDuration records the duration of an event store call.
func (m *Metrics) RecordStoreDuration(store, operation string, d time.Duration) {
	m.storeDuration.WithLabelValues(store, operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(store string) {
	m.storeErrors.WithLabelValues(store).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot gathers the current counter values.
func (m *Metrics) Snapshot() *ActorSnapshot {
	hits := getCounterValue(m.cacheHits, "account")
	misses := getCounterValue(m.cacheMisses, "account")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	var anomalies float64
	for _, kind := range []string{
		AnomalyUnknownMessage,
		AnomalyRejectedCommand,
		AnomalySaverFailed,
		AnomalyRegisterFailed,
		AnomalyDeregisterFailed,
		AnomalyHandlerPanic,
	} {
		anomalies += getCounterValue(m.anomalies, kind)
	}

	var accepted, rejected float64
	for _, cmd := range []string{"create", "deposit", "withdraw"} {
		accepted += getCounterValue(m.commandsTotal, cmd, "accepted")
		rejected += getCounterValue(m.commandsTotal, cmd, "rejected")
	}

	return &ActorSnapshot{
		LiveActors:       int64(getGaugeValue(m.liveActors)),
		Evictions:        int64(readCounter(m.evictions)),
		CommandsAccepted: int64(accepted),
		CommandsRejected: int64(rejected),
		PaymentsDeclined: int64(getCounterValue(m.eventsApplied, "account.payment_declined")),
		Anomalies:        int64(anomalies),
		CacheHitRate:     hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return readCounter(cv.WithLabelValues(labels...))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}
