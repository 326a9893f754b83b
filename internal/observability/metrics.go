package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "radar_overlay"

// Metrics holds the Prometheus counters, histograms, and gauges for the overlay.
type Metrics struct {
	// Cache tier metrics.
	CacheLookups   *prometheus.CounterVec // labels: tier, result={hit,miss,stale}
	CacheEvictions *prometheus.CounterVec // labels: tier
	CacheBytes     *prometheus.GaugeVec   // labels: tier
	CacheErrors    *prometheus.CounterVec // labels: tier, op={get,put,delete,clear}

	// Dispatcher metrics.
	FetchRequests *prometheus.CounterVec   // labels: class, source={cache,network,placeholder,offline,error}
	FetchDuration *prometheus.HistogramVec // labels: class

	// Animation metrics.
	FrameSetBuilds       prometheus.Counter
	FramesLoaded         prometheus.Counter
	Transitions          prometheus.Counter
	PlaybackTicks        prometheus.Counter
	PlaybackTicksDropped prometheus.Counter
	PlaybackRunning      prometheus.Gauge

	// Hazard metrics.
	HazardFetchErrors prometheus.Counter
	HazardsSkipped    prometheus.Counter
	HazardsActive     prometheus.Gauge

	// Notification sink metrics.
	NotificationsPublished prometheus.Counter
	NotificationsDropped   prometheus.Counter
}

// NewMetrics creates and registers all overlay metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.CacheLookups,
		m.CacheEvictions,
		m.CacheBytes,
		m.CacheErrors,
		m.FetchRequests,
		m.FetchDuration,
		m.FrameSetBuilds,
		m.FramesLoaded,
		m.Transitions,
		m.PlaybackTicks,
		m.PlaybackTicksDropped,
		m.PlaybackRunning,
		m.HazardFetchErrors,
		m.HazardsSkipped,
		m.HazardsActive,
		m.NotificationsPublished,
		m.NotificationsDropped,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// NewUnregisteredMetrics creates Metrics for one-shot commands that never
// serve /metrics.
func NewUnregisteredMetrics() *Metrics {
	return newMetrics(true)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      help("Cache tier lookups by tier and result."),
		}, []string{"tier", "result"}),
		CacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      help("Entries removed by eviction passes, by tier."),
		}, []string{"tier"}),
		CacheBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      help("Bytes currently stored per cache tier."),
		}, []string{"tier"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      help("Advisory cache storage failures by tier and operation."),
		}, []string{"tier", "op"}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      help("Dispatched resource requests by class and the source that answered."),
		}, []string{"class", "source"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_upstream_duration_seconds",
			Help:      help("Upstream fetch duration in seconds by resource class."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"class"}),
		FrameSetBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frameset_builds_total",
			Help:      help("Radar frame sets built (load or refresh)."),
		}),
		FramesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_loaded_total",
			Help:      help("Radar frames whose imagery finished preloading."),
		}),
		Transitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      help("Completed frame cross-fades."),
		}),
		PlaybackTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_ticks_total",
			Help:      help("Playback scheduler ticks received."),
		}),
		PlaybackTicksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_ticks_dropped_total",
			Help:      help("Playback ticks dropped because a transition was in progress."),
		}),
		PlaybackRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_running",
			Help:      help("1 when animation playback is running, 0 when stopped."),
		}),
		HazardFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazard_fetch_errors_total",
			Help:      help("Hazard feed fetches that failed."),
		}),
		HazardsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hazards_skipped_total",
			Help:      help("Hazards excluded because of missing or malformed geometry."),
		}),
		HazardsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hazards_active",
			Help:      help("Hazards in the subset for the currently visible frame."),
		}),
		NotificationsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      help("Notifications written to the Kafka sink."),
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      help("Notifications dropped because a subscriber was full."),
		}),
	}
}
