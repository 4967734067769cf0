package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airwatch"

// Metrics holds the Prometheus counters, histograms, and gauges for the dashboard core.
type Metrics struct {
	// Live data orchestration.
	PositionsReceived  prometheus.Counter
	LiveFetches        *prometheus.CounterVec // labels: outcome={ok,service_error,malformed}
	LiveFetchDuration  prometheus.Histogram
	StaleResponses     *prometheus.CounterVec // labels: component={live,route,forecast}
	OrchestratorState  *prometheus.GaugeVec   // labels: state
	SnapshotsPublished prometheus.Counter
	PublishErrors      prometheus.Counter

	// Route planning.
	RouteRequests *prometheus.CounterVec // labels: verdict={infeasible,already_optimal,alternative_available,error}

	// Upstream service.
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error,circuit_open}
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint
	StationCache     *prometheus.CounterVec   // labels: result={hit,miss}

	// Forecast refresh.
	ForecastRefreshes *prometheus.CounterVec // labels: outcome={ok,error,skipped}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.PositionsReceived,
		m.LiveFetches,
		m.LiveFetchDuration,
		m.StaleResponses,
		m.OrchestratorState,
		m.SnapshotsPublished,
		m.PublishErrors,
		m.RouteRequests,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.StationCache,
		m.ForecastRefreshes,
	)

	return m
}

// NewMetricsForTesting creates Metrics with no registration to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		PositionsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_received_total",
			Help:      help("Position updates delivered by the position feed."),
		}),
		LiveFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_fetches_total",
			Help:      help("Completed live-data fetches by outcome."),
		}, []string{"outcome"}),
		LiveFetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_fetch_duration_seconds",
			Help:      help("Duration of a live-data fetch, including retries."),
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      help("Responses discarded because a newer request superseded them."),
		}, []string{"component"}),
		OrchestratorState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orchestrator_state",
			Help:      help("1 for the orchestrator's current state, 0 for the others."),
		}, []string{"state"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      help("Resolved snapshots written to the snapshot topic."),
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_publish_errors_total",
			Help:      help("Snapshot publish failures."),
		}),
		RouteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_requests_total",
			Help:      help("Accepted route searches by verdict."),
		}, []string{"verdict"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      help("Upstream service requests by endpoint and outcome."),
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      help("Upstream service request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		StationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "station_cache_total",
			Help:      help("Station search cache lookups by result."),
		}, []string{"result"}),
		ForecastRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_refreshes_total",
			Help:      help("Scheduled forecast refreshes by outcome."),
		}, []string{"outcome"}),
	}
}

// SetState marks one orchestrator state as current.
func (m *Metrics) SetState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.OrchestratorState.WithLabelValues(s).Set(v)
	}
}
