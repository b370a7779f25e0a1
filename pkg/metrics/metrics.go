package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	RegistryNodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lookout_registry_nodes",
			Help: "Number of registered nodes by discovery source and approval",
		},
		[]string{"source", "approved"},
	)

	RegistryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_registry_operations_total",
			Help: "Registry operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Discovery metrics (hub side)
	AnnouncesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_announces_total",
			Help: "Announcements received by result",
		},
		[]string{"result"},
	)

	// Announcer metrics (node side)
	AnnounceAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_announcer_attempts_total",
			Help: "Announcements sent by this node by outcome",
		},
		[]string{"outcome"},
	)

	AnnounceConsecutiveFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookout_announcer_consecutive_failures",
			Help: "Consecutive failed announcements since the last success",
		},
	)

	// Proxy metrics
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_proxy_requests_total",
			Help: "Outbound node requests by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ProxyRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookout_proxy_request_duration_seconds",
			Help:    "Outbound node request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookout_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Node agent metrics
	NodeActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookout_node_actions_total",
			Help: "Actions executed by this node by action and result",
		},
		[]string{"action", "result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RegistryNodes)
	prometheus.MustRegister(RegistryOperationsTotal)
	prometheus.MustRegister(AnnouncesTotal)
	prometheus.MustRegister(AnnounceAttemptsTotal)
	prometheus.MustRegister(AnnounceConsecutiveFailures)
	prometheus.MustRegister(ProxyRequestsTotal)
	prometheus.MustRegister(ProxyRequestDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(NodeActionsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time on a histogram vec
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
