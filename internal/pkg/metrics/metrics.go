package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors shared by the auth, penalty and
// moderation paths. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	AuthRejectionsTotal *prometheus.CounterVec
	TokensIssuedTotal   *prometheus.CounterVec

	PenaltiesAppliedTotal   prometheus.Counter
	SuspensionsStartedTotal prometheus.Counter
	SuspensionsReleased     *prometheus.CounterVec

	ModerationCallsTotal    *prometheus.CounterVec
	ModerationCallDuration  prometheus.Histogram
	NotificationClientsOpen prometheus.Gauge
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "board_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_auth_rejections_total",
				Help: "Rejected token validations by internal reason",
			},
			[]string{"reason"},
		),
		TokensIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_tokens_issued_total",
				Help: "Issued session tokens by kind",
			},
			[]string{"kind"},
		),
		PenaltiesAppliedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_penalties_applied_total",
			Help: "Confirmed abusive submissions counted against users",
		}),
		SuspensionsStartedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_suspensions_started_total",
			Help: "Write suspensions opened by threshold crossings",
		}),
		SuspensionsReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_suspensions_released_total",
				Help: "Lapsed suspensions cleared, by path",
			},
			[]string{"path"},
		),
		ModerationCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "board_moderation_calls_total",
				Help: "Moderation calls by outcome",
			},
			[]string{"outcome"},
		),
		ModerationCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "board_moderation_call_duration_seconds",
			Help:    "Moderation round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationClientsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "board_notification_clients_open",
			Help: "Open suspension notification websockets",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthRejectionsTotal,
		m.TokensIssuedTotal,
		m.PenaltiesAppliedTotal,
		m.SuspensionsStartedTotal,
		m.SuspensionsReleased,
		m.ModerationCallsTotal,
		m.ModerationCallDuration,
		m.NotificationClientsOpen,
	)
	return m
}

func (m *Metrics) AuthRejected(reason string) {
	if m == nil {
		return
	}
	m.AuthRejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) TokenIssued(kind string) {
	if m == nil {
		return
	}
	m.TokensIssuedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) PenaltyApplied(suspended bool) {
	if m == nil {
		return
	}
	m.PenaltiesAppliedTotal.Inc()
	if suspended {
		m.SuspensionsStartedTotal.Inc()
	}
}

func (m *Metrics) SuspensionReleased(path string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SuspensionsReleased.WithLabelValues(path).Add(float64(n))
}

func (m *Metrics) ModerationCall(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ModerationCallsTotal.WithLabelValues(outcome).Inc()
	m.ModerationCallDuration.Observe(took.Seconds())
}

func (m *Metrics) NotificationClients(delta float64) {
	if m == nil {
		return
	}
	m.NotificationClientsOpen.Add(delta)
}

// GinMiddleware records request counts and latency keyed by the matched
// route template, so path parameters do not explode label cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
