package metrics

import "github.com/prometheus/client_golang/prometheus"

// AssistantMetrics exposes counters/histograms for booking assistant sessions
// and their chat requests.
type AssistantMetrics struct {
	sessionsTotal  *prometheus.CounterVec
	turnsTotal     *prometheus.CounterVec
	attemptsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

func NewAssistantMetrics(reg prometheus.Registerer) *AssistantMetrics {
	m := &AssistantMetrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "assistant",
			Name:      "session_events_total",
			Help:      "Session lifecycle events (opened, booking_complete, escalated, turn_limit, discarded)",
		}, []string{"event"}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "assistant",
			Name:      "turns_total",
			Help:      "User turns by outcome",
		}, []string{"outcome"}),
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "assistant",
			Name:      "chat_attempts_total",
			Help:      "Individual chat endpoint attempts by result",
		}, []string{"result"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studio",
			Subsystem: "assistant",
			Name:      "chat_request_seconds",
			Help:      "Latency of chat requests including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sessionsTotal, m.turnsTotal, m.attemptsTotal, m.requestLatency)
	return m
}

func (m *AssistantMetrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(event).Inc()
}

func (m *AssistantMetrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *AssistantMetrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(result).Inc()
}

func (m *AssistantMetrics) ObserveRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(outcome).Observe(seconds)
}

// ProxyMetrics covers the chat pass-through endpoint.
type ProxyMetrics struct {
	requestsTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
}

func NewProxyMetrics(reg prometheus.Registerer) *ProxyMetrics {
	m := &ProxyMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studio",
			Subsystem: "chatproxy",
			Name:      "requests_total",
			Help:      "Chat proxy requests by mode and status",
		}, []string{"mode", "status"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "studio",
			Subsystem: "chatproxy",
			Name:      "upstream_seconds",
			Help:      "Latency of workflow webhook calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.upstreamLatency)
	return m
}

func (m *ProxyMetrics) ObserveRequest(mode string, status int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(mode, statusClass(status)).Inc()
}

func (m *ProxyMetrics) ObserveUpstream(mode string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(mode).Observe(seconds)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
