package metrics

import "github.com/prometheus/client_golang/prometheus"

// KioskMetrics exposes counters/histograms for webhook ingestion, directory
// calls and the check-in flow. A nil *KioskMetrics is valid and records nothing.
type KioskMetrics struct {
	webhookTotal     *prometheus.CounterVec
	webhookLatency   *prometheus.HistogramVec
	directoryTotal   *prometheus.CounterVec
	directoryLatency *prometheus.HistogramVec
	checkinTotal     *prometheus.CounterVec
	analyticsCache   *prometheus.CounterVec
}

func NewKioskMetrics(reg prometheus.Registerer) *KioskMetrics {
	m := &KioskMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound scheduling webhooks by event and outcome",
		}, []string{"event", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiosk",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		directoryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "directory",
			Name:      "requests_total",
			Help:      "Directory API requests by resource, method and status",
		}, []string{"resource", "method", "status"}),
		directoryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiosk",
			Subsystem: "directory",
			Name:      "request_seconds",
			Help:      "Directory API request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"resource", "method"}),
		checkinTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "checkin",
			Name:      "steps_total",
			Help:      "Check-in workflow steps by stage and outcome",
		}, []string{"stage", "outcome"}),
		analyticsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Subsystem: "analytics",
			Name:      "cache_total",
			Help:      "Wait-time cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.webhookTotal,
		m.webhookLatency,
		m.directoryTotal,
		m.directoryLatency,
		m.checkinTotal,
		m.analyticsCache,
	)
	return m
}

func (m *KioskMetrics) ObserveWebhook(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(event, outcome).Inc()
}

func (m *KioskMetrics) ObserveWebhookLatency(method string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(method).Observe(seconds)
}

func (m *KioskMetrics) ObserveDirectory(resource, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.directoryTotal.WithLabelValues(resource, method, status).Inc()
	m.directoryLatency.WithLabelValues(resource, method).Observe(seconds)
}

func (m *KioskMetrics) ObserveCheckin(stage, outcome string) {
	if m == nil {
		return
	}
	m.checkinTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *KioskMetrics) ObserveAnalyticsCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.analyticsCache.WithLabelValues(result).Inc()
}
