package metrics

import (
	"net/http"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kais"

// Renewal triggers
const (
	TriggerProactive = "proactive"
	TriggerReactive  = "reactive"
	TriggerRestore   = "restore"
)

// Outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDiscarded = "discarded"
	OutcomeReplayed  = "replayed"
	OutcomeDenied    = "denied"
	OutcomeError     = "error"
)

// Metrics holds the session and gateway collectors on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	renewals        *prometheus.CounterVec
	renewalDuration prometheus.Histogram
	transitions     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	replays         prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "renewals_total",
			Help:      "Session renewals by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		renewalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "renewal_duration_seconds",
			Help:      "Duration of refresh-token calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session state transitions.",
		}, []string{"from", "to"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Logical gateway requests by method and outcome.",
		}, []string{"method", "outcome"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "replays_total",
			Help:      "Requests replayed after a reactive renewal.",
		}),
	}

	m.registry.MustRegister(m.renewals, m.renewalDuration, m.transitions, m.requests, m.replays)
	return m
}

func (m *Metrics) WithGoCollectorRuntimeMetrics() {
	m.registry.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorRuntimeMetrics(collectors.GoRuntimeMetricsRule{Matcher: regexp.MustCompile("/.*")}),
	))
}

func (m *Metrics) WithBuildInfoCollector() {
	m.registry.MustRegister(collectors.NewBuildInfoCollector())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Renewal records one renewal attempt
func (m *Metrics) Renewal(trigger, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(trigger, outcome).Inc()
	if d > 0 {
		m.renewalDuration.Observe(d.Seconds())
	}
}

// Transition records a session state change
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// Request records a finished gateway request
func (m *Metrics) Request(method, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

// Replay records a request replayed after renewal
func (m *Metrics) Replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}
