package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	TenantHandles   prometheus.Gauge
	TenantOpens     *prometheus.CounterVec
	AgentTurns      *prometheus.CounterVec
	AgentAttempts   prometheus.Histogram
	ToolCalls       *prometheus.CounterVec
	TokensConsumed  prometheus.Counter
	RateLimitDenied prometheus.Counter
}

// New registers the collectors on reg (prometheus.DefaultRegisterer when
// nil). Registering twice returns the collectors already registered.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		TenantHandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "store_handles",
			Help:      "Number of cached tenant store handles",
		}),
		TenantOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tenant",
			Name:      "store_opens_total",
			Help:      "Tenant store initialisations by result",
		}, []string{"result"}),
		AgentTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Agent turns by outcome",
		}, []string{"outcome"}),
		AgentAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "attempts",
			Help:      "Attempts needed per agent turn",
			Buckets:   []float64{1, 2, 3, 4, 5},
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		TokensConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tokens_total",
			Help:      "Tokens recorded in the usage ledger",
		}),
		RateLimitDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "rate_limited_total",
			Help:      "Chat requests refused by the token budget",
		}),
	}

	m.HTTPRequests = register(reg, m.HTTPRequests)
	m.HTTPDuration = register(reg, m.HTTPDuration)
	m.TenantHandles = register(reg, m.TenantHandles)
	m.TenantOpens = register(reg, m.TenantOpens)
	m.AgentTurns = register(reg, m.AgentTurns)
	m.AgentAttempts = register(reg, m.AgentAttempts)
	m.ToolCalls = register(reg, m.ToolCalls)
	m.TokensConsumed = register(reg, m.TokensConsumed)
	m.RateLimitDenied = register(reg, m.RateLimitDenied)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) SetTenantHandles(n int) {
	if m == nil {
		return
	}
	m.TenantHandles.Set(float64(n))
}

func (m *Metrics) TenantOpened(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.TenantOpens.WithLabelValues(result).Inc()
}

func (m *Metrics) AgentTurn(outcome string, attempts int) {
	if m == nil {
		return
	}
	m.AgentTurns.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		m.AgentAttempts.Observe(float64(attempts))
	}
}

func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) Tokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensConsumed.Add(float64(n))
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.RateLimitDenied.Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
