package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsIdempotentPerRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first := New("test", reg)
	second := New("test", reg)

	first.TenantOpened(nil)
	second.TenantOpened(errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(first.TenantOpens.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.TenantOpens.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
		m.SetTenantHandles(3)
		m.TenantOpened(nil)
		m.AgentTurn("ok", 1)
		m.ToolCall("list_menu", "ok")
		m.Tokens(10)
		m.RateLimited()
	})
}

func TestObserveHTTPUsesStatusClass(t *testing.T) {
	t.Parallel()

	m := New("svc", prometheus.NewRegistry())
	m.ObserveHTTP("POST", "/tenant/:slug/chat", 429, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/tenant/:slug/chat", "4xx")))
}
