package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.Renewal(TriggerReactive, OutcomeSuccess, 20*time.Millisecond)
	m.Renewal(TriggerReactive, OutcomeSuccess, 30*time.Millisecond)
	m.Renewal(TriggerProactive, OutcomeFailure, 0)
	m.Transition("active", "renewing")
	m.Request("GET", OutcomeReplayed)
	m.Replay()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.renewals.WithLabelValues(TriggerReactive, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.renewals.WithLabelValues(TriggerProactive, OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("active", "renewing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", OutcomeReplayed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.replays))
	assert.Equal(t, 1, testutil.CollectAndCount(m.renewalDuration))

	n, err := testutil.GatherAndCount(m.Registry(), "kais_session_renewal_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Renewal(TriggerRestore, OutcomeSuccess, time.Second)
		m.Transition("anonymous", "authenticating")
		m.Request("POST", OutcomeError)
		m.Replay()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.WithBuildInfoCollector()
	m.Replay()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "kais_gateway_replays_total 1"))
	assert.Contains(t, body, "go_build_info")
}
