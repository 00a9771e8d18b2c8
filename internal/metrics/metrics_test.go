package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("CASE_CREATED")
	m.Conflict("submit")
	m.SweepResult("expiry", "changed", 3)
	m.SweepDuration("expiry", time.Second)
	m.AuditDropped()
	m.AuditSinkFailure()
	m.TokenDenied("unknown")
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Transition("CASE_CREATED")
	m.Transition("CASE_CREATED")
	m.SweepResult("reminder", "changed", 2)
	m.SweepResult("reminder", "failed", 0)
	m.AuditDropped()

	require.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("CASE_CREATED")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.sweepCases.WithLabelValues("reminder", "changed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.auditDropped))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "docflow_case_transitions_total"))
}
