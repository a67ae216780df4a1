package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.FetchesTotal)
	assert.NotNil(t, m.ClonesTotal)
	assert.NotNil(t, m.CloneDuration)
	assert.NotNil(t, m.CheckoutsTotal)
	assert.NotNil(t, m.ActionsTotal)
	assert.NotNil(t, m.PhasesFiredTotal)
}

func TestMetrics_RecordFetch(t *testing.T) {
	m := New()
	m.RecordFetch(ResultOK)
	m.RecordFetch(ResultAbsent)
	m.RecordFetch(ResultAbsent)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `factory_fetches_total{result="ok"} 1`)
	assert.Contains(t, body, `factory_fetches_total{result="absent"} 2`)
}

func TestMetrics_RecordClone(t *testing.T) {
	m := New()
	m.RecordClone(ResultOK, 1.5)
	m.RecordClone(ResultError, 0.2)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `factory_clones_total{result="ok"} 1`)
	assert.Contains(t, body, `factory_clones_total{result="error"} 1`)
	assert.Contains(t, body, "factory_clone_duration_seconds")
}

func TestMetrics_RecordCheckout(t *testing.T) {
	m := New()
	m.RecordCheckout(ResultError)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `factory_checkouts_total{result="error"} 1`)
}

func TestMetrics_RecordAction_FoldsUnsupported(t *testing.T) {
	m := New()
	m.RecordAction("onProjectsLoaded", "openFile", ResultOK)
	m.RecordAction("onProjectsLoaded", "bogus", ResultUnsupported)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `factory_actions_total{action="openFile",phase="onProjectsLoaded",result="ok"} 1`)
	assert.Contains(t, body, `factory_actions_total{action="other",phase="onProjectsLoaded",result="unsupported"} 1`)
	assert.NotContains(t, body, "bogus")
}

func TestMetrics_RecordPhase(t *testing.T) {
	m := New()
	m.RecordPhase("onAppLoaded")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `factory_phases_fired_total{phase="onAppLoaded"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordFetch(ResultOK)
		m.RecordClone(ResultOK, 1)
		m.RecordCheckout(ResultOK)
		m.RecordAction("onAppLoaded", "openFile", ResultOK)
		m.RecordPhase("onAppLoaded")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	handler := m.Handler()
	assert.NotNil(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}
