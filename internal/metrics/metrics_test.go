package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	m.Transition("escrow", "awaiting_funding", "in_escrow")
	m.Transition("escrow", "awaiting_funding", "in_escrow")
	m.LedgerMovement("debit", "USD")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.transitions.WithLabelValues("escrow", "awaiting_funding", "in_escrow")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerMovements.WithLabelValues("debit", "USD")))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg, reg)

	h := m.Middleware("POST /escrows", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/escrows", nil))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `remit_http_requests_total{method="POST",route="POST /escrows",status="201"} 1`), body)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("escrow", "a", "b")
	m.LedgerMovement("credit", "USD")

	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, m.Middleware("x", next))
}
