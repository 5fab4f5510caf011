package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainCounters(t *testing.T) {
	m := New()
	m.OrderTransition("pending", "open")
	m.OrderTransition("pending", "open")
	m.FundingDecision("deposit", "approved")
	m.LoanDecision("rejected")
	m.QuoteUpdate("EURUSD", "simulated")
	m.JobRun("loan_interest", errors.New("db down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderTransitions.WithLabelValues("pending", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fundingDecisions.WithLabelValues("deposit", "approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loanDecisions.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.quoteUpdates.WithLabelValues("EURUSD", "simulated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("loan_interest", "false")))
}

func TestNilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderTransition("open", "pending_sell")
		m.FundingDecision("withdrawal", "rejected")
		m.LoanDecision("approved")
		m.QuoteUpdate("BTCUSDT", "binance")
		m.JobRun("x", nil)
	})
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/v1/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/orders/abc", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/v1/orders/{id}", "418")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tradesim_http_requests_total"))
}
