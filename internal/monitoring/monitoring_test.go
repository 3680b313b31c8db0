package monitoring

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/orchestrator"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

type sliceSink struct {
	signals []types.Signal
	err     error
}

func (s *sliceSink) Enqueue(signal types.Signal) error {
	if s.err != nil {
		return s.err
	}
	s.signals = append(s.signals, signal)
	return nil
}

func newTestServer(t *testing.T, sink SignalSink) (*Server, Sources) {
	t.Helper()
	evaluator, err := risk.NewRiskEvaluator(risk.DefaultConfig(), nil)
	require.NoError(t, err)
	sources := Sources{
		Ledger:  ledger.NewCapitalLedger(ledger.Config{InitialCapital: 1000, MaxPositionFraction: 0.03}, nil, nil),
		Risk:    evaluator,
		Health:  safety.NewHealthMonitor(safety.DefaultHealthConfig(), nil),
		Breaker: safety.NewSafetyBreaker(safety.DefaultBreakerConfig(), nil, nil),
	}
	return NewServer(":0", sources, NewMetrics(), sink, nil), sources
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, sources := newTestServer(t, nil)
	h := srv.Routes()

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var st GateStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "degraded", st.Status)
	assert.Equal(t, 1000.0, st.Ledger.Total)
	assert.Equal(t, "ARMED", st.Breaker.State)

	sources.Health.SetVenueStatus(types.VenueOnline)
	rec = do(t, h, http.MethodGet, "/health", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "healthy", st.Status)

	sources.Breaker.Trip(safety.CodeManual, "operator")
	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "halted", st.Status)
}

func TestSignalEndpoint(t *testing.T) {
	sink := &sliceSink{}
	srv, _ := newTestServer(t, sink)
	h := srv.Routes()

	rec := do(t, h, http.MethodPost, "/signals", `{"action":"buy","symbol":"BTCUSDT","price":100,"confidence":0.8}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, sink.signals, 1)
	assert.Equal(t, types.ActionBuy, sink.signals[0].Action)
	assert.Equal(t, "http", sink.signals[0].Source)
	assert.False(t, sink.signals[0].Time.IsZero())

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"action":`},
		{"unknown action", `{"action":"short","symbol":"BTCUSDT","price":100,"confidence":0.8}`},
		{"missing symbol", `{"action":"buy","price":100,"confidence":0.8}`},
		{"confidence out of range", `{"action":"buy","symbol":"BTCUSDT","price":100,"confidence":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/signals", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Len(t, sink.signals, 1)

	sink.err = boterrors.NewValidationError("signals", "enqueue", "signal for ETHUSDT refused")
	rec = do(t, h, http.MethodPost, "/signals", `{"action":"sell","symbol":"ETHUSDT","price":100,"confidence":0.8}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sink.err = errors.New("queue full")
	rec = do(t, h, http.MethodPost, "/signals", `{"action":"sell","symbol":"BTCUSDT","price":100,"confidence":0.8}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	disabled, _ := newTestServer(t, nil)
	rec = do(t, disabled.Routes(), http.MethodPost, "/signals", `{"action":"buy","symbol":"BTCUSDT","price":100,"confidence":0.8}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, http.MethodGet, "/signals", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLedgerOverrideEndpoints(t *testing.T) {
	srv, sources := newTestServer(t, nil)
	h := srv.Routes()

	require.True(t, sources.Ledger.Reserve(20))

	rec := do(t, h, http.MethodPost, "/ledger/release", `{"amount":20}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.0, sources.Ledger.Status().Reserved)

	rec = do(t, h, http.MethodPost, "/ledger/deposit", `{"amount":250}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	var st ledger.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1250.0, st.Total)

	rec = do(t, h, http.MethodPost, "/ledger/deposit", `{"amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1250.0, sources.Ledger.Status().Total)
}

func TestMetricsObserveResult(t *testing.T) {
	m := NewMetrics()

	m.ObserveResult(orchestrator.Result{Kind: orchestrator.KindEntry, Status: orchestrator.StatusRejected})
	m.ObserveResult(orchestrator.Result{Kind: orchestrator.KindEntry, Status: orchestrator.StatusFailed, Category: boterrors.FailureNetwork})
	m.ObserveResult(orchestrator.Result{
		Kind: orchestrator.KindEntry, Status: orchestrator.StatusExecuted,
		Position: &risk.Position{Symbol: "BTCUSDT", Cost: 30},
	})
	m.ObserveResult(orchestrator.Result{
		Kind: orchestrator.KindExit, Status: orchestrator.StatusExecuted,
		Closed: &risk.ClosedPosition{RealizedPnL: -2.5},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisionsTotal.WithLabelValues("entry", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failuresTotal.WithLabelValues("network")))
	assert.Equal(t, -2.5, testutil.ToFloat64(m.realizedPnL))

	m.UpdateLedger(ledger.Status{Total: 1000, Reserved: 30, Available: 970})
	assert.Equal(t, 970.0, testutil.ToFloat64(m.ledgerCapital.WithLabelValues("available")))

	m.UpdateSafety(safety.HealthStatus{ErrorCount: 2}, safety.BreakerStatus{KillSwitchActive: true})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.healthErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerTripped))

	series, err := testutil.GatherAndCount(m.Registry(), "trade_gate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 4, series)

	rec := do(t, m.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trade_gate_decisions_total")
}
