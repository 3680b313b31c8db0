package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/ledger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// SignalSink accepts externally submitted signals for the control loop
type SignalSink interface {
	Enqueue(signal types.Signal) error
}

// Sources are the components the status endpoint reads. Ledger is also the
// target of the manual deposit and release endpoints.
type Sources struct {
	Ledger  *ledger.CapitalLedger
	Risk    *risk.RiskEvaluator
	Health  *safety.HealthMonitor
	Breaker *safety.SafetyBreaker
}

// GateStatus is the /health document
type GateStatus struct {
	Status    string               `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
	Uptime    string               `json:"uptime"`
	Ledger    ledger.Status        `json:"ledger"`
	Risk      risk.Snapshot        `json:"risk"`
	Health    safety.HealthStatus  `json:"health"`
	Breaker   safety.BreakerStatus `json:"breaker"`
}

// Server exposes health, metrics and the manual override endpoints
type Server struct {
	sources Sources
	metrics *Metrics
	sink    SignalSink
	logger  *logger.Logger
	started time.Time
	server  *http.Server
}

// NewServer builds the HTTP surface. sink may be nil, in which case
// POST /signals answers 503.
func NewServer(addr string, sources Sources, metrics *Metrics, sink SignalSink, log *logger.Logger) *Server {
	s := &Server{
		sources: sources,
		metrics: metrics,
		sink:    sink,
		logger:  log,
		started: time.Now(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Routes returns the request multiplexer
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	mux.HandleFunc("POST /signals", s.handleSignal)
	mux.HandleFunc("POST /ledger/deposit", s.handleLedger(func(amount float64) { s.sources.Ledger.Deposit(amount) }))
	mux.HandleFunc("POST /ledger/release", s.handleLedger(func(amount float64) { s.sources.Ledger.Release(amount) }))
	return mux
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Monitoring server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Status assembles the current gate status
func (s *Server) Status() GateStatus {
	st := GateStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Ledger:    s.sources.Ledger.Status(),
		Risk:      s.sources.Risk.Status(),
		Health:    s.sources.Health.Status(),
		Breaker:   s.sources.Breaker.Status(),
	}
	switch {
	case st.Breaker.KillSwitchActive:
		st.Status = "halted"
	case st.Health.ErrorCount > 0 || st.Health.VenueStatus != types.VenueOnline:
		st.Status = "degraded"
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.Status()
	if s.metrics != nil {
		s.metrics.UpdateLedger(st.Ledger)
		s.metrics.UpdateSafety(st.Health, st.Breaker)
		s.metrics.UpdateOpenPositions(st.Risk.OpenPositions)
	}

	code := http.StatusOK
	if st.Status == "halted" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	if s.sink == nil {
		writeError(w, http.StatusServiceUnavailable, "signal intake is disabled")
		return
	}

	var signal types.Signal
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&signal); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid signal body: %v", err))
		return
	}
	action, err := types.ParseAction(string(signal.Action))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	signal.Action = action
	if signal.Source == "" {
		signal.Source = "http"
	}
	if signal.Time.IsZero() {
		signal.Time = time.Now()
	}
	if err := signal.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.sink.Enqueue(signal); err != nil {
		code := http.StatusServiceUnavailable
		var botErr *boterrors.BotError
		if errors.As(err, &botErr) && botErr.Category == boterrors.ErrorCategoryValidation {
			code = http.StatusBadRequest
		}
		writeError(w, code, err.Error())
		return
	}
	s.logger.Info("Signal accepted over HTTP: %s %s @ %.4f", signal.Action, signal.Symbol, signal.Price)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"accepted": true, "signal": signal})
}

type amountRequest struct {
	Amount float64 `json:"amount"`
}

func (s *Server) handleLedger(apply func(float64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid body: %v", err))
			return
		}
		if req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "amount must be positive")
			return
		}

		apply(req.Amount)
		status := s.sources.Ledger.Status()
		s.logger.LogWarning("manual override", "%s %.2f: total %.2f reserved %.2f", r.URL.Path, req.Amount, status.Total, status.Reserved)
		if s.metrics != nil {
			s.metrics.UpdateLedger(status)
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
