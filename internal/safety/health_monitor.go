package safety

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/logger"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

const (
	// retryBelow is the error count under which a failure is simply retried
	retryBelow       = 3
	maxMessageLength = 80
)

// StatusProber is the lightweight reachability check a venue exposes
type StatusProber interface {
	Status(ctx context.Context) (types.VenueStatus, error)
}

// HealthConfig holds the technical guard limits
type HealthConfig struct {
	MaxErrors    int           `json:"max_errors" yaml:"max_errors"`
	ProbeTimeout time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
}

// DefaultHealthConfig returns the limits used when none are configured
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		MaxErrors:    5,
		ProbeTimeout: 10 * time.Second,
	}
}

// CleanTicker is the normalised projection of a validated ticker
type CleanTicker struct {
	Price     float64   `json:"price"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Volume24h float64   `json:"volume_24h"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is a point-in-time view of the monitor
type HealthStatus struct {
	ErrorCount       int               `json:"error_count"`
	MaxErrors        int               `json:"max_errors"`
	LastErrorTime    time.Time         `json:"last_error_time"`
	VenueStatus      types.VenueStatus `json:"venue_status"`
	LastMessage      string            `json:"last_message"`
	TotalErrors      int               `json:"total_errors"`
	ErrorsByCategory map[string]int    `json:"errors_by_category"`
}

// HealthMonitor counts consecutive infrastructure errors and checks the shape
// of market data. State is in memory only; any confirmed success resets the
// counter.
type HealthMonitor struct {
	config        HealthConfig
	logger        *logger.Logger
	validator     *Validator
	stats         *boterrors.ErrorStats
	errorCount    int
	lastErrorTime time.Time
	venueStatus   types.VenueStatus
	lastMessage   string
	now           func() time.Time
	mutex         sync.RWMutex
}

// NewHealthMonitor creates a monitor, filling unset limits with defaults
func NewHealthMonitor(config HealthConfig, log *logger.Logger) *HealthMonitor {
	defaults := DefaultHealthConfig()
	if config.MaxErrors <= 0 {
		config.MaxErrors = defaults.MaxErrors
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}

	return &HealthMonitor{
		config:      config,
		logger:      log,
		validator:   NewValidator(),
		stats:       boterrors.NewErrorStats(20),
		venueStatus: types.VenueUnknown,
		now:         time.Now,
	}
}

// ValidateConnection probes the venue with the configured timeout. A
// successful probe marks the venue online and clears the error counter; any
// failure counts as one error. The venue is never marked offline here.
func (h *HealthMonitor) ValidateConnection(ctx context.Context, prober StatusProber) (bool, string) {
	probeCtx, cancel := context.WithTimeout(ctx, h.config.ProbeTimeout)
	defer cancel()

	status, err := prober.Status(probeCtx)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err != nil {
		var msg string
		switch boterrors.Classify(err) {
		case boterrors.FailureNetwork:
			msg = "network error: " + truncate(err.Error())
		case boterrors.FailureVenue:
			msg = "venue error: " + truncate(err.Error())
		default:
			msg = "unknown error: " + truncate(err.Error())
		}
		h.recordErrorLocked(err, "validate_connection", msg)
		return false, msg
	}

	if status != types.VenueOnline {
		err := fmt.Errorf("venue returned status: %s", status)
		msg := err.Error()
		h.recordErrorLocked(err, "validate_connection", msg)
		return false, msg
	}

	h.venueStatus = types.VenueOnline
	h.resetLocked()
	h.lastMessage = "venue online"
	return true, h.lastMessage
}

// ValidateTicker checks a ticker and returns its normalised projection
func (h *HealthMonitor) ValidateTicker(ticker *types.Ticker) (bool, string, *CleanTicker) {
	result := h.validator.ValidateTicker(ticker)
	if !result.Valid {
		h.logger.Debug("Ticker rejected: %s", result.Message)
		return false, result.Message, nil
	}

	ts := ticker.Timestamp
	if ts.IsZero() {
		ts = h.now()
	}
	return true, result.Message, &CleanTicker{
		Price:     ticker.Price,
		Bid:       ticker.Bid,
		Ask:       ticker.Ask,
		High24h:   ticker.High24h,
		Low24h:    ticker.Low24h,
		Volume24h: ticker.Volume,
		Timestamp: ts,
	}
}

// ValidateCandles checks candle history length and the newest candles' shape
func (h *HealthMonitor) ValidateCandles(candles []types.OHLCV, minCount int) (bool, string) {
	result := h.validator.ValidateCandles(candles, minCount)
	return result.Valid, result.Message
}

// ShouldEmergencyStop reports stop once the error limit is reached or the
// venue has been marked offline.
func (h *HealthMonitor) ShouldEmergencyStop() (boterrors.RecoveryAction, string) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.errorCount >= h.config.MaxErrors {
		return boterrors.RecoveryActionStop, fmt.Sprintf("emergency stop: %d consecutive errors", h.errorCount)
	}
	if h.venueStatus == types.VenueOffline {
		return boterrors.RecoveryActionStop, "emergency stop: venue offline"
	}
	return boterrors.RecoveryActionOK, "ok"
}

// HandleError counts a failure and escalates by count alone: retry, then
// skip, then stop.
func (h *HealthMonitor) HandleError(err error, where string) boterrors.RecoveryAction {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	msg := where
	if err != nil {
		msg = fmt.Sprintf("%s: %s", where, truncate(err.Error()))
	}
	h.recordErrorLocked(err, where, msg)

	switch {
	case h.errorCount < retryBelow:
		return boterrors.RecoveryActionRetry
	case h.errorCount < h.config.MaxErrors:
		return boterrors.RecoveryActionSkip
	default:
		return boterrors.RecoveryActionStop
	}
}

// ResetErrorCounter clears the counter after a confirmed success
func (h *HealthMonitor) ResetErrorCounter() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.resetLocked()
}

// SetVenueStatus lets the caller mark the venue offline after repeated
// failures, or back online.
func (h *HealthMonitor) SetVenueStatus(status types.VenueStatus) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.venueStatus != status {
		h.logger.Warning("Venue status: %s -> %s", h.venueStatus, status)
	}
	h.venueStatus = status
}

// Status returns a snapshot of the monitor
func (h *HealthMonitor) Status() HealthStatus {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	byCategory := make(map[string]int, len(h.stats.ErrorsByCategory))
	for category, count := range h.stats.ErrorsByCategory {
		byCategory[string(category)] = count
	}

	return HealthStatus{
		ErrorCount:       h.errorCount,
		MaxErrors:        h.config.MaxErrors,
		LastErrorTime:    h.lastErrorTime,
		VenueStatus:      h.venueStatus,
		LastMessage:      h.lastMessage,
		TotalErrors:      h.stats.TotalErrors,
		ErrorsByCategory: byCategory,
	}
}

func (h *HealthMonitor) recordErrorLocked(err error, operation, msg string) {
	h.errorCount++
	h.lastErrorTime = h.now()
	h.lastMessage = msg

	if err != nil {
		h.stats.RecordError(boterrors.CategorizeError(err, "health", operation))
	}
	h.logger.Error("Error #%d: %s", h.errorCount, msg)
}

func (h *HealthMonitor) resetLocked() {
	if h.errorCount > 0 {
		h.logger.Info("Error counter reset: %d -> 0", h.errorCount)
		h.errorCount = 0
	}
}

// truncate cuts s to at most maxMessageLength bytes on a rune boundary
func truncate(s string) string {
	if len(s) <= maxMessageLength {
		return s
	}
	cut := maxMessageLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
