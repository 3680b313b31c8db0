package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/safety"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// ErrQueueFull is returned when the signal queue cannot take another signal
var ErrQueueFull = errors.New("signal queue is full")

// MarketSnapshot is the validated market view handed to a signal source on
// each tick
type MarketSnapshot struct {
	Symbol  string
	Ticker  safety.CleanTicker
	Candles []types.OHLCV
	Time    time.Time
}

// SignalSource produces at most one signal per tick. ok is false when the
// source has nothing to say; HOLD signals are dropped by the loop.
type SignalSource interface {
	NextSignal(ctx context.Context, snapshot MarketSnapshot) (types.Signal, bool, error)
}

// QueueSource hands the loop signals submitted from outside, one per tick.
// It satisfies monitoring.SignalSink.
type QueueSource struct {
	symbol string
	queue  chan types.Signal
	now    func() time.Time

	mu      sync.Mutex
	dropped int
}

// NewQueueSource creates a queue for symbol holding up to size signals
func NewQueueSource(symbol string, size int) *QueueSource {
	if size <= 0 {
		size = 16
	}
	return &QueueSource{
		symbol: strings.ToUpper(symbol),
		queue:  make(chan types.Signal, size),
		now:    time.Now,
	}
}

// Enqueue adds a signal without blocking. Signals for another symbol are
// refused.
func (q *QueueSource) Enqueue(signal types.Signal) error {
	if err := signal.Validate(); err != nil {
		return boterrors.NewValidationError("signals", "enqueue", err.Error())
	}
	signal.Symbol = strings.ToUpper(signal.Symbol)
	if q.symbol != "" && signal.Symbol != q.symbol {
		return boterrors.NewValidationError("signals", "enqueue",
			fmt.Sprintf("signal for %s refused: gate trades %s", signal.Symbol, q.symbol))
	}
	if signal.Time.IsZero() {
		signal.Time = q.now()
	}

	select {
	case q.queue <- signal:
		return nil
	default:
		q.mu.Lock()
		q.dropped++
		q.mu.Unlock()
		return ErrQueueFull
	}
}

// NextSignal pops the oldest queued signal, if any
func (q *QueueSource) NextSignal(ctx context.Context, snapshot MarketSnapshot) (types.Signal, bool, error) {
	select {
	case <-ctx.Done():
		return types.Signal{}, false, ctx.Err()
	case signal := <-q.queue:
		return signal, true, nil
	default:
		return types.Signal{}, false, nil
	}
}

// Len returns the number of queued signals
func (q *QueueSource) Len() int {
	return len(q.queue)
}

// Dropped returns how many signals were refused because the queue was full
func (q *QueueSource) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
