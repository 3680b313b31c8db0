package orchestrator

import (
	"time"

	boterrors "github.com/ducminhle1904/crypto-trade-gate/internal/errors"
	"github.com/ducminhle1904/crypto-trade-gate/internal/exchange"
	"github.com/ducminhle1904/crypto-trade-gate/internal/risk"
	"github.com/ducminhle1904/crypto-trade-gate/pkg/types"
)

// Status is the outcome of one pipeline run
type Status string

const (
	StatusExecuted Status = "executed"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
)

// Kind says which pipeline produced a result
type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// Result is returned by every pipeline run. Category is set on failures only;
// Position on executed entries and Closed on executed exits.
type Result struct {
	Kind     Kind                   `json:"kind"`
	Status   Status                 `json:"status"`
	Reason   string                 `json:"reason"`
	Category boterrors.FailureClass `json:"category,omitempty"`
	Signal   types.Signal           `json:"signal"`
	Notional float64                `json:"notional,omitempty"`
	Order    *exchange.Order        `json:"order,omitempty"`
	Position *risk.Position         `json:"position,omitempty"`
	Closed   *risk.ClosedPosition   `json:"closed,omitempty"`
	Time     time.Time              `json:"time"`
}

// Executed reports whether the venue filled the order
func (r Result) Executed() bool {
	return r.Status == StatusExecuted
}

// ResultObserver receives every result after the pipeline finishes
type ResultObserver interface {
	ObserveResult(Result)
}
