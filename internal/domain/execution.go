package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionResult is the outcome of a single dispatched action. Immutable once
// created; appended to the owning rule's bounded history.
type ExecutionResult struct {
	Success         bool            `json:"success"`
	TxRef           string          `json:"tx_ref,omitempty"`
	ExecutedPrice   decimal.Decimal `json:"executed_price,omitempty"`
	SlippagePercent decimal.Decimal `json:"slippage_percent,omitempty"`
	Error           string          `json:"error,omitempty"`
	Timestamp       int64           `json:"ts"`
}

// Time returns the execution timestamp as time.Time.
func (r ExecutionResult) Time() time.Time {
	return time.Unix(r.Timestamp, 0)
}

// ExecutionStats aggregates a rule's execution history. Computed on demand
// from the history so there is no second source of truth to keep in sync.
type ExecutionStats struct {
	TotalExecutions      int
	SuccessfulExecutions int
	FailedExecutions     int
	AverageSlippage      decimal.Decimal
	LastExecution        *ExecutionResult
}
