// Package executor defines the action-execution boundary of the engine. The
// engine decides WHEN to act; an Executor owns HOW the action reaches the
// outside world (signing, broadcast, liquidity).
package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// Executor performs the action of a matched rule at the given price. Expected
// business failures (insufficient funds, no liquidity) are encoded in the
// result with Success=false; only truly unexpected faults are returned as
// errors.
type Executor interface {
	Execute(ctx context.Context, rule domain.Rule, price decimal.Decimal) (domain.ExecutionResult, error)
}
