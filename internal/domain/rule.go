package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleKind selects the trigger condition of an automation rule.
type RuleKind string

const (
	RuleKindPriceTarget      RuleKind = "price_target"
	RuleKindPercentageChange RuleKind = "percentage_change"
	RuleKindStopLoss         RuleKind = "stop_loss"
	RuleKindTakeProfit       RuleKind = "take_profit"
)

// Operator is a comparison operator used by rule conditions.
type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorLT  Operator = "lt"
	OperatorGTE Operator = "gte"
	OperatorLTE Operator = "lte"
	OperatorEQ  Operator = "eq"
)

// Compare applies the operator to (a, b), i.e. "a op b".
func (o Operator) Compare(a, b decimal.Decimal) bool {
	switch o {
	case OperatorGT:
		return a.GreaterThan(b)
	case OperatorLT:
		return a.LessThan(b)
	case OperatorGTE:
		return a.GreaterThanOrEqual(b)
	case OperatorLTE:
		return a.LessThanOrEqual(b)
	case OperatorEQ:
		return a.Equal(b)
	default:
		return false
	}
}

func (o Operator) valid() bool {
	switch o {
	case OperatorGT, OperatorLT, OperatorGTE, OperatorLTE, OperatorEQ:
		return true
	}
	return false
}

// Rule maps a single price condition to a single action. Rules are owned by the
// engine's rule table and mutated only through explicit add/remove/enable calls.
type Rule struct {
	ID                 string
	Kind               RuleKind
	Enabled            bool
	SourceAsset        AssetCode
	TargetAsset        AssetCode
	Amount             decimal.Decimal
	Operator           Operator
	Value              decimal.Decimal
	MaxSlippagePercent decimal.Decimal
	CreatedAt          time.Time
	LastExecutedAt     *time.Time
}

// NewRule constructs a validated rule with a generated ID.
func NewRule(kind RuleKind, source, target AssetCode, amount decimal.Decimal,
	op Operator, value, maxSlippagePercent decimal.Decimal) (*Rule, error) {

	switch kind {
	case RuleKindPriceTarget, RuleKindPercentageChange, RuleKindStopLoss, RuleKindTakeProfit:
	default:
		return nil, fmt.Errorf("unknown rule kind: %s", kind)
	}
	if source == "" {
		return nil, fmt.Errorf("source asset is required")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("rule amount must be greater than zero, got %s", amount.String())
	}
	if !op.valid() {
		return nil, fmt.Errorf("unknown condition operator: %s", op)
	}
	if maxSlippagePercent.IsNegative() {
		return nil, fmt.Errorf("max slippage percent must not be negative, got %s", maxSlippagePercent.String())
	}

	return &Rule{
		ID:                 uuid.NewString(),
		Kind:               kind,
		Enabled:            true,
		SourceAsset:        source,
		TargetAsset:        target,
		Amount:             amount,
		Operator:           op,
		Value:              value,
		MaxSlippagePercent: maxSlippagePercent,
		CreatedAt:          time.Now(),
	}, nil
}
