package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRule(t *testing.T) {
	rule, err := NewRule(RuleKindStopLoss, "BTC", "USDC",
		decimal.NewFromFloat(0.5), OperatorLTE, decimal.NewFromInt(90000), decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.NotEmpty(t, rule.ID)
	assert.True(t, rule.Enabled)
	assert.False(t, rule.CreatedAt.IsZero())
	assert.Nil(t, rule.LastExecutedAt)
}

func TestNewRuleValidation(t *testing.T) {
	amount := decimal.NewFromInt(1)
	value := decimal.NewFromInt(100)
	slippage := decimal.NewFromInt(1)

	for name, build := range map[string]func() (*Rule, error){
		"unknown kind": func() (*Rule, error) {
			return NewRule("margin_call", "BTC", "USDC", amount, OperatorGT, value, slippage)
		},
		"empty source": func() (*Rule, error) {
			return NewRule(RuleKindPriceTarget, "", "USDC", amount, OperatorGT, value, slippage)
		},
		"zero amount": func() (*Rule, error) {
			return NewRule(RuleKindPriceTarget, "BTC", "USDC", decimal.Zero, OperatorGT, value, slippage)
		},
		"negative amount": func() (*Rule, error) {
			return NewRule(RuleKindPriceTarget, "BTC", "USDC", decimal.NewFromInt(-1), OperatorGT, value, slippage)
		},
		"unknown operator": func() (*Rule, error) {
			return NewRule(RuleKindPriceTarget, "BTC", "USDC", amount, "between", value, slippage)
		},
		"negative slippage": func() (*Rule, error) {
			return NewRule(RuleKindPriceTarget, "BTC", "USDC", amount, OperatorGT, value, decimal.NewFromInt(-1))
		},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := build()
			assert.Error(t, err)
		})
	}
}

func TestOperatorCompare(t *testing.T) {
	a := decimal.NewFromInt(100)
	b := decimal.NewFromInt(100)
	smaller := decimal.NewFromInt(99)

	assert.True(t, OperatorGTE.Compare(a, b))
	assert.True(t, OperatorLTE.Compare(a, b))
	assert.True(t, OperatorEQ.Compare(a, b))
	assert.False(t, OperatorGT.Compare(a, b))
	assert.False(t, OperatorLT.Compare(a, b))

	assert.True(t, OperatorGT.Compare(a, smaller))
	assert.True(t, OperatorLT.Compare(smaller, a))
	assert.False(t, Operator("between").Compare(a, b))
}
