package executor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

func newSellRule(t *testing.T, amount float64) *domain.Rule {
	t.Helper()
	rule, err := domain.NewRule(domain.RuleKindStopLoss, "BTC", "USDC",
		decimal.NewFromFloat(amount), domain.OperatorLTE,
		decimal.NewFromInt(90000), decimal.NewFromInt(1))
	require.NoError(t, err)
	return rule
}

func TestSimulateExecutor_Execute(t *testing.T) {
	exec := NewSimulateExecutor(zap.NewNop())
	exec.SetBalance("BTC", decimal.NewFromInt(1))

	rule := newSellRule(t, 0.5)
	price := decimal.NewFromInt(100000)

	res, err := exec.Execute(context.Background(), *rule, price)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.TxRef)
	assert.True(t, res.ExecutedPrice.LessThan(price), "fill should sit below the observed price")
	assert.True(t, res.SlippagePercent.Equal(decimal.NewFromFloat(0.05)))

	// 0.5 BTC debited, proceeds credited at the executed price
	assert.True(t, exec.Balance("BTC").Equal(decimal.NewFromFloat(0.5)))
	expected := decimal.NewFromFloat(0.5).Mul(res.ExecutedPrice)
	assert.True(t, exec.Balance("USDC").Equal(expected))
}

func TestSimulateExecutor_InsufficientBalance(t *testing.T) {
	exec := NewSimulateExecutor(zap.NewNop())
	exec.SetBalance("BTC", decimal.NewFromFloat(0.1))

	rule := newSellRule(t, 0.5)

	res, err := exec.Execute(context.Background(), *rule, decimal.NewFromInt(100000))
	require.NoError(t, err, "business failures must not surface as errors")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "insufficient")

	// ledger untouched
	assert.True(t, exec.Balance("BTC").Equal(decimal.NewFromFloat(0.1)))
	assert.True(t, exec.Balance("USDC").IsZero())
}

func TestSimulateExecutor_ExecuteTransfer(t *testing.T) {
	exec := NewSimulateExecutor(zap.NewNop())
	exec.SetBalance("USDC", decimal.NewFromInt(100))

	next := time.Now().Add(-time.Minute)
	automation := domain.ScheduledAutomation{
		ID:            "pay-1",
		Active:        true,
		NextExecuteAt: &next,
		Frequency:     domain.FrequencyWeekly,
	}

	res, err := exec.ExecuteTransfer(context.Background(), automation, "USDC", decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, exec.Balance("USDC").Equal(decimal.NewFromInt(75)))

	res, err = exec.ExecuteTransfer(context.Background(), automation, "USDC", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, exec.Balance("USDC").Equal(decimal.NewFromInt(75)))
}
