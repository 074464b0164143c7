package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
	"github.com/vadiminshakov/pricewatch/internal/events"
	"github.com/vadiminshakov/pricewatch/internal/services/pricer"
	"github.com/vadiminshakov/pricewatch/internal/services/stats"
)

// mockExecutor records executed rules and returns a configurable result.
type mockExecutor struct {
	mu     sync.Mutex
	calls  []domain.Rule
	result domain.ExecutionResult
	err    error
}

func (m *mockExecutor) Execute(_ context.Context, rule domain.Rule, price decimal.Decimal) (domain.ExecutionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rule)
	if m.err != nil {
		return domain.ExecutionResult{}, m.err
	}
	res := m.result
	if res.Timestamp == 0 {
		res.Timestamp = time.Now().Unix()
	}
	res.ExecutedPrice = price
	return res, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestEngine(t *testing.T, exec *mockExecutor) (*Engine, *stats.Store, *pricer.StaticPricer) {
	t.Helper()
	statsStore := stats.NewStore(zap.NewNop(), 100)
	source := pricer.NewStaticPricer()
	e, err := New(zap.NewNop(), statsStore, source, exec, nil)
	require.NoError(t, err)
	return e, statsStore, source
}

func successExecutor() *mockExecutor {
	return &mockExecutor{result: domain.ExecutionResult{
		Success:         true,
		TxRef:           "tx-1",
		SlippagePercent: decimal.NewFromFloat(0.5),
	}}
}

func stopLossRule(t *testing.T, amount float64, maxSlippage int64) *domain.Rule {
	t.Helper()
	rule, err := domain.NewRule(domain.RuleKindStopLoss, "BTC", "USDC",
		decimal.NewFromFloat(amount), domain.OperatorLTE,
		decimal.NewFromInt(90000), decimal.NewFromInt(maxSlippage))
	require.NoError(t, err)
	return rule
}

func priceEvent(asset domain.AssetCode, price, prev int64) events.PriceEvent {
	return events.PriceEvent{
		Asset:    asset,
		Price:    decimal.NewFromInt(price),
		Previous: decimal.NewFromInt(prev),
		At:       time.Now(),
	}
}

func TestEngine_AddRule_RegistersAssets(t *testing.T) {
	e, statsStore, _ := newTestEngine(t, successExecutor())

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	assert.True(t, statsStore.Registered("BTC"))
	assert.True(t, statsStore.Registered("USDC"))

	// idempotent re-registration
	require.NoError(t, e.AddRule(rule))
	assert.Equal(t, []domain.AssetCode{"BTC"}, e.SourceAssets())
}

func TestEngine_StopLoss_Executes(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	// 0.1 BTC at 89000 = 8900 notional -> 0.5% tier, under the 1% budget
	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))

	history := e.History(rule.ID)
	require.Len(t, history, 1)
	assert.True(t, history[0].Success)

	stored, ok := e.Rule(rule.ID)
	require.True(t, ok)
	require.NotNil(t, stored.LastExecutedAt)
}

func TestEngine_StopLoss_AboveTargetNoExecution(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), priceEvent("BTC", 95000, 96000))

	assert.Zero(t, exec.callCount())
	assert.Empty(t, e.History(rule.ID))
}

func TestEngine_SlippageExceeded_SilentSkip(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	// 10 BTC at 89000 = 890k notional -> 2% tier, over the 1% budget
	rule := stopLossRule(t, 10, 1)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))

	assert.Zero(t, exec.callCount(), "executor must not be reached")
	assert.Empty(t, e.History(rule.ID), "a slippage skip records nothing")

	stored, ok := e.Rule(rule.ID)
	require.True(t, ok)
	assert.Nil(t, stored.LastExecutedAt)
}

func TestEngine_PriceTarget_OperatorBoundary(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule, err := domain.NewRule(domain.RuleKindPriceTarget, "BTC", "USDC",
		decimal.NewFromInt(1), domain.OperatorGTE,
		decimal.NewFromInt(100), decimal.NewFromInt(5))
	require.NoError(t, err)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), events.PriceEvent{
		Asset: "BTC", Price: decimal.NewFromFloat(99.999), Previous: decimal.NewFromInt(99), At: time.Now(),
	})
	assert.Zero(t, exec.callCount(), "99.999 must not match gte 100")

	e.OnPriceChange(context.Background(), priceEvent("BTC", 100, 99))
	assert.Equal(t, 1, exec.callCount(), "exactly 100 matches gte 100")
}

func TestEngine_PercentageChange_TickToTick(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule, err := domain.NewRule(domain.RuleKindPercentageChange, "BTC", "USDC",
		decimal.NewFromInt(1), domain.OperatorGT,
		decimal.NewFromInt(5), decimal.NewFromInt(5))
	require.NoError(t, err)
	require.NoError(t, e.AddRule(rule))

	// +4% tick: below the 5% condition
	e.OnPriceChange(context.Background(), priceEvent("BTC", 104, 100))
	assert.Zero(t, exec.callCount())

	// -6% tick: absolute change beats the condition
	e.OnPriceChange(context.Background(), priceEvent("BTC", 94, 100))
	assert.Equal(t, 1, exec.callCount())

	// no baseline: never matches
	e.OnPriceChange(context.Background(), events.PriceEvent{
		Asset: "BTC", Price: decimal.NewFromInt(200), At: time.Now(),
	})
	assert.Equal(t, 1, exec.callCount())
}

func TestEngine_DisabledRuleSkipped(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))
	require.NoError(t, e.SetRuleEnabled(rule.ID, false))

	e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))
	assert.Zero(t, exec.callCount())

	require.NoError(t, e.SetRuleEnabled(rule.ID, true))
	e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))
	assert.Equal(t, 1, exec.callCount())
}

func TestEngine_OtherLegEvaluatedFromCache(t *testing.T) {
	exec := successExecutor()
	e, statsStore, _ := newTestEngine(t, exec)

	rule, err := domain.NewRule(domain.RuleKindTakeProfit, "ETH", "USDC",
		decimal.NewFromInt(1), domain.OperatorGTE,
		decimal.NewFromInt(3000), decimal.NewFromInt(5))
	require.NoError(t, err)
	require.NoError(t, e.AddRule(rule))
	statsStore.SetLastPrice("ETH", decimal.NewFromInt(3100))

	// a BTC update still re-evaluates the ETH rule against its cached price
	e.OnPriceChange(context.Background(), priceEvent("BTC", 50000, 49000))
	assert.Equal(t, 1, exec.callCount())
}

func TestEngine_ExecutorError_RecordedAsFailure(t *testing.T) {
	exec := &mockExecutor{err: errors.New("connection reset")}
	e, _, _ := newTestEngine(t, exec)

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))

	history := e.History(rule.ID)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
	assert.Contains(t, history[0].Error, "connection reset")

	stored, _ := e.Rule(rule.ID)
	assert.Nil(t, stored.LastExecutedAt, "failures must not advance lastExecutedAt")
}

func TestEngine_ExecuteRuleManually(t *testing.T) {
	exec := successExecutor()
	e, _, source := newTestEngine(t, exec)

	// condition would NOT match at the current price; manual bypasses it
	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))
	source.SetPrice("BTC", decimal.NewFromInt(95000))

	res, err := e.ExecuteRuleManually(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, e.History(rule.ID), 1)
}

func TestEngine_ExecuteRuleManually_SlippageGate(t *testing.T) {
	exec := successExecutor()
	e, _, source := newTestEngine(t, exec)

	rule := stopLossRule(t, 10, 1) // 950k notional -> 2% tier
	require.NoError(t, e.AddRule(rule))
	source.SetPrice("BTC", decimal.NewFromInt(95000))

	_, err := e.ExecuteRuleManually(context.Background(), rule.ID)
	assert.ErrorIs(t, err, ErrSlippageExceeded)
	assert.Zero(t, exec.callCount())
}

func TestEngine_ExecuteRuleManually_UnknownRule(t *testing.T) {
	e, _, _ := newTestEngine(t, successExecutor())
	_, err := e.ExecuteRuleManually(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestEngine_ExecutionStats(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))
	e.OnPriceChange(context.Background(), priceEvent("BTC", 88000, 89000))

	exec.err = errors.New("boom")
	e.OnPriceChange(context.Background(), priceEvent("BTC", 87000, 88000))

	agg, err := e.ExecutionStats(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.TotalExecutions)
	assert.Equal(t, 2, agg.SuccessfulExecutions)
	assert.Equal(t, 1, agg.FailedExecutions)
	assert.True(t, agg.AverageSlippage.Equal(decimal.NewFromFloat(0.5)))
	require.NotNil(t, agg.LastExecution)
	assert.False(t, agg.LastExecution.Success)
}

func TestEngine_HistoryBounded(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	for i := 0; i < MaxExecutionHistory+50; i++ {
		e.OnPriceChange(context.Background(), priceEvent("BTC", 89000, 91000))
	}

	assert.Len(t, e.History(rule.ID), MaxExecutionHistory)
}

func TestEngine_RemoveRule(t *testing.T) {
	e, _, _ := newTestEngine(t, successExecutor())

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))
	require.NoError(t, e.RemoveRule(rule.ID))

	assert.ErrorIs(t, e.RemoveRule(rule.ID), ErrRuleNotFound)
	_, ok := e.Rule(rule.ID)
	assert.False(t, ok)
}

func TestEngine_FetchFailureEventIgnored(t *testing.T) {
	exec := successExecutor()
	e, _, _ := newTestEngine(t, exec)

	rule := stopLossRule(t, 0.1, 1)
	require.NoError(t, e.AddRule(rule))

	e.OnPriceChange(context.Background(), events.PriceEvent{
		Asset: "BTC", At: time.Now(), Err: errors.New("oracle down"),
	})
	assert.Zero(t, exec.callCount())
}
