package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// simulatedSlippagePercent is the fill drift applied to every simulated trade.
var simulatedSlippagePercent = decimal.NewFromFloat(0.05)

// SimulateExecutor fills rule actions against an in-memory balance ledger:
// the source amount is debited and the target asset is credited with the USD
// proceeds at the executed price. Lets the whole engine run without touching
// an exchange or a chain.
type SimulateExecutor struct {
	mu       sync.Mutex
	balances map[domain.AssetCode]decimal.Decimal
	logger   *zap.Logger
}

func NewSimulateExecutor(logger *zap.Logger) *SimulateExecutor {
	return &SimulateExecutor{
		balances: make(map[domain.AssetCode]decimal.Decimal),
		logger:   logger,
	}
}

// SetBalance seeds the ledger.
func (s *SimulateExecutor) SetBalance(asset domain.AssetCode, amount decimal.Decimal) {
	s.mu.Lock()
	s.balances[asset] = amount
	s.mu.Unlock()
}

// Balance returns the current ledger balance of the asset.
func (s *SimulateExecutor) Balance(asset domain.AssetCode) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[asset]
}

func (s *SimulateExecutor) Execute(ctx context.Context, rule domain.Rule, price decimal.Decimal) (domain.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExecutionResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()

	balance := s.balances[rule.SourceAsset]
	if balance.LessThan(rule.Amount) {
		// expected business failure, reported through the result
		return domain.ExecutionResult{
			Success: false,
			Error: fmt.Sprintf("insufficient %s balance: have %s, need %s",
				rule.SourceAsset, balance.String(), rule.Amount.String()),
			Timestamp: now,
		}, nil
	}

	// a sell fills slightly below the observed price
	executedPrice := price.Mul(decimal.NewFromInt(1).Sub(simulatedSlippagePercent.Div(decimal.NewFromInt(100))))

	s.balances[rule.SourceAsset] = balance.Sub(rule.Amount)
	if rule.TargetAsset != "" {
		proceeds := rule.Amount.Mul(executedPrice)
		s.balances[rule.TargetAsset] = s.balances[rule.TargetAsset].Add(proceeds)
	}

	txRef := fmt.Sprintf("sim-%s", uuid.NewString())
	s.logger.Info("simulated execution",
		zap.String("rule", rule.ID),
		zap.String("asset", string(rule.SourceAsset)),
		zap.String("amount", rule.Amount.String()),
		zap.String("executed_price", executedPrice.String()),
		zap.String("tx", txRef))

	return domain.ExecutionResult{
		Success:         true,
		TxRef:           txRef,
		ExecutedPrice:   executedPrice,
		SlippagePercent: simulatedSlippagePercent,
		Timestamp:       now,
	}, nil
}

// ExecuteTransfer fills a due scheduled payment by debiting the configured
// payment asset. Used when the scheduler hands over due automations.
func (s *SimulateExecutor) ExecuteTransfer(ctx context.Context, automation domain.ScheduledAutomation,
	asset domain.AssetCode, amount decimal.Decimal) (domain.ExecutionResult, error) {

	if err := ctx.Err(); err != nil {
		return domain.ExecutionResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()

	balance := s.balances[asset]
	if balance.LessThan(amount) {
		return domain.ExecutionResult{
			Success: false,
			Error: fmt.Sprintf("insufficient %s balance for scheduled payment %s",
				asset, automation.ID),
			Timestamp: now,
		}, nil
	}

	s.balances[asset] = balance.Sub(amount)

	txRef := fmt.Sprintf("sim-%s", uuid.NewString())
	s.logger.Info("simulated scheduled payment",
		zap.String("automation", automation.ID),
		zap.String("asset", string(asset)),
		zap.String("amount", amount.String()),
		zap.String("tx", txRef))

	return domain.ExecutionResult{Success: true, TxRef: txRef, Timestamp: now}, nil
}
