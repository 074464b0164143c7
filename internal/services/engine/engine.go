// Package engine holds the automation rule table, evaluates rule conditions on
// price changes and dispatches matched rules to an executor behind a slippage
// gate.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
	"github.com/vadiminshakov/pricewatch/internal/events"
	"github.com/vadiminshakov/pricewatch/internal/services/executor"
	"github.com/vadiminshakov/pricewatch/internal/services/pricer"
	"github.com/vadiminshakov/pricewatch/internal/services/stats"
)

// MaxExecutionHistory caps the per-rule execution history; oldest results are
// evicted first.
const MaxExecutionHistory = 100

var (
	ErrRuleNotFound     = errors.New("rule not found")
	ErrSlippageExceeded = errors.New("estimated slippage exceeds rule budget")
)

// ExecutionJournal persists execution results so the history survives
// restarts.
type ExecutionJournal interface {
	Append(ruleID string, res domain.ExecutionResult) error
	Replay() (map[string][]domain.ExecutionResult, error)
}

var percentMultiplier = decimal.NewFromInt(100)

// Engine owns the rule table. Rule mutations are serialized against condition
// evaluation by the table mutex; executor dispatch happens outside the lock so
// evaluation never blocks the pollers.
type Engine struct {
	mu      sync.RWMutex
	rules   map[string]*domain.Rule
	history map[string][]domain.ExecutionResult

	stats    *stats.Store
	source   pricer.PriceSource
	executor executor.Executor
	journal  ExecutionJournal
	logger   *zap.Logger
}

// New creates the engine. journal may be nil; when given, previously journaled
// execution history is replayed into memory.
func New(logger *zap.Logger, statsStore *stats.Store, source pricer.PriceSource,
	exec executor.Executor, journal ExecutionJournal) (*Engine, error) {

	history := make(map[string][]domain.ExecutionResult)
	if journal != nil {
		replayed, err := journal.Replay()
		if err != nil {
			return nil, errors.Wrap(err, "replay execution journal")
		}
		history = replayed
	}

	return &Engine{
		rules:    make(map[string]*domain.Rule),
		history:  history,
		stats:    statsStore,
		source:   source,
		executor: exec,
		journal:  journal,
		logger:   logger,
	}, nil
}

// AddRule adds the rule to the table and registers its source and target
// assets with the statistics store (registration is idempotent).
func (e *Engine) AddRule(rule *domain.Rule) error {
	if rule == nil || rule.ID == "" {
		return errors.New("rule must have an ID")
	}

	e.stats.RegisterAsset(domain.AssetConfig{Code: rule.SourceAsset, Kind: domain.AssetKindOther, Enabled: true})
	if rule.TargetAsset != "" {
		e.stats.RegisterAsset(domain.AssetConfig{Code: rule.TargetAsset, Kind: domain.AssetKindOther, Enabled: true})
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	e.logger.Info("rule added",
		zap.String("rule", rule.ID),
		zap.String("kind", string(rule.Kind)),
		zap.String("asset", string(rule.SourceAsset)))
	return nil
}

// RemoveRule deletes the rule and its in-memory execution history.
func (e *Engine) RemoveRule(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[id]; !ok {
		return errors.Wrap(ErrRuleNotFound, id)
	}
	delete(e.rules, id)
	delete(e.history, id)
	return nil
}

// SetRuleEnabled flips the rule's enabled flag.
func (e *Engine) SetRuleEnabled(id string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[id]
	if !ok {
		return errors.Wrap(ErrRuleNotFound, id)
	}
	rule.Enabled = enabled
	return nil
}

// Rule returns a copy of the rule.
func (e *Engine) Rule(id string) (domain.Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	if !ok {
		return domain.Rule{}, false
	}
	return *rule, true
}

// Rules returns copies of all rules in the table.
func (e *Engine) Rules() []domain.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		out = append(out, *rule)
	}
	return out
}

// SourceAssets returns the distinct source assets referenced by the rule table.
func (e *Engine) SourceAssets() []domain.AssetCode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen := make(map[domain.AssetCode]struct{}, len(e.rules))
	out := make([]domain.AssetCode, 0, len(e.rules))
	for _, rule := range e.rules {
		if _, ok := seen[rule.SourceAsset]; ok {
			continue
		}
		seen[rule.SourceAsset] = struct{}{}
		out = append(out, rule.SourceAsset)
	}
	return out
}

type matchedRule struct {
	rule  domain.Rule
	price decimal.Decimal
}

// OnPriceChange evaluates the rule table against the update. Rules on the
// changed asset are evaluated against the event's price and previous cached
// price; rules on other assets are re-evaluated against their latest cached
// prices, because a rule may depend on the other leg of a pair. Fetch-failure
// events are ignored here: the next poll tick retries on its own.
func (e *Engine) OnPriceChange(ctx context.Context, ev events.PriceEvent) {
	if ev.Failure() {
		return
	}

	e.mu.RLock()
	matched := make([]matchedRule, 0)
	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}

		var price, prev decimal.Decimal
		if rule.SourceAsset == ev.Asset {
			price, prev = ev.Price, ev.Previous
		} else {
			// tick-to-tick conditions need a fresh delta for their own asset
			if rule.Kind == domain.RuleKindPercentageChange {
				continue
			}
			cached, ok := e.stats.LastPrice(rule.SourceAsset)
			if !ok {
				continue
			}
			price, prev = cached, cached
		}

		if conditionMet(rule, price, prev) {
			matched = append(matched, matchedRule{rule: *rule, price: price})
		}
	}
	e.mu.RUnlock()

	for _, m := range matched {
		e.dispatch(ctx, m.rule, m.price)
	}
}

// ExecuteRuleManually bypasses the condition check but still fetches a fresh
// price and still enforces the slippage gate.
func (e *Engine) ExecuteRuleManually(ctx context.Context, id string) (domain.ExecutionResult, error) {
	rule, ok := e.Rule(id)
	if !ok {
		return domain.ExecutionResult{}, errors.Wrap(ErrRuleNotFound, id)
	}

	sample, err := e.source.FetchPrice(ctx, rule.SourceAsset)
	if err != nil {
		return domain.ExecutionResult{}, errors.Wrapf(err, "fetch price for %s", rule.SourceAsset)
	}

	estimated := EstimateSlippage(rule.Amount.Mul(sample.Price))
	if estimated.GreaterThan(rule.MaxSlippagePercent) {
		return domain.ExecutionResult{}, errors.Wrapf(ErrSlippageExceeded,
			"estimated %s%%, budget %s%%", estimated.String(), rule.MaxSlippagePercent.String())
	}

	return e.execute(ctx, rule, sample.Price), nil
}

// ExecutionStats aggregates the rule's execution history on demand.
func (e *Engine) ExecutionStats(id string) (domain.ExecutionStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.rules[id]; !ok {
		return domain.ExecutionStats{}, errors.Wrap(ErrRuleNotFound, id)
	}

	history := e.history[id]
	agg := domain.ExecutionStats{TotalExecutions: len(history)}

	slippageSum := decimal.Zero
	slippageCount := 0
	for i := range history {
		res := history[i]
		if res.Success {
			agg.SuccessfulExecutions++
			slippageSum = slippageSum.Add(res.SlippagePercent)
			slippageCount++
		} else {
			agg.FailedExecutions++
		}
	}
	if slippageCount > 0 {
		agg.AverageSlippage = slippageSum.Div(decimal.NewFromInt(int64(slippageCount)))
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		agg.LastExecution = &last
	}
	return agg, nil
}

// History returns a copy of the rule's bounded execution history.
func (e *Engine) History(id string) []domain.ExecutionResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	history := e.history[id]
	out := make([]domain.ExecutionResult, len(history))
	copy(out, history)
	return out
}

func conditionMet(rule *domain.Rule, price, prev decimal.Decimal) bool {
	switch rule.Kind {
	case domain.RuleKindPriceTarget:
		return rule.Operator.Compare(price, rule.Value)
	case domain.RuleKindPercentageChange:
		if prev.IsZero() {
			return false
		}
		change := price.Sub(prev).Div(prev).Abs().Mul(percentMultiplier)
		return rule.Operator.Compare(change, rule.Value)
	case domain.RuleKindStopLoss:
		return price.LessThanOrEqual(rule.Value)
	case domain.RuleKindTakeProfit:
		return price.GreaterThanOrEqual(rule.Value)
	default:
		return false
	}
}

// dispatch runs the slippage gate and executes the rule. A slippage skip is an
// expected outcome, not an error: nothing is recorded and the rule waits for
// the next trigger.
func (e *Engine) dispatch(ctx context.Context, rule domain.Rule, price decimal.Decimal) {
	estimated := EstimateSlippage(rule.Amount.Mul(price))
	if estimated.GreaterThan(rule.MaxSlippagePercent) {
		e.logger.Debug("slippage above budget, skipping execution",
			zap.String("rule", rule.ID),
			zap.String("estimated", estimated.String()),
			zap.String("budget", rule.MaxSlippagePercent.String()))
		return
	}

	e.execute(ctx, rule, price)
}

func (e *Engine) execute(ctx context.Context, rule domain.Rule, price decimal.Decimal) domain.ExecutionResult {
	res, err := e.executor.Execute(ctx, rule, price)
	if err != nil {
		// unexpected executor fault: record as a failed execution, never
		// propagate up to the evaluation loop
		e.logger.Error("executor failed",
			zap.String("rule", rule.ID),
			zap.Error(err))
		res = domain.ExecutionResult{
			Success:   false,
			Error:     err.Error(),
			Timestamp: time.Now().Unix(),
		}
	}

	e.record(rule.ID, res)

	if res.Success {
		e.logger.Info("rule executed",
			zap.String("rule", rule.ID),
			zap.String("kind", string(rule.Kind)),
			zap.String("price", price.String()),
			zap.String("executed_price", res.ExecutedPrice.String()),
			zap.String("tx", res.TxRef))
	} else {
		e.logger.Warn("rule execution failed",
			zap.String("rule", rule.ID),
			zap.String("error", res.Error))
	}

	return res
}

func (e *Engine) record(ruleID string, res domain.ExecutionResult) {
	e.mu.Lock()
	history := append(e.history[ruleID], res)
	if len(history) > MaxExecutionHistory {
		history = history[len(history)-MaxExecutionHistory:]
	}
	e.history[ruleID] = history

	if rule, ok := e.rules[ruleID]; ok && res.Success {
		executedAt := res.Time()
		rule.LastExecutedAt = &executedAt
	}
	e.mu.Unlock()

	if e.journal != nil {
		if err := e.journal.Append(ruleID, res); err != nil {
			e.logger.Error("failed to journal execution result",
				zap.String("rule", ruleID),
				zap.Error(err))
		}
	}
}
