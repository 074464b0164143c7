// Package stats owns bounded per-asset price history and derives statistics
// and validity signals from it.
package stats

import (
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

const (
	// DefaultMaxHistory caps each asset's price history; oldest samples are
	// evicted first.
	DefaultMaxHistory = 1000

	// DefaultOutlierSigma is the z-score above which a price is treated as an
	// outlier.
	DefaultOutlierSigma = 2.0

	// DefaultTrendLookback is the number of trailing samples compared by Trend.
	DefaultTrendLookback = 10

	change24hWindow = 24 * time.Hour
)

var ErrAssetNotRegistered = errors.New("asset is not registered")

// trendThresholdPercent: first-vs-last moves beyond +-1% count as a trend.
var trendThresholdPercent = decimal.NewFromInt(1)

type assetState struct {
	config    domain.AssetConfig
	history   []domain.PriceSample
	lastPrice decimal.Decimal
	hasLast   bool
}

// Store keeps bounded price history per registered asset and computes derived
// statistics on demand. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	maxHistory int
	assets     map[domain.AssetCode]*assetState
	logger     *zap.Logger
}

func NewStore(logger *zap.Logger, maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		maxHistory: maxHistory,
		assets:     make(map[domain.AssetCode]*assetState),
		logger:     logger,
	}
}

// RegisterAsset creates state for the asset. Idempotent: registering an
// already-known asset keeps its history.
func (s *Store) RegisterAsset(cfg domain.AssetConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[cfg.Code]; ok {
		return
	}
	s.assets[cfg.Code] = &assetState{config: cfg}
}

// UnregisterAsset removes the asset together with its cache and history.
func (s *Store) UnregisterAsset(code domain.AssetCode) {
	s.mu.Lock()
	delete(s.assets, code)
	s.mu.Unlock()
}

// Registered reports whether the asset is known to the store.
func (s *Store) Registered(code domain.AssetCode) bool {
	s.mu.RLock()
	_, ok := s.assets[code]
	s.mu.RUnlock()
	return ok
}

// Assets returns the configs of all registered assets.
func (s *Store) Assets() []domain.AssetConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AssetConfig, 0, len(s.assets))
	for _, st := range s.assets {
		out = append(out, st.config)
	}
	return out
}

// SetLastPrice updates the last-known-price cache without touching history.
// The watcher calls it on every successful fetch, including sub-threshold and
// rejected ones, so current-price queries stay fresh.
func (s *Store) SetLastPrice(code domain.AssetCode, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.assets[code]
	if !ok {
		return
	}
	st.lastPrice = price
	st.hasLast = true
}

// LastPrice returns the cached last-known price of the asset.
func (s *Store) LastPrice(code domain.AssetCode) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[code]
	if !ok || !st.hasLast {
		return decimal.Decimal{}, false
	}
	return st.lastPrice, true
}

// RecordSample appends the sample to the asset's history, evicting the oldest
// sample beyond the cap, and refreshes the last-price cache.
func (s *Store) RecordSample(code domain.AssetCode, sample domain.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.assets[code]
	if !ok {
		return errors.Wrapf(ErrAssetNotRegistered, "record sample for %s", code)
	}

	st.history = append(st.history, sample)
	if len(st.history) > s.maxHistory {
		st.history = st.history[len(st.history)-s.maxHistory:]
	}
	st.lastPrice = sample.Price
	st.hasLast = true
	return nil
}

// History returns a copy of the asset's price history.
func (s *Store) History(code domain.AssetCode) []domain.PriceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[code]
	if !ok {
		return nil
	}
	out := make([]domain.PriceSample, len(st.history))
	copy(out, st.history)
	return out
}

// ClearHistory drops the asset's history but keeps the registration and the
// last-price cache.
func (s *Store) ClearHistory(code domain.AssetCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.assets[code]; ok {
		st.history = nil
	}
}

// Stats computes derived statistics from the asset's history. Returns false
// when the history is empty.
func (s *Store) Stats(code domain.AssetCode) (domain.PriceStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[code]
	if !ok || len(st.history) == 0 {
		return domain.PriceStats{}, false
	}

	current := st.history[len(st.history)-1].Price
	min, max := st.history[0].Price, st.history[0].Price
	sum := decimal.Zero
	for _, sample := range st.history {
		if sample.Price.LessThan(min) {
			min = sample.Price
		}
		if sample.Price.GreaterThan(max) {
			max = sample.Price
		}
		sum = sum.Add(sample.Price)
	}
	n := decimal.NewFromInt(int64(len(st.history)))
	avg := sum.Div(n)

	return domain.PriceStats{
		Current:    current,
		Min:        min,
		Max:        max,
		Avg:        avg,
		Volatility: populationStddev(st.history, avg, n),
		Change24h:  change24h(st.history, current, time.Now()),
	}, true
}

// IsOutlier reports whether the price deviates from the historical average by
// more than sigma standard deviations. With zero volatility the z-score is
// undefined; such prices are treated as not-an-outlier.
func (s *Store) IsOutlier(code domain.AssetCode, price decimal.Decimal, sigma float64) bool {
	st, ok := s.Stats(code)
	if !ok {
		return false
	}
	if st.Volatility.IsZero() {
		return false
	}
	z := price.Sub(st.Avg).Abs().Div(st.Volatility)
	return z.GreaterThan(decimal.NewFromFloat(sigma))
}

// ValidatePrice gates samples before recording: non-positive prices and
// statistical outliers are rejected.
func (s *Store) ValidatePrice(code domain.AssetCode, sample domain.PriceSample) bool {
	if sample.Price.LessThanOrEqual(decimal.Zero) {
		s.logger.Warn("rejecting non-positive price sample",
			zap.String("asset", string(code)),
			zap.String("price", sample.Price.String()))
		return false
	}
	if s.IsOutlier(code, sample.Price, DefaultOutlierSigma) {
		s.logger.Warn("rejecting outlier price sample",
			zap.String("asset", string(code)),
			zap.String("price", sample.Price.String()))
		return false
	}
	return true
}

// Trend compares the first and last samples over the trailing lookback window.
// With fewer samples than the window it returns TrendStable rather than an
// error: insufficient data is not a failure.
func (s *Store) Trend(code domain.AssetCode, lookback int) domain.Trend {
	if lookback <= 0 {
		lookback = DefaultTrendLookback
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.assets[code]
	if !ok || len(st.history) < lookback {
		return domain.TrendStable
	}

	window := st.history[len(st.history)-lookback:]
	first, last := window[0].Price, window[len(window)-1].Price
	if first.IsZero() {
		return domain.TrendStable
	}

	change := last.Sub(first).Div(first).Mul(decimal.NewFromInt(100))
	switch {
	case change.GreaterThan(trendThresholdPercent):
		return domain.TrendUp
	case change.LessThan(trendThresholdPercent.Neg()):
		return domain.TrendDown
	default:
		return domain.TrendStable
	}
}

func populationStddev(history []domain.PriceSample, avg, n decimal.Decimal) decimal.Decimal {
	if len(history) < 2 {
		return decimal.Zero
	}
	sumSquares := decimal.Zero
	for _, sample := range history {
		diff := sample.Price.Sub(avg)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(n)
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// change24h returns the percent change between the earliest sample inside the
// 24h window and the current price, 0 when no sample falls into the window.
func change24h(history []domain.PriceSample, current decimal.Decimal, now time.Time) decimal.Decimal {
	cutoff := now.Add(-change24hWindow).Unix()
	for _, sample := range history {
		if sample.Timestamp >= cutoff {
			if sample.Price.IsZero() {
				return decimal.Zero
			}
			return current.Sub(sample.Price).Div(sample.Price).Mul(decimal.NewFromInt(100))
		}
	}
	return decimal.Zero
}
