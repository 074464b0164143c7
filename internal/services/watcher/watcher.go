// Package watcher polls price sources per asset and publishes significant
// price changes to subscribers.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
	"github.com/vadiminshakov/pricewatch/internal/events"
	"github.com/vadiminshakov/pricewatch/internal/services/pricer"
	"github.com/vadiminshakov/pricewatch/internal/services/stats"
	"github.com/vadiminshakov/pricewatch/pkg/retrier"
)

const (
	// DefaultPollInterval between fetches for a single asset.
	DefaultPollInterval = 30 * time.Second

	// DefaultChangeThreshold is the relative price delta below which no event
	// fires (0.01%), preventing event storms from sub-noise fluctuation.
	DefaultChangeThreshold = 0.0001
)

var ErrAlreadyMonitoring = errors.New("watcher is already monitoring")

// Watcher runs one polling loop per monitored asset. Each loop fetches the
// price, validates and records it, and publishes an event when the change
// against the cached price exceeds the noise threshold. A slow fetch for one
// asset never delays the others.
type Watcher struct {
	source    pricer.PriceSource
	stats     *stats.Store
	events    *events.PriceBroadcaster
	logger    *zap.Logger
	interval  time.Duration
	threshold decimal.Decimal
	retr      *retrier.Retrier

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(logger *zap.Logger, source pricer.PriceSource, statsStore *stats.Store,
	broadcaster *events.PriceBroadcaster, interval time.Duration, changeThreshold decimal.Decimal) *Watcher {

	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if changeThreshold.LessThanOrEqual(decimal.Zero) {
		changeThreshold = decimal.NewFromFloat(DefaultChangeThreshold)
	}

	return &Watcher{
		source:    source,
		stats:     statsStore,
		events:    broadcaster,
		logger:    logger,
		interval:  interval,
		threshold: changeThreshold,
		retr:      retrier.New(),
	}
}

// StartMonitoring begins polling every asset in the set: an immediate first
// fetch, then a fixed-interval timer per asset.
func (w *Watcher) StartMonitoring(ctx context.Context, assets []domain.AssetCode) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyMonitoring
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	for _, asset := range assets {
		w.wg.Add(1)
		go w.loop(ctx, asset)
	}

	w.logger.Info("price monitoring started",
		zap.Int("assets", len(assets)),
		zap.Duration("interval", w.interval))
	return nil
}

// StopMonitoring cancels all polling loops and waits for them to exit.
// Idempotent; in-flight fetch results are discarded.
func (w *Watcher) StopMonitoring() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("price monitoring stopped")
}

func (w *Watcher) loop(ctx context.Context, asset domain.AssetCode) {
	defer w.wg.Done()

	w.poll(ctx, asset)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx, asset)
		}
	}
}

func (w *Watcher) poll(ctx context.Context, asset domain.AssetCode) {
	sample, err := retrier.DoWithData(w.retr, ctx, func(ctx context.Context) (domain.PriceSample, error) {
		return w.source.FetchPrice(ctx, asset)
	})
	if ctx.Err() != nil {
		// stopped while the fetch was in flight; discard the result
		return
	}
	if err != nil {
		w.logger.Error("price fetch failed, retrying on next tick",
			zap.String("asset", string(asset)),
			zap.Error(err))
		w.events.Publish(events.PriceEvent{Asset: asset, At: time.Now(), Err: err})
		return
	}

	prev, hadPrev := w.stats.LastPrice(asset)

	if !w.stats.ValidatePrice(asset, sample) {
		// rejected samples never enter history and never reach the rule
		// engine; only the last-price cache tracks the observation so
		// current-price queries stay fresh
		w.stats.SetLastPrice(asset, sample.Price)
		return
	}

	if err := w.stats.RecordSample(asset, sample); err != nil {
		w.logger.Error("failed to record price sample",
			zap.String("asset", string(asset)),
			zap.Error(err))
	}

	if hadPrev && !w.significant(sample.Price, prev) {
		w.logger.Debug("price change below threshold, no event",
			zap.String("asset", string(asset)),
			zap.String("price", sample.Price.String()))
		return
	}

	w.events.Publish(events.PriceEvent{
		Asset:    asset,
		Price:    sample.Price,
		Previous: prev,
		At:       sample.Time(),
	})
}

func (w *Watcher) significant(price, prev decimal.Decimal) bool {
	if prev.IsZero() {
		return !price.IsZero()
	}
	return price.Sub(prev).Abs().Div(prev).GreaterThan(w.threshold)
}
