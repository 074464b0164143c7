// Package coordinator owns the aggregate lifecycle: it starts the price
// watcher and the due-task scheduler together and routes their events to the
// rule engine and the payment dispatcher.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
	"github.com/vadiminshakov/pricewatch/internal/events"
	"github.com/vadiminshakov/pricewatch/internal/services/engine"
	"github.com/vadiminshakov/pricewatch/internal/services/scheduler"
	"github.com/vadiminshakov/pricewatch/internal/services/watcher"
	"github.com/vadiminshakov/pricewatch/internal/storage/schedules"
)

var ErrAlreadyStarted = errors.New("coordinator is already started")

// DuePaymentFunc executes one due automation. A failed result or an error
// leaves the automation due, so the next sweep retries it.
type DuePaymentFunc func(ctx context.Context, automation domain.ScheduledAutomation) (domain.ExecutionResult, error)

// Coordinator wires the watcher, scheduler and engine into one unit with a
// shared start/stop lifecycle. Price events flow through a single consumer
// goroutine into the engine, which keeps rule evaluation single-writer.
type Coordinator struct {
	watcher     *watcher.Watcher
	scheduler   *scheduler.Scheduler
	engine      *engine.Engine
	store       schedules.Store
	broadcaster *events.PriceBroadcaster
	onDue       DuePaymentFunc
	assets      []domain.AssetCode
	logger      *zap.Logger

	mu      sync.Mutex
	sub     chan events.PriceEvent
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New builds a coordinator. The assets slice is the configured watchlist,
// monitored in addition to every asset referenced by the rule table.
func New(logger *zap.Logger, w *watcher.Watcher, s *scheduler.Scheduler, e *engine.Engine,
	store schedules.Store, broadcaster *events.PriceBroadcaster, onDue DuePaymentFunc,
	assets []domain.AssetCode) *Coordinator {

	return &Coordinator{
		watcher:     w,
		scheduler:   s,
		engine:      e,
		store:       store,
		broadcaster: broadcaster,
		onDue:       onDue,
		assets:      assets,
		logger:      logger,
	}
}

// Start subscribes to price events, begins monitoring the watchlist plus
// every asset referenced by the rule table and starts the due-task scheduler.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.sub = c.broadcaster.Subscribe()

	c.wg.Add(1)
	go c.consume(ctx)

	if err := c.watcher.StartMonitoring(ctx, c.monitoredAssets()); err != nil {
		c.teardownLocked()
		return errors.Wrap(err, "start price monitoring")
	}

	if err := c.scheduler.Start(ctx, c.store.Automations, c.handleDue); err != nil {
		c.watcher.StopMonitoring()
		c.teardownLocked()
		return errors.Wrap(err, "start due-task scheduler")
	}

	c.running = true
	c.logger.Info("coordinator started")
	return nil
}

// Stop shuts the scheduler and all price listeners down. Idempotent and safe
// to call even if Start was never called.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.mu.Unlock()

	c.cancel()
	c.scheduler.Stop()
	c.watcher.StopMonitoring()

	c.broadcaster.Unsubscribe(c.sub)
	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

// consume is the single evaluation worker: it serializes all price events
// into the engine, preserving per-asset fetch order.
func (c *Coordinator) consume(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.sub:
			if !ok {
				return
			}
			c.engine.OnPriceChange(ctx, ev)
		}
	}
}

// handleDue dispatches each due automation and advances its deadline after a
// successful execution. One-off automations are deactivated.
func (c *Coordinator) handleDue(ctx context.Context, due []domain.ScheduledAutomation) {
	for _, automation := range due {
		res, err := c.onDue(ctx, automation)
		if err != nil {
			c.logger.Error("due automation dispatch failed",
				zap.String("automation", automation.ID),
				zap.Error(err))
			continue
		}
		if !res.Success {
			c.logger.Warn("due automation execution failed",
				zap.String("automation", automation.ID),
				zap.String("error", res.Error))
			continue
		}

		// advance from the stored deadline, not from execution time, so a
		// late sweep never shifts the cadence; a badly overdue automation
		// catches up over the following sweeps
		next, recurring := automation.Frequency.Next(*automation.NextExecuteAt)
		if !recurring {
			next = time.Time{}
		}
		if err := c.store.Advance(automation.ID, next); err != nil {
			c.logger.Error("failed to advance automation schedule",
				zap.String("automation", automation.ID),
				zap.Error(err))
		}
	}
}

// monitoredAssets is the union of the configured watchlist and the assets
// referenced by rules.
func (c *Coordinator) monitoredAssets() []domain.AssetCode {
	seen := make(map[domain.AssetCode]struct{}, len(c.assets))
	out := make([]domain.AssetCode, 0, len(c.assets))
	for _, asset := range c.assets {
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}
		out = append(out, asset)
	}
	for _, asset := range c.engine.SourceAssets() {
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}
		out = append(out, asset)
	}
	return out
}

func (c *Coordinator) teardownLocked() {
	c.cancel()
	c.broadcaster.Unsubscribe(c.sub)
	c.wg.Wait()
}
