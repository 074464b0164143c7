// Package scheduler detects time-scheduled automations whose deadline has
// elapsed. It never executes anything itself: due automations are batched and
// handed to a caller-supplied callback.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// DefaultInterval between due-task sweeps.
const DefaultInterval = 25 * time.Second

var ErrAlreadyStarted = errors.New("scheduler is already started")

// GetAutomationsFunc returns the current set of scheduled automations.
type GetAutomationsFunc func() []domain.ScheduledAutomation

// OnDueFunc receives the batch of automations due at sweep time.
type OnDueFunc func(ctx context.Context, due []domain.ScheduledAutomation)

// Scheduler polls the automation set on a fixed interval and hands due
// entries to the callback. Rescheduling is the callback side's concern.
type Scheduler struct {
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(logger *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{interval: interval, logger: logger}
}

// Start evaluates due automations immediately, then re-evaluates on the fixed
// interval until Stop is called or the context is done.
func (s *Scheduler) Start(ctx context.Context, get GetAutomationsFunc, onDue OnDueFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop(ctx, get, onDue)

	s.logger.Info("due-task scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the sweep loop. Idempotent; safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("due-task scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, get GetAutomationsFunc, onDue OnDueFunc) {
	defer s.wg.Done()

	s.sweep(ctx, get, onDue)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, get, onDue)
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context, get GetAutomationsFunc, onDue OnDueFunc) {
	now := time.Now()

	var due []domain.ScheduledAutomation
	for _, automation := range get() {
		if automation.Due(now) {
			due = append(due, automation)
		}
	}
	if len(due) == 0 {
		return
	}

	s.logger.Info("scheduled automations due", zap.Int("count", len(due)))
	onDue(ctx, due)
}
