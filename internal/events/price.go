package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// PriceEvent is published by the price watcher. A successful fetch carries the
// new price and the previously cached one; a failed fetch carries Err and keeps
// the price fields zero.
type PriceEvent struct {
	Asset    domain.AssetCode
	Price    decimal.Decimal
	Previous decimal.Decimal
	At       time.Time
	Err      error
}

// Failure reports whether the event represents a fetch failure.
func (e PriceEvent) Failure() bool {
	return e.Err != nil
}

// PriceBroadcaster fans out price events to all subscribers via buffered
// channels. It keeps the API intentionally small so call sites can stay
// straightforward.
type PriceBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan PriceEvent]struct{}
	buffer int
}

// NewPriceBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewPriceBroadcaster(buffer int) *PriceBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &PriceBroadcaster{
		subs:   make(map[chan PriceEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping if a reader is slow.
func (b *PriceBroadcaster) Publish(e PriceEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *PriceBroadcaster) Subscribe() chan PriceEvent {
	ch := make(chan PriceEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *PriceBroadcaster) Unsubscribe(ch chan PriceEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}
