package pricer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// StaticPricer serves prices from an in-memory table. Used by the simulate
// platform and in tests; prices can be moved at runtime via SetPrice.
type StaticPricer struct {
	mu     sync.RWMutex
	prices map[domain.AssetCode]decimal.Decimal
}

func NewStaticPricer() *StaticPricer {
	return &StaticPricer{prices: make(map[domain.AssetCode]decimal.Decimal)}
}

// SetPrice sets or moves the price of an asset.
func (p *StaticPricer) SetPrice(asset domain.AssetCode, price decimal.Decimal) {
	p.mu.Lock()
	p.prices[asset] = price
	p.mu.Unlock()
}

func (p *StaticPricer) FetchPrice(_ context.Context, asset domain.AssetCode) (domain.PriceSample, error) {
	p.mu.RLock()
	price, ok := p.prices[asset]
	p.mu.RUnlock()
	if !ok {
		return domain.PriceSample{}, fmt.Errorf("no price configured for %s", asset)
	}
	return domain.NewPriceSample(price, time.Now()), nil
}
