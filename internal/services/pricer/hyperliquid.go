package pricer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// HyperliquidPricer fetches mid prices from the Hyperliquid public Info API.
type HyperliquidPricer struct {
	info *hyperliquid.Info
}

func NewHyperliquidPricer(info *hyperliquid.Info) *HyperliquidPricer {
	return &HyperliquidPricer{info: info}
}

func (p *HyperliquidPricer) FetchPrice(ctx context.Context, asset domain.AssetCode) (domain.PriceSample, error) {
	if p.info == nil {
		return domain.PriceSample{}, fmt.Errorf("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return domain.PriceSample{}, err
	}

	// Hyperliquid mids are keyed by base coin (e.g., "BTC").
	mid, ok := mids[string(asset)]
	if !ok || mid == "" {
		return domain.PriceSample{}, fmt.Errorf("hyperliquid API returned empty mid price for %s", asset)
	}

	price, err := decimal.NewFromString(mid)
	if err != nil {
		return domain.PriceSample{}, err
	}

	return domain.NewPriceSample(price, time.Now()), nil
}
