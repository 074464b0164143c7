// Package pricer provides price sources for monitored assets. All prices are
// quoted in USD (via the USDT market on exchange-backed sources).
package pricer

import (
	"context"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// quoteCurrency is the market used as the USD proxy on exchange-backed sources.
const quoteCurrency = "USDT"

// PriceSource fetches the current price of a single asset. Implementations
// must be safe for concurrent calls for different assets.
type PriceSource interface {
	FetchPrice(ctx context.Context, asset domain.AssetCode) (domain.PriceSample, error)
}
