package pricer

import (
	"context"
	"fmt"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// BybitPricer fetches spot prices from Bybit.
type BybitPricer struct {
	client *bybit.Client
}

func NewBybitPricer(client *bybit.Client) *BybitPricer {
	return &BybitPricer{client: client}
}

func (p *BybitPricer) FetchPrice(_ context.Context, asset domain.AssetCode) (domain.PriceSample, error) {
	symbol := bybit.SymbolV5(asset.Symbol(quoteCurrency))

	result, err := p.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.PriceSample{}, err
	}

	if len(result.Result.Spot.List) == 0 {
		return domain.PriceSample{}, fmt.Errorf("bybit API returned empty prices for %s", asset)
	}

	price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
	if err != nil {
		return domain.PriceSample{}, err
	}

	return domain.NewPriceSample(price, time.Now()), nil
}
