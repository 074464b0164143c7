package pricer

import (
	"context"
	"fmt"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/pricewatch/internal/domain"
)

// BinancePricer fetches spot prices from Binance.
type BinancePricer struct {
	client *binance.Client
}

func NewBinancePricer(client *binance.Client) *BinancePricer {
	return &BinancePricer{client: client}
}

func (p *BinancePricer) FetchPrice(ctx context.Context, asset domain.AssetCode) (domain.PriceSample, error) {
	prices, err := p.client.NewListPricesService().Symbol(asset.Symbol(quoteCurrency)).Do(ctx)
	if err != nil {
		return domain.PriceSample{}, err
	}
	if len(prices) == 0 {
		return domain.PriceSample{}, fmt.Errorf("binance API returned empty prices for %s", asset)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return domain.PriceSample{}, err
	}

	return domain.NewPriceSample(price, time.Now()), nil
}
