package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is a single observed price point. Immutable once recorded.
type PriceSample struct {
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"ts"`
}

// NewPriceSample builds a sample stamped with the given time.
func NewPriceSample(price decimal.Decimal, at time.Time) PriceSample {
	return PriceSample{Price: price, Timestamp: at.Unix()}
}

// Time returns the sample timestamp as time.Time.
func (s PriceSample) Time() time.Time {
	return time.Unix(s.Timestamp, 0)
}

// PriceStats is derived from an asset's price history on demand, never stored.
type PriceStats struct {
	Current    decimal.Decimal
	Min        decimal.Decimal
	Max        decimal.Decimal
	Avg        decimal.Decimal
	Volatility decimal.Decimal
	Change24h  decimal.Decimal
}

// Trend qualitative direction of price action over a lookback window.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)
