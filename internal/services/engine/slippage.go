package engine

import "github.com/shopspring/decimal"

// Slippage is estimated from the trade notional with a tiered heuristic:
// bigger trades eat deeper into the book.
var (
	tierSmall  = decimal.NewFromInt(1_000)
	tierMedium = decimal.NewFromInt(10_000)
	tierLarge  = decimal.NewFromInt(100_000)

	slippageSmall  = decimal.NewFromFloat(0.1)
	slippageMedium = decimal.NewFromFloat(0.5)
	slippageLarge  = decimal.NewFromFloat(1.0)
	slippageHuge   = decimal.NewFromFloat(2.0)
)

// EstimateSlippage returns the estimated slippage percent for a trade of the
// given notional value (amount * price, in USD).
func EstimateSlippage(notional decimal.Decimal) decimal.Decimal {
	switch {
	case notional.LessThan(tierSmall):
		return slippageSmall
	case notional.LessThan(tierMedium):
		return slippageMedium
	case notional.LessThan(tierLarge):
		return slippageLarge
	default:
		return slippageHuge
	}
}
