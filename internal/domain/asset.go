package domain

import "fmt"

// AssetCode identifies a monitored asset, e.g. "BTC".
type AssetCode string

// AssetKind distinguishes the chain-native asset from issued ones.
type AssetKind string

const (
	AssetKindNative AssetKind = "native"
	AssetKindOther  AssetKind = "other"
)

// AssetConfig is created when an asset is registered and is read-only afterwards.
type AssetConfig struct {
	Code    AssetCode
	Kind    AssetKind
	Enabled bool
}

// Symbol returns the market symbol for the asset against the given quote currency.
func (c AssetCode) Symbol(quote string) string {
	return fmt.Sprintf("%s%s", string(c), quote)
}
