package domain

import (
	"fmt"
	"strings"
)

// MarketSymbol is a base/quote pair used to render venue-native instrument names.
// The engine itself never canonicalizes instruments across venues.
type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote must not be empty")
	}
	base = strings.ToLower(base)
	quote = strings.ToLower(quote)
	if base == quote {
		return nil, fmt.Errorf("base and quote must be different")
	}
	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString parses "base_quote".
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.Split(s, "_")

	if len(split) != 2 {
		return nil, fmt.Errorf("invalid symbol string %q", s)
	}

	return NewMarketSymbol(split[0], split[1])
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

// Upper renders the symbol the way most exchanges expect it, e.g. BTC-USDT.
func (ms *MarketSymbol) Upper(separator string) string {
	return strings.ToUpper(ms.Join(separator))
}

func (ms *MarketSymbol) String() string {
	return ms.Join("_")
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return ms.BaseAsset == other.BaseAsset && ms.QuoteAsset == other.QuoteAsset
}
