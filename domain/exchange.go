package domain

import (
	"fmt"
	"strings"
)

// Exchange identifies the venue an event originated from.
type Exchange string

const (
	ExchangeBinance   Exchange = "binance"
	ExchangeCoinbase  Exchange = "coinbase"
	ExchangeKraken    Exchange = "kraken"
	ExchangeKucoin    Exchange = "kucoin"
	ExchangeCoinGecko Exchange = "coingecko"
	ExchangeMock      Exchange = "mock"
)

var knownExchanges = []Exchange{
	ExchangeBinance,
	ExchangeCoinbase,
	ExchangeKraken,
	ExchangeKucoin,
	ExchangeCoinGecko,
	ExchangeMock,
}

func Exchanges() []Exchange {
	out := make([]Exchange, len(knownExchanges))
	copy(out, knownExchanges)
	return out
}

func ParseExchange(s string) (Exchange, error) {
	e := Exchange(strings.ToLower(strings.TrimSpace(s)))
	if !e.IsKnown() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVenue, s)
	}
	return e, nil
}

func (e Exchange) IsKnown() bool {
	for _, known := range knownExchanges {
		if e == known {
			return true
		}
	}
	return false
}

func (e Exchange) String() string {
	return string(e)
}
