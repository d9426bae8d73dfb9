package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func levels(pairs ...float64) []PriceLevel {
	out := make([]PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, PriceLevel{Price: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}

func TestNewOrderBook(t *testing.T) {
	ob := NewOrderBook(ExchangeKraken, "XBT/USD", levels(9900, 2, 10000, 1), levels(10200, 2.5, 10100, 1.5))

	assert.Equal(t, ExchangeKraken, ob.Exchange, "Exchange should match")
	assert.Equal(t, "XBT/USD", ob.Pair, "Pair should match")
	assert.Equal(t, levels(10000, 1, 9900, 2), ob.Bids, "Bids should be sorted descending")
	assert.Equal(t, levels(10100, 1.5, 10200, 2.5), ob.Asks, "Asks should be sorted ascending")
}

func TestOrderBook_ApplyUpdate(t *testing.T) {
	ob := NewOrderBook(ExchangeKraken, "XBT/USD", levels(10000, 1, 9900, 2), levels(10.3, 1.5, 10200, 2.5))

	ob.ApplyUpdate(&OrderBookUpdate{
		Bids: levels(9800, 3),           // adding new bid
		Asks: levels(10.3, 2, 10200, 0), // updating and removing ask
	})

	assert.Equal(t, levels(10.3, 2), ob.Asks, "Asks should match")
	assert.Equal(t, levels(10000, 1, 9900, 2, 9800, 3), ob.Bids, "Bids should match")
}

func TestOrderBook_ApplyUpdateSkipsOutdated(t *testing.T) {
	ob := NewOrderBook(ExchangeBinance, "BTCUSDT", levels(100, 1), levels(101, 1))

	ob.ApplyUpdate(&OrderBookUpdate{Bids: levels(99, 1), LastUpdateID: 10})
	ob.ApplyUpdate(&OrderBookUpdate{Bids: levels(98, 1), LastUpdateID: 9})

	assert.Equal(t, int64(10), ob.LastUpdateID)
	assert.Equal(t, levels(100, 1, 99, 1), ob.Bids)
}

func TestOrderBook_Reset(t *testing.T) {
	ob := NewOrderBook(ExchangeKraken, "XBT/USD", levels(100, 1), levels(101, 1))

	ob.Reset(levels(50, 1), levels(51, 1))

	assert.Equal(t, levels(50, 1), ob.Bids)
	assert.Equal(t, levels(51, 1), ob.Asks)
}

func TestOrderBook_TakeSnapshot(t *testing.T) {
	ob := NewOrderBook(ExchangeKraken, "XBT/USD",
		levels(10000, 1, 9900, 2, 9800, 3),
		levels(10100, 1.5, 10200, 2.5, 10300, 1),
	)

	result := ob.TakeSnapshot(2)

	assert.Equal(t, ExchangeKraken, result.Exchange)
	assert.Equal(t, "XBT/USD", result.Pair)
	assert.Equal(t, levels(10000, 1, 9900, 2), result.Bids, "Bids should be capped")
	assert.Equal(t, levels(10100, 1.5, 10200, 2.5), result.Asks, "Asks should be capped")

	// the snapshot must not alias the live book
	result.Bids[0].Quantity = 42
	assert.Equal(t, float64(1), ob.Bids[0].Quantity)
}

func TestLimitDepth(t *testing.T) {
	book := levels(10000, 1, 9900, 2)

	assert.Len(t, limitDepth(book, 3), 2, "Depth should be kept")
	assert.Len(t, limitDepth(book, 1), 1, "Depth should be limited to 1")
	assert.Len(t, limitDepth(book, 0), 2, "Zero limit keeps everything")
}
