package domain

import (
	"sort"
	"sync"
	"time"
)

type OrderBookUpdate struct {
	Bids []PriceLevel
	Asks []PriceLevel
	// LastUpdateID is optional. Venues without sequence numbers leave it at zero.
	LastUpdateID int64
}

func NewOrderBookUpdate(bids []PriceLevel, asks []PriceLevel, lastUpdateID int64) *OrderBookUpdate {
	return &OrderBookUpdate{
		Bids:         bids,
		Asks:         asks,
		LastUpdateID: lastUpdateID,
	}
}

// OrderBook is a locally maintained book for venues that stream incremental depth updates.
type OrderBook struct {
	Exchange       Exchange
	Pair           string
	Asks           []PriceLevel
	Bids           []PriceLevel
	LastUpdateID   int64
	LastUpdateTime int64

	updateMx sync.Mutex
}

func NewOrderBook(exchange Exchange, pair string, bids, asks []PriceLevel) *OrderBook {
	ob := &OrderBook{
		Exchange: exchange,
		Pair:     pair,
	}
	ob.Reset(bids, asks)
	return ob
}

// Reset replaces both sides, as on a venue snapshot message.
func (ob *OrderBook) Reset(bids, asks []PriceLevel) {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	ob.Bids = nil
	ob.Asks = nil
	ob.LastUpdateID = 0
	ob.LastUpdateTime = time.Now().UnixMilli()

	ob.updateDepth(asks, true)
	ob.updateDepth(bids, false)
}

func (ob *OrderBook) ApplyUpdate(update *OrderBookUpdate) {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	if update.LastUpdateID > 0 {
		if update.LastUpdateID <= ob.LastUpdateID {
			return
		}
		ob.LastUpdateID = update.LastUpdateID
	}
	ob.LastUpdateTime = time.Now().UnixMilli()

	ob.updateDepth(update.Asks, true)
	ob.updateDepth(update.Bids, false)
}

func (ob *OrderBook) TakeSnapshot(limit int) OrderBookSnapshot {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	if limit <= 0 {
		limit = DefaultDepth
	}

	bids := make([]PriceLevel, len(ob.Bids))
	asks := make([]PriceLevel, len(ob.Asks))

	copy(bids, ob.Bids)
	copy(asks, ob.Asks)

	return OrderBookSnapshot{
		Exchange: ob.Exchange,
		Pair:     ob.Pair,
		Bids:     limitDepth(bids, limit),
		Asks:     limitDepth(asks, limit),
	}
}

func (ob *OrderBook) updateDepth(updateDepth []PriceLevel, isAsks bool) {
	var depth []PriceLevel

	if isAsks {
		depth = ob.Asks
	} else {
		depth = ob.Bids
	}

	for _, level := range updateDepth {
		if level.Quantity == 0 {
			// remove price level
			for i := range depth {
				if depth[i].Price == level.Price {
					depth[i] = depth[len(depth)-1]
					depth = depth[:len(depth)-1]
					break
				}
			}
			continue
		}

		updated := false
		for i := range depth {
			if depth[i].Price == level.Price {
				depth[i].Quantity = level.Quantity
				updated = true
				break
			}
		}

		if !updated {
			depth = append(depth, level)
		}
	}

	if isAsks {
		sort.Slice(depth, func(i, j int) bool {
			return depth[i].Price < depth[j].Price
		})
		ob.Asks = depth
	} else {
		sort.Slice(depth, func(i, j int) bool {
			return depth[i].Price > depth[j].Price
		})
		ob.Bids = depth
	}
}
