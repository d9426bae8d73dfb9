package domain

import "sort"

// DefaultDepth caps the number of levels per side in a snapshot.
const DefaultDepth = 5

// Event is either a Tick or an OrderBookSnapshot. Consumers type-switch on it.
type Event interface {
	Venue() Exchange
	Instrument() string
	Time() int64

	withTimestamp(ts int64) Event
}

// Tick is a best bid/ask quote. A zero side means the venue did not report it.
type Tick struct {
	Exchange  Exchange `json:"exchange"`
	Pair      string   `json:"pair"`
	Bid       float64  `json:"bid"`
	Ask       float64  `json:"ask"`
	Timestamp int64    `json:"timestamp"`
}

func (t Tick) Venue() Exchange    { return t.Exchange }
func (t Tick) Instrument() string { return t.Pair }
func (t Tick) Time() int64        { return t.Timestamp }

func (t Tick) withTimestamp(ts int64) Event {
	t.Timestamp = ts
	return t
}

func (t Tick) Validate() error {
	if t.Pair == "" {
		return newParseError("tick without pair")
	}
	if t.Bid < 0 || t.Ask < 0 {
		return newParseError("negative quote for %s", t.Pair)
	}
	if t.Bid > 0 && t.Ask > 0 && t.Bid > t.Ask {
		return newParseError("crossed quote for %s: bid %v > ask %v", t.Pair, t.Bid, t.Ask)
	}
	return nil
}

type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type OrderBookSnapshot struct {
	Exchange  Exchange     `json:"exchange"`
	Pair      string       `json:"pair"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

func (s OrderBookSnapshot) Venue() Exchange    { return s.Exchange }
func (s OrderBookSnapshot) Instrument() string { return s.Pair }
func (s OrderBookSnapshot) Time() int64        { return s.Timestamp }

func (s OrderBookSnapshot) withTimestamp(ts int64) Event {
	s.Timestamp = ts
	return s
}

// NewOrderBookSnapshot sorts bids descending and asks ascending, then caps both sides at depth.
// The input slices are not modified.
func NewOrderBookSnapshot(exchange Exchange, pair string, bids, asks []PriceLevel, depth int) OrderBookSnapshot {
	if depth <= 0 {
		depth = DefaultDepth
	}

	b := append([]PriceLevel(nil), bids...)
	a := append([]PriceLevel(nil), asks...)

	sort.SliceStable(b, func(i, j int) bool { return b[i].Price > b[j].Price })
	sort.SliceStable(a, func(i, j int) bool { return a[i].Price < a[j].Price })

	return OrderBookSnapshot{
		Exchange: exchange,
		Pair:     pair,
		Bids:     limitDepth(b, depth),
		Asks:     limitDepth(a, depth),
	}
}

// Stamp returns a copy of ev carrying the given capture time.
func Stamp(ev Event, ts int64) Event {
	return ev.withTimestamp(ts)
}

// Kind is the short name used in metric labels and subjects.
func Kind(ev Event) string {
	switch ev.(type) {
	case Tick:
		return "tick"
	case OrderBookSnapshot:
		return "book"
	default:
		return "unknown"
	}
}

func limitDepth(levels []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}
	return levels
}
