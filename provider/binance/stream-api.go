package binance

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/spooky-finn/marketbus/domain"
)

const DefaultStreamEndpoint = "wss://stream.binance.com:9443/stream"

type BinanceStreamAPI struct {
	endpoint string
}

func NewBinanceStreamAPI(endpoint string) *BinanceStreamAPI {
	if endpoint == "" {
		endpoint = DefaultStreamEndpoint
	}
	return &BinanceStreamAPI{endpoint: endpoint}
}

func (bs *BinanceStreamAPI) Exchange() domain.Exchange {
	return domain.ExchangeBinance
}

func (bs *BinanceStreamAPI) Endpoint() string {
	return bs.endpoint
}

func (bs *BinanceStreamAPI) NewSession(instruments []string, depth int) domain.StreamSession {
	return newSession(instruments, depth)
}

// Notation renders a symbol as Binance expects it, e.g. BTCUSDT.
func Notation(symbol *domain.MarketSymbol) string {
	return symbol.Upper("")
}

type BookTickerData struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type PartialDepthData struct {
	LastUpdateID int64           `json:"lastUpdateId"`
	Bids         [][]interface{} `json:"bids"`
	Asks         [][]interface{} `json:"asks"`
}

func parseBookTicker(data []byte) (domain.Tick, error) {
	var ticker BookTickerData
	if err := json.Unmarshal(data, &ticker); err != nil {
		return domain.Tick{}, fmt.Errorf("%w: binance ticker: %v", domain.ErrParse, err)
	}
	return ticker.toTick()
}

func (t BookTickerData) toTick() (domain.Tick, error) {
	if t.Symbol == "" || (t.BidPrice == "" && t.AskPrice == "") {
		return domain.Tick{}, fmt.Errorf("%w: binance ticker without symbol or quotes", domain.ErrParse)
	}

	bid, err := domain.ParsePrice(t.BidPrice)
	if err != nil {
		return domain.Tick{}, err
	}
	ask, err := domain.ParsePrice(t.AskPrice)
	if err != nil {
		return domain.Tick{}, err
	}

	return domain.Tick{
		Exchange: domain.ExchangeBinance,
		Pair:     t.Symbol,
		Bid:      bid,
		Ask:      ask,
	}, nil
}

// parseTickerArray handles the !ticker@arr shape. Entries without quotes are skipped.
func parseTickerArray(msg []byte) ([]domain.Event, error) {
	var tickers []BookTickerData
	if err := json.Unmarshal(msg, &tickers); err != nil {
		return nil, fmt.Errorf("%w: binance ticker array: %v", domain.ErrParse, err)
	}

	events := make([]domain.Event, 0, len(tickers))
	for _, t := range tickers {
		tick, err := t.toTick()
		if err != nil {
			continue
		}
		events = append(events, tick)
	}
	return events, nil
}

func parsePartialDepth(pair string, data []byte, limit int) (domain.OrderBookSnapshot, error) {
	var depth PartialDepthData
	if err := json.Unmarshal(data, &depth); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: binance depth: %v", domain.ErrParse, err)
	}
	return depth.toSnapshot(pair, limit)
}

func (d PartialDepthData) toSnapshot(pair string, depth int) (domain.OrderBookSnapshot, error) {
	if d.Bids == nil && d.Asks == nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: binance depth without levels", domain.ErrParse)
	}

	bids, err := domain.ParseLevels(d.Bids)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}
	asks, err := domain.ParseLevels(d.Asks)
	if err != nil {
		return domain.OrderBookSnapshot{}, err
	}

	return domain.NewOrderBookSnapshot(domain.ExchangeBinance, pair, bids, asks, depth), nil
}
