package kraken

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/spooky-finn/marketbus/domain"
)

const (
	DefaultStreamEndpoint = "wss://ws.kraken.com"
	bookSubscriptionDepth = 10
)

type KrakenStreamAPI struct {
	endpoint string
}

func NewKrakenStreamAPI(endpoint string) *KrakenStreamAPI {
	if endpoint == "" {
		endpoint = DefaultStreamEndpoint
	}
	return &KrakenStreamAPI{endpoint: endpoint}
}

func (s *KrakenStreamAPI) Exchange() domain.Exchange { return domain.ExchangeKraken }

func (s *KrakenStreamAPI) Endpoint() string { return s.endpoint }

func (s *KrakenStreamAPI) NewSession(instruments []string, depth int) domain.StreamSession {
	if depth <= 0 {
		depth = domain.DefaultDepth
	}
	return &session{
		pairs: instruments,
		depth: depth,
		books: make(map[string]*domain.OrderBook),
	}
}

// Notation renders a symbol as a Kraken websocket pair, e.g. XBT/USD.
func Notation(symbol *domain.MarketSymbol) string {
	return symbol.Upper("/")
}

type Subscription struct {
	Name  string `json:"name"`
	Depth int    `json:"depth,omitempty"`
}

type SubscribeRequest struct {
	Event        string       `json:"event"`
	Pair         []string     `json:"pair"`
	Subscription Subscription `json:"subscription"`
}

// session keeps one local book per pair, fed by the book channel.
type session struct {
	pairs []string
	depth int
	books map[string]*domain.OrderBook
}

func (s *session) Handshake() []interface{} {
	if len(s.pairs) == 0 {
		return nil
	}
	return []interface{}{
		SubscribeRequest{Event: "subscribe", Pair: s.pairs, Subscription: Subscription{Name: "ticker"}},
		SubscribeRequest{Event: "subscribe", Pair: s.pairs, Subscription: Subscription{Name: "book", Depth: bookSubscriptionDepth}},
	}
}

type eventMessage struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

type tickerData struct {
	Ask []interface{} `json:"a"`
	Bid []interface{} `json:"b"`
}

type bookData struct {
	SnapshotAsks [][]interface{} `json:"as"`
	SnapshotBids [][]interface{} `json:"bs"`
	Asks         [][]interface{} `json:"a"`
	Bids         [][]interface{} `json:"b"`
}

func (s *session) Parse(msg []byte) ([]domain.Event, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil {
		return parseEvent(msg)
	}

	// [channelID, payload..., channelName, pair]
	if len(frame) < 4 {
		return nil, fmt.Errorf("%w: kraken: frame has %d elements", domain.ErrParse, len(frame))
	}

	var channel, pair string
	if err := json.Unmarshal(frame[len(frame)-2], &channel); err != nil {
		return nil, fmt.Errorf("%w: kraken channel name: %v", domain.ErrParse, err)
	}
	if err := json.Unmarshal(frame[len(frame)-1], &pair); err != nil || pair == "" {
		return nil, fmt.Errorf("%w: kraken pair", domain.ErrParse)
	}
	payloads := frame[1 : len(frame)-2]

	switch {
	case channel == "ticker":
		tick, err := parseTicker(pair, payloads[0])
		if err != nil {
			return nil, err
		}
		return []domain.Event{tick}, nil
	case len(channel) >= 4 && channel[:4] == "book":
		snapshot, err := s.applyBook(pair, payloads)
		if err != nil {
			return nil, err
		}
		return []domain.Event{snapshot}, nil
	default:
		return nil, fmt.Errorf("%w: kraken: unexpected channel %q", domain.ErrParse, channel)
	}
}

func parseEvent(msg []byte) ([]domain.Event, error) {
	var ev eventMessage
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Event == "" {
		return nil, fmt.Errorf("%w: kraken: unrecognised message", domain.ErrParse)
	}
	if ev.Status == "error" {
		return nil, fmt.Errorf("%w: kraken %s: %s", domain.ErrParse, ev.Event, ev.ErrorMessage)
	}
	return nil, nil
}

func parseTicker(pair string, payload json.RawMessage) (domain.Tick, error) {
	var data tickerData
	if err := json.Unmarshal(payload, &data); err != nil {
		return domain.Tick{}, fmt.Errorf("%w: kraken ticker: %v", domain.ErrParse, err)
	}
	if len(data.Bid) == 0 || len(data.Ask) == 0 {
		return domain.Tick{}, fmt.Errorf("%w: kraken ticker without a/b", domain.ErrParse)
	}

	bid, err := quote(data.Bid[0])
	if err != nil {
		return domain.Tick{}, err
	}
	ask, err := quote(data.Ask[0])
	if err != nil {
		return domain.Tick{}, err
	}

	return domain.Tick{Exchange: domain.ExchangeKraken, Pair: pair, Bid: bid, Ask: ask}, nil
}

func quote(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("%w: kraken price %v", domain.ErrParse, v)
	}
	return domain.ParsePrice(s)
}

func (s *session) applyBook(pair string, payloads []json.RawMessage) (domain.OrderBookSnapshot, error) {
	var update domain.OrderBookUpdate
	reset := false

	for _, payload := range payloads {
		var data bookData
		if err := json.Unmarshal(payload, &data); err != nil {
			return domain.OrderBookSnapshot{}, fmt.Errorf("%w: kraken book: %v", domain.ErrParse, err)
		}

		for _, side := range []struct {
			raw [][]interface{}
			dst *[]domain.PriceLevel
		}{
			{data.SnapshotBids, &update.Bids},
			{data.SnapshotAsks, &update.Asks},
			{data.Bids, &update.Bids},
			{data.Asks, &update.Asks},
		} {
			levels, err := domain.ParseLevels(side.raw)
			if err != nil {
				return domain.OrderBookSnapshot{}, err
			}
			*side.dst = append(*side.dst, levels...)
		}

		if data.SnapshotBids != nil || data.SnapshotAsks != nil {
			reset = true
		}
	}

	book, ok := s.books[pair]
	switch {
	case reset:
		if !ok {
			book = domain.NewOrderBook(domain.ExchangeKraken, pair, nil, nil)
			s.books[pair] = book
		}
		book.Reset(update.Bids, update.Asks)
	case !ok:
		return domain.OrderBookSnapshot{}, fmt.Errorf("%w: kraken book update for %s before snapshot", domain.ErrParse, pair)
	default:
		book.ApplyUpdate(&update)
	}

	return book.TakeSnapshot(s.depth), nil
}
