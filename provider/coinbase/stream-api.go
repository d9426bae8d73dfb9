package coinbase

import (
	"fmt"

	"github.com/segmentio/encoding/json"

	"github.com/spooky-finn/marketbus/domain"
)

const DefaultStreamEndpoint = "wss://ws-feed.exchange.coinbase.com"

type CoinbaseStreamAPI struct {
	endpoint string
}

func NewCoinbaseStreamAPI(endpoint string) *CoinbaseStreamAPI {
	if endpoint == "" {
		endpoint = DefaultStreamEndpoint
	}
	return &CoinbaseStreamAPI{endpoint: endpoint}
}

func (s *CoinbaseStreamAPI) Exchange() domain.Exchange { return domain.ExchangeCoinbase }

func (s *CoinbaseStreamAPI) Endpoint() string { return s.endpoint }

func (s *CoinbaseStreamAPI) NewSession(instruments []string, _ int) domain.StreamSession {
	return &session{productIDs: instruments}
}

// Notation renders a symbol as a Coinbase product id, e.g. BTC-USD.
func Notation(symbol *domain.MarketSymbol) string {
	return symbol.Upper("-")
}

type SubscribeRequest struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

type session struct {
	productIDs []string
}

func (s *session) Handshake() []interface{} {
	if len(s.productIDs) == 0 {
		return nil
	}
	return []interface{}{
		SubscribeRequest{
			Type:       "subscribe",
			ProductIDs: s.productIDs,
			Channels:   []string{"ticker"},
		},
	}
}

func (s *session) Parse(msg []byte) ([]domain.Event, error) {
	return ParseMessage(msg)
}

type feedMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
}

func ParseMessage(msg []byte) ([]domain.Event, error) {
	var m feedMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: coinbase: %v", domain.ErrParse, err)
	}

	switch m.Type {
	case "ticker":
		if m.ProductID == "" {
			return nil, fmt.Errorf("%w: coinbase ticker without product_id", domain.ErrParse)
		}
		bid, err := domain.ParsePrice(m.BestBid)
		if err != nil {
			return nil, err
		}
		ask, err := domain.ParsePrice(m.BestAsk)
		if err != nil {
			return nil, err
		}
		return []domain.Event{domain.Tick{
			Exchange: domain.ExchangeCoinbase,
			Pair:     m.ProductID,
			Bid:      bid,
			Ask:      ask,
		}}, nil
	case "subscriptions", "heartbeat":
		return nil, nil
	case "error":
		return nil, fmt.Errorf("%w: coinbase error: %s %s", domain.ErrParse, m.Message, m.Reason)
	default:
		return nil, fmt.Errorf("%w: coinbase: unexpected message type %q", domain.ErrParse, m.Type)
	}
}
