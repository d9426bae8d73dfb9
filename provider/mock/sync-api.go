package mock

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/helpers"
)

const (
	DefaultRestEndpoint = "http://localhost:8000"
	defaultExchange     = "mock"
)

// MockSyncAPI reads order books from a local mock exchange server:
// GET /api/{exchange}/orderbook/{symbol}?depth=N.
// An instrument may name the mocked exchange as "exchange:symbol".
type MockSyncAPI struct {
	baseURL string
	client  *http.Client
}

func NewMockSyncAPI(baseURL string, client *http.Client) *MockSyncAPI {
	if baseURL == "" {
		baseURL = DefaultRestEndpoint
	}
	return &MockSyncAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type orderBookResponse struct {
	Bids [][]interface{} `json:"bids"`
	Asks [][]interface{} `json:"asks"`
}

func (api *MockSyncAPI) FetchSnapshot(ctx context.Context, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = domain.DefaultDepth
	}

	exchange, symbol, found := strings.Cut(instrument, ":")
	if !found {
		exchange, symbol = defaultExchange, instrument
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: mock: empty symbol in %q", domain.ErrParse, instrument)
	}

	endpoint := fmt.Sprintf("%s/api/%s/orderbook/%s?depth=%d",
		api.baseURL, url.PathEscape(exchange), url.PathEscape(symbol), depth)

	var response orderBookResponse
	if err := helpers.GetJSON(ctx, api.client, endpoint, &response); err != nil {
		return nil, err
	}
	if response.Bids == nil && response.Asks == nil {
		return nil, fmt.Errorf("%w: mock: book without levels", domain.ErrParse)
	}

	bids, err := domain.ParseLevels(response.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := domain.ParseLevels(response.Asks)
	if err != nil {
		return nil, err
	}

	snapshot := domain.NewOrderBookSnapshot(domain.ExchangeMock, instrument, bids, asks, depth)
	return &snapshot, nil
}
