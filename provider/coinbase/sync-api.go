package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/helpers"
)

const DefaultRestEndpoint = "https://api.exchange.coinbase.com"

type CoinbaseSyncAPI struct {
	baseURL string
	client  *http.Client
}

func NewCoinbaseSyncAPI(baseURL string, client *http.Client) *CoinbaseSyncAPI {
	if baseURL == "" {
		baseURL = DefaultRestEndpoint
	}
	return &CoinbaseSyncAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type bookResponse struct {
	Sequence int64           `json:"sequence"`
	Bids     [][]interface{} `json:"bids"`
	Asks     [][]interface{} `json:"asks"`
}

// FetchSnapshot reads the aggregated level 2 book. Levels are [price, size, num_orders].
func (api *CoinbaseSyncAPI) FetchSnapshot(ctx context.Context, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	endpoint := fmt.Sprintf("%s/products/%s/book?level=2", api.baseURL, url.PathEscape(instrument))

	var response bookResponse
	if err := helpers.GetJSON(ctx, api.client, endpoint, &response); err != nil {
		return nil, err
	}
	if response.Bids == nil && response.Asks == nil {
		return nil, fmt.Errorf("%w: coinbase book without levels", domain.ErrParse)
	}

	bids, err := domain.ParseLevels(response.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := domain.ParseLevels(response.Asks)
	if err != nil {
		return nil, err
	}

	snapshot := domain.NewOrderBookSnapshot(domain.ExchangeCoinbase, instrument, bids, asks, depth)
	return &snapshot, nil
}
