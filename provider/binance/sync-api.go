package binance

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/helpers"
)

const DefaultRestEndpoint = "https://api.binance.com"

// BinanceSyncAPI fetches order book snapshots (depth) over REST.
type BinanceSyncAPI struct {
	baseURL string
	client  *http.Client
}

func NewBinanceSyncAPI(baseURL string, client *http.Client) *BinanceSyncAPI {
	if baseURL == "" {
		baseURL = DefaultRestEndpoint
	}
	return &BinanceSyncAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (api *BinanceSyncAPI) FetchSnapshot(ctx context.Context, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = domain.DefaultDepth
	}
	symbol := strings.ToUpper(instrument)

	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("limit", helpers.IntToString(int64(depth)))

	var response PartialDepthData
	if err := helpers.GetJSON(ctx, api.client, api.baseURL+"/api/v3/depth?"+query.Encode(), &response); err != nil {
		return nil, err
	}

	snapshot, err := response.toSnapshot(symbol, depth)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
