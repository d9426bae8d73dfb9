package kraken

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/helpers"
)

const DefaultRestEndpoint = "https://api.kraken.com"

type KrakenSyncAPI struct {
	baseURL string
	client  *http.Client
}

func NewKrakenSyncAPI(baseURL string, client *http.Client) *KrakenSyncAPI {
	if baseURL == "" {
		baseURL = DefaultRestEndpoint
	}
	return &KrakenSyncAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type depthResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Asks [][]interface{} `json:"asks"`
		Bids [][]interface{} `json:"bids"`
	} `json:"result"`
}

// FetchSnapshot queries public Depth. Kraken keys the result by its own pair name,
// so the single entry is taken regardless of key.
func (api *KrakenSyncAPI) FetchSnapshot(ctx context.Context, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	if depth <= 0 {
		depth = domain.DefaultDepth
	}

	query := url.Values{}
	query.Set("pair", strings.ReplaceAll(instrument, "/", ""))
	query.Set("count", helpers.IntToString(int64(depth)))

	var response depthResponse
	if err := helpers.GetJSON(ctx, api.client, api.baseURL+"/0/public/Depth?"+query.Encode(), &response); err != nil {
		return nil, err
	}
	if len(response.Error) > 0 {
		return nil, fmt.Errorf("%w: kraken: %s", domain.ErrParse, strings.Join(response.Error, "; "))
	}
	if len(response.Result) != 1 {
		return nil, fmt.Errorf("%w: kraken: expected one book, got %d", domain.ErrParse, len(response.Result))
	}

	for _, book := range response.Result {
		bids, err := domain.ParseLevels(book.Bids)
		if err != nil {
			return nil, err
		}
		asks, err := domain.ParseLevels(book.Asks)
		if err != nil {
			return nil, err
		}

		snapshot := domain.NewOrderBookSnapshot(domain.ExchangeKraken, instrument, bids, asks, depth)
		return &snapshot, nil
	}
	return nil, fmt.Errorf("%w: kraken: empty result", domain.ErrParse)
}
