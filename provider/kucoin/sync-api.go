package kucoin

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/segmentio/encoding/json"

	"github.com/spooky-finn/marketbus/domain"
)

const DefaultRestEndpoint = "https://api.kucoin.com"

// Credentials are optional, public market data does not need them.
type Credentials struct {
	ApiKey     string
	Secret     string
	Passphrase string
}

type KucoinSyncAPI struct {
	apiService *kucoin.ApiService
}

func NewKucoinSyncAPI(baseURL string, creds Credentials) *KucoinSyncAPI {
	if baseURL == "" {
		baseURL = DefaultRestEndpoint
	}
	return &KucoinSyncAPI{
		apiService: kucoin.NewApiService(
			kucoin.ApiBaseURIOption(strings.TrimRight(baseURL, "/")),
			kucoin.ApiKeyOption(creds.ApiKey),
			kucoin.ApiSecretOption(creds.Secret),
			kucoin.ApiPassPhraseOption(creds.Passphrase),
		),
	}
}

type OrderBookModel struct {
	Sequence string          `json:"sequence"`
	Time     int64           `json:"time"`
	Bids     [][]interface{} `json:"bids"`
	Asks     [][]interface{} `json:"asks"`
}

// partDepth picks the smallest aggregated book KuCoin serves that covers depth.
func partDepth(depth int) int64 {
	if depth <= 20 {
		return 20
	}
	return 100
}

// The SDK is not context aware, ctx is only checked before the request.
func (api *KucoinSyncAPI) FetchSnapshot(ctx context.Context, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = domain.DefaultDepth
	}

	resp, err := api.apiService.AggregatedPartOrderBook(instrument, partDepth(depth))
	if err != nil {
		return nil, fmt.Errorf("%w: kucoin order book: %v", domain.ErrNetwork, err)
	}
	if !resp.ApiSuccessful() {
		return nil, fmt.Errorf("%w: kucoin order book: code %s: %s", domain.ErrParse, resp.Code, resp.Message)
	}

	model := &OrderBookModel{}
	if err := json.Unmarshal(resp.RawData, model); err != nil {
		return nil, fmt.Errorf("%w: kucoin order book: %v", domain.ErrParse, err)
	}

	bids, err := domain.ParseLevels(model.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := domain.ParseLevels(model.Asks)
	if err != nil {
		return nil, err
	}

	snapshot := domain.NewOrderBookSnapshot(domain.ExchangeKucoin, instrument, bids, asks, depth)
	return &snapshot, nil
}

// PublicToken requests the bullet token that the websocket session is opened with.
func (api *KucoinSyncAPI) PublicToken() (*kucoin.WebSocketTokenModel, error) {
	resp, err := api.apiService.WebSocketPublicToken()
	if err != nil {
		return nil, fmt.Errorf("%w: kucoin ws token: %v", domain.ErrNetwork, err)
	}
	if !resp.ApiSuccessful() {
		return nil, fmt.Errorf("%w: kucoin ws token: code %s: %s", domain.ErrNetwork, resp.Code, resp.Message)
	}

	token := &kucoin.WebSocketTokenModel{}
	if err := json.Unmarshal(resp.RawData, token); err != nil {
		return nil, fmt.Errorf("%w: kucoin ws token: %v", domain.ErrParse, err)
	}
	return token, nil
}
