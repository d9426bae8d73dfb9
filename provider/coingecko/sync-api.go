package coingecko

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
	DefaultRestEndpoint = "https://api.coingecko.com"
	defaultVsCurrency   = "usd"
)

// CoinGeckoSyncAPI polls simple/price. CoinGecko has no order book, so a tick carries bid = ask = price.
type CoinGeckoSyncAPI struct {
	baseURL string
	client  *http.Client
}

func NewCoinGeckoSyncAPI(baseURL string, client *http.Client) *CoinGeckoSyncAPI {
	if baseURL == "" {
		baseURL = DefaultRestEndpoint
	}
	return &CoinGeckoSyncAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// SplitInstrument reads "bitcoin/usd". A bare coin id quotes in usd.
func SplitInstrument(instrument string) (id string, vs string, err error) {
	id, vs, found := strings.Cut(strings.ToLower(strings.TrimSpace(instrument)), "/")
	if !found || vs == "" {
		vs = defaultVsCurrency
	}
	if id == "" {
		return "", "", fmt.Errorf("%w: coingecko: empty coin id in %q", domain.ErrParse, instrument)
	}
	return id, vs, nil
}

func (api *CoinGeckoSyncAPI) FetchTick(ctx context.Context, instrument string) (*domain.Tick, error) {
	id, vs, err := SplitInstrument(instrument)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", vs)

	var response map[string]map[string]float64
	if err := helpers.GetJSON(ctx, api.client, api.baseURL+"/api/v3/simple/price?"+query.Encode(), &response); err != nil {
		return nil, err
	}

	price, ok := response[id][vs]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("%w: coingecko: no %s price for %s", domain.ErrParse, vs, id)
	}

	return &domain.Tick{
		Exchange: domain.ExchangeCoinGecko,
		Pair:     id + "/" + vs,
		Bid:      price,
		Ask:      price,
	}, nil
}
