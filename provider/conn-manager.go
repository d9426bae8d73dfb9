package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/config"
	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/provider/binance"
	"github.com/spooky-finn/marketbus/provider/coinbase"
	"github.com/spooky-finn/marketbus/provider/coingecko"
	"github.com/spooky-finn/marketbus/provider/kraken"
	"github.com/spooky-finn/marketbus/provider/kucoin"
	"github.com/spooky-finn/marketbus/provider/mock"
)

const defaultHTTPTimeout = 10 * time.Second

// ConnectionManager builds venue clients and connectors from configuration.
// It holds no connections itself, every connector dials its own.
type ConnectionManager struct {
	cfg          *config.Config
	client       *http.Client
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewConnectionManager(cfg *config.Config, logger *zap.Logger) *ConnectionManager {
	interval := cfg.Poll.DefaultInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &ConnectionManager{
		cfg:          cfg,
		client:       &http.Client{Timeout: defaultHTTPTimeout},
		pollInterval: interval,
		logger:       logger,
	}
}

// Connector resolves venue and picks the variant: a stream when the venue has one and no
// poll interval is requested, polling otherwise.
func (cm *ConnectionManager) Connector(venue string, params domain.ConnectorParams) (Connector, error) {
	exchange, err := domain.ParseExchange(venue)
	if err != nil {
		return nil, err
	}
	if len(params.Instruments) == 0 {
		return nil, fmt.Errorf("%w: %s: no instruments given", domain.ErrInvalidParams, exchange)
	}

	logger := cm.logger.Named("connector")

	if params.PollInterval <= 0 {
		if exchange == domain.ExchangeKucoin {
			return kucoin.NewStreamConnector(cm.kucoinAPI(params.Endpoint), params, logger), nil
		}
		if api, ok := cm.streamAPI(exchange, params.Endpoint); ok {
			return NewStreamConnector(api, params, logger), nil
		}
		params.PollInterval = cm.pollInterval
	}

	poll, err := cm.pollFunc(exchange, params)
	if err != nil {
		return nil, err
	}
	return NewPollConnector(exchange, params, poll, logger), nil
}

// SnapshotAPI serves one-shot order book queries.
func (cm *ConnectionManager) SnapshotAPI(exchange domain.Exchange) (domain.ProviderSyncAPI, error) {
	return cm.syncAPI(exchange, "")
}

// Notation renders a symbol in the venue's native instrument notation.
func (cm *ConnectionManager) Notation(exchange domain.Exchange, symbol *domain.MarketSymbol) (string, error) {
	switch exchange {
	case domain.ExchangeBinance, domain.ExchangeMock:
		return binance.Notation(symbol), nil
	case domain.ExchangeCoinbase:
		return coinbase.Notation(symbol), nil
	case domain.ExchangeKraken:
		return kraken.Notation(symbol), nil
	case domain.ExchangeKucoin:
		return kucoin.Notation(symbol), nil
	case domain.ExchangeCoinGecko:
		return symbol.Join("/"), nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrUnknownVenue, exchange)
}

func (cm *ConnectionManager) pollFunc(exchange domain.Exchange, params domain.ConnectorParams) (PollFunc, error) {
	if exchange == domain.ExchangeCoinGecko {
		api := coingecko.NewCoinGeckoSyncAPI(cm.restURL(exchange, params.Endpoint), cm.client)
		return func(ctx context.Context, instrument string) (domain.Event, error) {
			tick, err := api.FetchTick(ctx, instrument)
			if err != nil {
				return nil, err
			}
			return *tick, nil
		}, nil
	}

	api, err := cm.syncAPI(exchange, params.Endpoint)
	if err != nil {
		return nil, err
	}
	depth := params.SnapshotDepth()
	return func(ctx context.Context, instrument string) (domain.Event, error) {
		snapshot, err := api.FetchSnapshot(ctx, instrument, depth)
		if err != nil {
			return nil, err
		}
		return *snapshot, nil
	}, nil
}

func (cm *ConnectionManager) syncAPI(exchange domain.Exchange, endpoint string) (domain.ProviderSyncAPI, error) {
	base := cm.restURL(exchange, endpoint)

	switch exchange {
	case domain.ExchangeBinance:
		return binance.NewBinanceSyncAPI(base, cm.client), nil
	case domain.ExchangeCoinbase:
		return coinbase.NewCoinbaseSyncAPI(base, cm.client), nil
	case domain.ExchangeKraken:
		return kraken.NewKrakenSyncAPI(base, cm.client), nil
	case domain.ExchangeKucoin:
		return cm.kucoinAPI(endpoint), nil
	case domain.ExchangeMock:
		return mock.NewMockSyncAPI(base, cm.client), nil
	case domain.ExchangeCoinGecko:
		return nil, fmt.Errorf("%w: %s has no order book", domain.ErrUnsupported, exchange)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, exchange)
}

func (cm *ConnectionManager) streamAPI(exchange domain.Exchange, endpoint string) (domain.ProviderStreamAPI, bool) {
	if endpoint == "" {
		endpoint = cm.cfg.Venue(exchange.String()).WsURL
	}

	switch exchange {
	case domain.ExchangeBinance:
		return binance.NewBinanceStreamAPI(endpoint), true
	case domain.ExchangeCoinbase:
		return coinbase.NewCoinbaseStreamAPI(endpoint), true
	case domain.ExchangeKraken:
		return kraken.NewKrakenStreamAPI(endpoint), true
	}
	return nil, false
}

func (cm *ConnectionManager) kucoinAPI(endpoint string) *kucoin.KucoinSyncAPI {
	creds := kucoin.Credentials{
		ApiKey:     cm.cfg.Kucoin.APIKey,
		Secret:     cm.cfg.Kucoin.APISecret,
		Passphrase: cm.cfg.Kucoin.APIPassphrase,
	}
	return kucoin.NewKucoinSyncAPI(cm.restURL(domain.ExchangeKucoin, endpoint), creds)
}

func (cm *ConnectionManager) restURL(exchange domain.Exchange, endpoint string) string {
	if endpoint != "" {
		return endpoint
	}
	return cm.cfg.Venue(exchange.String()).RestURL
}
