package kucoin

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/config"
	"github.com/spooky-finn/marketbus/domain"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
)

const tickerTopicPrefix = "/market/ticker:"

// Notation renders a symbol as KuCoin expects it, e.g. BTC-USDT.
func Notation(symbol *domain.MarketSymbol) string {
	return symbol.Upper("-")
}

type TickerModel struct {
	Sequence    string `json:"sequence"`
	Price       string `json:"price"`
	Size        string `json:"size"`
	BestAsk     string `json:"bestAsk"`
	BestAskSize string `json:"bestAskSize"`
	BestBid     string `json:"bestBid"`
	BestBidSize string `json:"bestBidSize"`
	Time        int64  `json:"time"`
}

// ParseTicker converts one /market/ticker push into a tick.
func ParseTicker(topic string, data []byte) (*domain.Tick, error) {
	pair, ok := strings.CutPrefix(topic, tickerTopicPrefix)
	if !ok || pair == "" {
		return nil, fmt.Errorf("%w: kucoin: unexpected topic %q", domain.ErrParse, topic)
	}

	model := &TickerModel{}
	if err := json.Unmarshal(data, model); err != nil {
		return nil, fmt.Errorf("%w: kucoin ticker: %v", domain.ErrParse, err)
	}
	if model.BestBid == "" || model.BestAsk == "" {
		return nil, fmt.Errorf("%w: kucoin ticker: missing best quotes", domain.ErrParse)
	}

	bid, err := domain.ParsePrice(model.BestBid)
	if err != nil {
		return nil, err
	}
	ask, err := domain.ParsePrice(model.BestAsk)
	if err != nil {
		return nil, err
	}

	return &domain.Tick{
		Exchange: domain.ExchangeKucoin,
		Pair:     pair,
		Bid:      bid,
		Ask:      ask,
	}, nil
}

// StreamConnector runs a KuCoin ticker session through the SDK websocket client,
// which owns the socket and its keepalive.
type StreamConnector struct {
	syncAPI     *KucoinSyncAPI
	instruments []string

	stamper *domain.Stamper
	logger  *zap.Logger
}

func NewStreamConnector(syncAPI *KucoinSyncAPI, params domain.ConnectorParams, logger *zap.Logger) *StreamConnector {
	return &StreamConnector{
		syncAPI:     syncAPI,
		instruments: params.Instruments,
		stamper:     domain.NewStamper(),
		logger:      logger.With(zap.String("venue", domain.ExchangeKucoin.String())),
	}
}

func (c *StreamConnector) Venue() domain.Exchange {
	return domain.ExchangeKucoin
}

func (c *StreamConnector) Run(ctx context.Context, out chan<- domain.Event) error {
	venue := domain.ExchangeKucoin.String()

	token, err := c.syncAPI.PublicToken()
	if err != nil {
		promclient.NetworkErrors.WithLabelValues(venue).Inc()
		return err
	}

	client := c.syncAPI.apiService.NewWebSocketClient(token)
	messages, errs, err := client.Connect()
	if err != nil {
		promclient.NetworkErrors.WithLabelValues(venue).Inc()
		return fmt.Errorf("%w: kucoin connect: %v", domain.ErrNetwork, err)
	}
	defer client.Stop()

	subscriptions := make([]*kucoin.WebSocketSubscribeMessage, 0, len(c.instruments))
	for _, instrument := range c.instruments {
		subscriptions = append(subscriptions, kucoin.NewSubscribeMessage(tickerTopicPrefix+instrument, false))
	}
	if err := client.Subscribe(subscriptions...); err != nil {
		promclient.NetworkErrors.WithLabelValues(venue).Inc()
		return fmt.Errorf("%w: kucoin subscribe: %v", domain.ErrNetwork, err)
	}

	c.logger.Info("stream connected", zap.Strings("instruments", c.instruments))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errs:
			promclient.NetworkErrors.WithLabelValues(venue).Inc()
			return fmt.Errorf("%w: kucoin stream: %v", domain.ErrNetwork, err)

		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("%w: kucoin stream closed", domain.ErrNetwork)
			}
			if msg.Type != kucoin.Message {
				continue
			}

			tick, err := ParseTicker(msg.Topic, msg.RawData)
			if err == nil {
				err = tick.Validate()
			}
			if err != nil {
				c.dropped(msg.RawData, err)
				continue
			}

			select {
			case out <- domain.Stamp(*tick, c.stamper.Next()):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", domain.ErrChannelClosed, ctx.Err())
			}
		}
	}
}

func (c *StreamConnector) dropped(msg []byte, err error) {
	promclient.ParseErrors.WithLabelValues(domain.ExchangeKucoin.String()).Inc()

	if config.DebugMode {
		c.logger.Debug("message dropped", zap.Error(err), zap.ByteString("payload", msg))
		return
	}
	c.logger.Warn("message dropped", zap.Error(err))
}
