package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/config"
	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/helpers"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
)

const (
	defaultReadLimit = 1 << 20
	writeWait        = 5 * time.Second
)

// StreamConnector is the streaming variant: one websocket session per Run.
type StreamConnector struct {
	api         domain.ProviderStreamAPI
	instruments []string
	depth       int

	dialer  *websocket.Dialer
	stamper *domain.Stamper
	logger  *zap.Logger
}

func NewStreamConnector(api domain.ProviderStreamAPI, params domain.ConnectorParams, logger *zap.Logger) *StreamConnector {
	return &StreamConnector{
		api:         api,
		instruments: params.Instruments,
		depth:       params.SnapshotDepth(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 5 * time.Second,
		},
		stamper: domain.NewStamper(),
		logger:  logger.With(zap.String("venue", api.Exchange().String())),
	}
}

func (c *StreamConnector) Venue() domain.Exchange {
	return c.api.Exchange()
}

func (c *StreamConnector) Run(ctx context.Context, out chan<- domain.Event) error {
	venue := c.api.Exchange().String()
	endpoint := c.api.Endpoint()

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		promclient.NetworkErrors.WithLabelValues(venue).Inc()
		return fmt.Errorf("%w: dial %s: %v", domain.ErrNetwork, endpoint, err)
	}
	defer conn.Close()
	conn.SetReadLimit(defaultReadLimit)

	// ReadMessage does not observe ctx, closing the socket unblocks it
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-sessionDone:
		}
	}()

	session := c.api.NewSession(c.instruments, c.depth)
	for _, msg := range session.Handshake() {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if config.DebugMode {
			c.logger.Debug("handshake", zap.String("message", helpers.ToJsonString(msg)))
		}
		if err := conn.WriteJSON(msg); err != nil {
			promclient.NetworkErrors.WithLabelValues(venue).Inc()
			return fmt.Errorf("%w: handshake: %v", domain.ErrNetwork, err)
		}
	}

	c.logger.Info("stream connected", zap.String("endpoint", endpoint), zap.Strings("instruments", c.instruments))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			promclient.NetworkErrors.WithLabelValues(venue).Inc()
			return fmt.Errorf("%w: read: %v", domain.ErrNetwork, err)
		}

		events, err := session.Parse(msg)
		if err != nil {
			c.dropped(msg, err)
			continue
		}

		for _, ev := range events {
			if err := validate(ev); err != nil {
				c.dropped(msg, err)
				continue
			}
			if err := emit(ctx, out, domain.Stamp(ev, c.stamper.Next())); err != nil {
				return err
			}
		}
	}
}

func (c *StreamConnector) dropped(msg []byte, err error) {
	promclient.ParseErrors.WithLabelValues(c.api.Exchange().String()).Inc()

	if config.DebugMode {
		c.logger.Debug("message dropped", zap.Error(err), zap.ByteString("payload", msg))
		return
	}
	c.logger.Warn("message dropped", zap.Error(err))
}
