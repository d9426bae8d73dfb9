package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/bridge"
	"github.com/spooky-finn/marketbus/bus"
	"github.com/spooky-finn/marketbus/config"
	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/provider"
	"github.com/spooky-finn/marketbus/registry"
	"github.com/spooky-finn/marketbus/usecase"
)

// Engine wires one bus to its connectors and subscribers. Engines share nothing
// but the prometheus collectors, so several can run side by side.
type Engine struct {
	connManager *provider.ConnectionManager
	bus         *bus.Bus
	registry    *registry.Registry
	bridge      *bridge.Bridge
	snapshots   *usecase.OrderBookSnapshotUseCase
	observer    *bridge.Subscription

	logger    *zap.Logger
	closeOnce sync.Once
}

func New(cfg *config.Config, logger *zap.Logger) *Engine {
	connManager := provider.NewConnectionManager(cfg, logger.Named("provider"))
	b := bus.New(cfg.Bus.Capacity, bus.WithLogger(logger.Named("bus")))
	br := bridge.New(b, logger.Named("bridge"))
	snapshots := usecase.NewOrderBookSnapshotUseCase(connManager, cfg.Snapshot.Depth, logger.Named("snapshot"))

	e := &Engine{
		connManager: connManager,
		bus:         b,
		registry: registry.New(b, connManager,
			registry.WithLogger(logger.Named("registry")),
			registry.WithInboundCapacity(cfg.Bus.InboundCapacity),
		),
		bridge:    br,
		snapshots: snapshots,
		logger:    logger,
	}
	e.observer = br.Subscribe(snapshots.Observe)
	return e
}

// StartConnector launches a connector for venue. An unknown venue fails with domain.ErrUnknownVenue.
func (e *Engine) StartConnector(venue string, params domain.ConnectorParams) (registry.Handle, error) {
	return e.registry.Start(venue, params)
}

// StopConnector is idempotent and does not wait for the connector to wind down.
func (e *Engine) StopConnector(handle registry.Handle) bool {
	return e.registry.Stop(handle)
}

func (e *Engine) ConnectorStatus(handle registry.Handle) (registry.Status, error) {
	return e.registry.Status(handle)
}

func (e *Engine) Connectors() []registry.Handle {
	return e.registry.Handles()
}

func (e *Engine) Subscribe(cb bridge.Callback, opts ...bridge.SubscribeOption) *bridge.Subscription {
	return e.bridge.Subscribe(cb, opts...)
}

func (e *Engine) Unsubscribe(id string) bool {
	return e.bridge.Unsubscribe(id)
}

func (e *Engine) Channel(buffer int) *domain.Subscription[domain.Event] {
	return e.bridge.Channel(buffer)
}

// FetchSnapshot queries the venue once over REST, independent of the bus.
func (e *Engine) FetchSnapshot(ctx context.Context, venue string, instrument string) (*domain.OrderBookSnapshot, error) {
	return e.snapshots.FetchSnapshot(ctx, venue, instrument, 0)
}

func (e *Engine) FetchSnapshotDepth(ctx context.Context, venue string, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	return e.snapshots.FetchSnapshot(ctx, venue, instrument, depth)
}

// LatestSnapshot returns the newest order book seen on the bus.
func (e *Engine) LatestSnapshot(venue string, instrument string) (*domain.OrderBookSnapshot, error) {
	return e.snapshots.Latest(venue, instrument)
}

// Notation renders a symbol the way venue names its instruments.
func (e *Engine) Notation(venue string, symbol *domain.MarketSymbol) (string, error) {
	exchange, err := domain.ParseExchange(venue)
	if err != nil {
		return "", err
	}
	return e.connManager.Notation(exchange, symbol)
}

// Close stops all connectors, ends all subscriptions and closes the bus.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		stopped := e.registry.StopAll()
		e.bridge.Close()
		e.bus.Close()
		e.logger.Info("engine closed", zap.Int("connectors_stopped", stopped))
	})
}
