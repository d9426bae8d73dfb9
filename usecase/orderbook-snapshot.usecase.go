package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/domain"
)

type OrderBookSnapshotUseCase struct {
	connManager domain.ConnManager
	storage     *domain.OrderBookStorage
	depth       int
	logger      *zap.Logger
}

func NewOrderBookSnapshotUseCase(connManager domain.ConnManager, depth int, logger *zap.Logger) *OrderBookSnapshotUseCase {
	if depth <= 0 {
		depth = domain.DefaultDepth
	}
	return &OrderBookSnapshotUseCase{
		connManager: connManager,
		storage:     domain.NewOrderBookStorage(),
		depth:       depth,
		logger:      logger,
	}
}

// FetchSnapshot asks the venue's REST API directly, bypassing the bus.
// A depth of zero uses the configured snapshot depth.
func (o *OrderBookSnapshotUseCase) FetchSnapshot(ctx context.Context, venue string, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	exchange, err := domain.ParseExchange(venue)
	if err != nil {
		return nil, err
	}
	if instrument == "" {
		return nil, fmt.Errorf("%w: empty instrument", domain.ErrParse)
	}
	if depth <= 0 {
		depth = o.depth
	}

	api, err := o.connManager.SnapshotAPI(exchange)
	if err != nil {
		return nil, err
	}

	snapshot, err := api.FetchSnapshot(ctx, instrument, depth)
	if err != nil {
		o.logger.Warn("snapshot request failed",
			zap.String("venue", venue),
			zap.String("instrument", instrument),
			zap.Error(err),
		)
		return nil, err
	}

	stamped := domain.Stamp(*snapshot, time.Now().UnixMilli()).(domain.OrderBookSnapshot)
	return &stamped, nil
}

// Observe records order book snapshots seen on the bus. It has the bridge callback signature.
func (o *OrderBookSnapshotUseCase) Observe(ev domain.Event) error {
	if snapshot, ok := ev.(domain.OrderBookSnapshot); ok {
		o.storage.Add(snapshot)
	}
	return nil
}

// Latest returns the last snapshot observed on the bus for venue and pair.
func (o *OrderBookSnapshotUseCase) Latest(venue string, pair string) (*domain.OrderBookSnapshot, error) {
	exchange, err := domain.ParseExchange(venue)
	if err != nil {
		return nil, err
	}

	snapshot, err := o.storage.Get(exchange, pair)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (o *OrderBookSnapshotUseCase) BookCount(venue domain.Exchange) int {
	return o.storage.OrderBookCount(venue)
}
