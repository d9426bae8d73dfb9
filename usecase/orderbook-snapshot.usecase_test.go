package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spooky-finn/marketbus/domain"
)

type stubSyncAPI struct {
	depth int
	err   error
}

func (s *stubSyncAPI) FetchSnapshot(_ context.Context, instrument string, depth int) (*domain.OrderBookSnapshot, error) {
	s.depth = depth
	if s.err != nil {
		return nil, s.err
	}
	snapshot := domain.NewOrderBookSnapshot(domain.ExchangeMock, instrument,
		[]domain.PriceLevel{{Price: 100, Quantity: 1}},
		[]domain.PriceLevel{{Price: 100.1, Quantity: 2}},
		depth,
	)
	return &snapshot, nil
}

type stubConnManager struct {
	api *stubSyncAPI
}

func (s *stubConnManager) SnapshotAPI(exchange domain.Exchange) (domain.ProviderSyncAPI, error) {
	switch exchange {
	case domain.ExchangeMock:
		return s.api, nil
	case domain.ExchangeCoinGecko:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupported, exchange)
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVenue, exchange)
}

func TestFetchSnapshot(t *testing.T) {
	api := &stubSyncAPI{}
	uc := NewOrderBookSnapshotUseCase(&stubConnManager{api: api}, 7, zaptest.NewLogger(t))

	snapshot, err := uc.FetchSnapshot(context.Background(), "mock", "BTCUSD", 0)
	require.NoError(t, err)
	assert.Equal(t, 7, api.depth, "configured depth applies when none is given")
	assert.Equal(t, "BTCUSD", snapshot.Pair)
	assert.NotZero(t, snapshot.Timestamp)

	_, err = uc.FetchSnapshot(context.Background(), "mock", "BTCUSD", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, api.depth)
}

func TestFetchSnapshot_Errors(t *testing.T) {
	api := &stubSyncAPI{}
	uc := NewOrderBookSnapshotUseCase(&stubConnManager{api: api}, 0, zaptest.NewLogger(t))

	_, err := uc.FetchSnapshot(context.Background(), "nasdaq", "BTCUSD", 5)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)

	_, err = uc.FetchSnapshot(context.Background(), "coingecko", "bitcoin/usd", 5)
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	_, err = uc.FetchSnapshot(context.Background(), "mock", "", 5)
	assert.ErrorIs(t, err, domain.ErrParse)

	api.err = fmt.Errorf("%w: timeout", domain.ErrNetwork)
	_, err = uc.FetchSnapshot(context.Background(), "mock", "BTCUSD", 5)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestObserveAndLatest(t *testing.T) {
	uc := NewOrderBookSnapshotUseCase(&stubConnManager{api: &stubSyncAPI{}}, 5, zaptest.NewLogger(t))

	_, err := uc.Latest("kraken", "XBT/USD")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	require.NoError(t, uc.Observe(domain.Tick{Exchange: domain.ExchangeKraken, Pair: "XBT/USD", Bid: 1, Ask: 2}))
	assert.Equal(t, -1, uc.BookCount(domain.ExchangeKraken), "ticks are not stored")

	book := domain.OrderBookSnapshot{
		Exchange:  domain.ExchangeKraken,
		Pair:      "XBT/USD",
		Bids:      []domain.PriceLevel{{Price: 10, Quantity: 1}},
		Timestamp: 20,
	}
	require.NoError(t, uc.Observe(book))

	older := book
	older.Bids = []domain.PriceLevel{{Price: 9, Quantity: 1}}
	older.Timestamp = 10
	require.NoError(t, uc.Observe(older))

	latest, err := uc.Latest("kraken", "XBT/USD")
	require.NoError(t, err)
	assert.Equal(t, book, *latest)

	_, err = uc.Latest("kraken", "ETH/USD")
	assert.ErrorIs(t, err, domain.ErrOrderBookNotFound)

	_, err = uc.Latest("nasdaq", "ETH/USD")
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}
