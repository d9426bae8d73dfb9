package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spooky-finn/marketbus/config"
	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/provider/kucoin"
)

func newTestManager(t *testing.T) *ConnectionManager {
	cfg := &config.Config{}
	cfg.Poll.DefaultInterval = 2 * time.Second
	return NewConnectionManager(cfg, zaptest.NewLogger(t))
}

func TestConnectionManager_Connector(t *testing.T) {
	cm := newTestManager(t)
	params := domain.ConnectorParams{Instruments: []string{"BTCUSDT"}}

	_, err := cm.Connector("nasdaq", params)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)

	_, err = cm.Connector("binance", domain.ConnectorParams{})
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	c, err := cm.Connector("binance", params)
	require.NoError(t, err)
	assert.IsType(t, &StreamConnector{}, c)

	c, err = cm.Connector("BINANCE", domain.ConnectorParams{Instruments: params.Instruments, PollInterval: time.Second})
	require.NoError(t, err)
	require.IsType(t, &PollConnector{}, c)
	assert.Equal(t, time.Second, c.(*PollConnector).Interval())

	c, err = cm.Connector("kucoin", domain.ConnectorParams{Instruments: []string{"BTC-USDT"}})
	require.NoError(t, err)
	assert.IsType(t, &kucoin.StreamConnector{}, c)

	c, err = cm.Connector("coingecko", domain.ConnectorParams{Instruments: []string{"bitcoin/usd"}})
	require.NoError(t, err)
	require.IsType(t, &PollConnector{}, c)
	assert.Equal(t, 2*time.Second, c.(*PollConnector).Interval(), "configured default interval")
	assert.Equal(t, domain.ExchangeCoinGecko, c.Venue())
}

func TestConnectionManager_SnapshotAPI(t *testing.T) {
	cm := newTestManager(t)

	for _, exchange := range []domain.Exchange{
		domain.ExchangeBinance, domain.ExchangeCoinbase, domain.ExchangeKraken, domain.ExchangeKucoin, domain.ExchangeMock,
	} {
		api, err := cm.SnapshotAPI(exchange)
		require.NoError(t, err, exchange)
		assert.NotNil(t, api)
	}

	_, err := cm.SnapshotAPI(domain.ExchangeCoinGecko)
	assert.ErrorIs(t, err, domain.ErrUnsupported)

	_, err = cm.SnapshotAPI(domain.Exchange("nasdaq"))
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestConnectionManager_Notation(t *testing.T) {
	cm := newTestManager(t)
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)

	expected := map[domain.Exchange]string{
		domain.ExchangeBinance:   "BTCUSDT",
		domain.ExchangeCoinbase:  "BTC-USDT",
		domain.ExchangeKraken:    "BTC/USDT",
		domain.ExchangeKucoin:    "BTC-USDT",
		domain.ExchangeCoinGecko: "btc/usdt",
	}
	for exchange, want := range expected {
		got, err := cm.Notation(exchange, symbol)
		require.NoError(t, err)
		assert.Equal(t, want, got, exchange)
	}

	_, err = cm.Notation(domain.Exchange("nasdaq"), symbol)
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)
}

func TestEmit_ClosedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emit(ctx, make(chan domain.Event), domain.Tick{Pair: "BTCUSDT"})
	assert.ErrorIs(t, err, domain.ErrChannelClosed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamConnector_DropsMalformedMessages(t *testing.T) {
	fixtures := []string{
		`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"1.0","a":"1.1"}}`,
		`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"abc","a":"1.1"}}`,
		`{"stream":"ethusdt@bookTicker","data":{"s":"ETHUSDT","b":"2.0","a":"2.1"}}`,
		`{"stream":"ethusdt@bookTicker","data":`,
		`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"5.0","a":"1.0"}}`,
		`{"stream":"btcusdt@depth5@100ms","data":{"bids":[["1","1"]],"asks":[["2","1"]]}}`,
		`not json at all`,
		`{"s":"BTCUSDT","b":"3.0","a":"3.1"}`,
		`{"stream":"btcusdt@kline_1m","data":{}}`,
		`{"stream":"solusdt@bookTicker","data":{"s":"SOLUSDT","b":"4.0","a":"4.1"}}`,
	}

	var handshakes atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if strings.Contains(string(msg), "SUBSCRIBE") {
			handshakes.Add(1)
		}

		for _, f := range fixtures {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	cm := newTestManager(t)
	c, err := cm.Connector("binance", domain.ConnectorParams{
		Instruments: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		Endpoint:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.Event, 16)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, out) }()

	var events []domain.Event
	timeout := time.After(5 * time.Second)
	for len(events) < 5 {
		select {
		case ev := <-out:
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("got %d events, expected 5", len(events))
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("connector did not stop")
	}

	assert.Equal(t, int32(1), handshakes.Load())
	assert.Equal(t, "BTCUSDT", events[0].Instrument())
	assert.Equal(t, "ETHUSDT", events[1].Instrument())
	assert.IsType(t, domain.OrderBookSnapshot{}, events[2])
	assert.Equal(t, "SOLUSDT", events[4].Instrument())
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Time(), events[i-1].Time())
	}
	assert.Empty(t, out, "malformed messages produce no events")
}

func TestStreamConnector_DialFailure(t *testing.T) {
	cm := newTestManager(t)
	c, err := cm.Connector("coinbase", domain.ConnectorParams{
		Instruments: []string{"BTC-USD"},
		Endpoint:    "ws://127.0.0.1:1",
	})
	require.NoError(t, err)

	err = c.Run(context.Background(), make(chan domain.Event, 1))
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestPollConnector_MockVenue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/mock/orderbook/BTCUSD" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"bids":[["100.0","1.0"]],"asks":[["100.1","2.0"]]}`))
	}))
	defer srv.Close()

	cm := newTestManager(t)
	c, err := cm.Connector("mock", domain.ConnectorParams{
		Instruments:  []string{"BTCUSD"},
		PollInterval: 50 * time.Millisecond,
		Endpoint:     srv.URL,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	out := make(chan domain.Event, 64)
	err = c.Run(ctx, out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(out)
	count := 0
	for ev := range out {
		snapshot, ok := ev.(domain.OrderBookSnapshot)
		require.True(t, ok)
		assert.Equal(t, []domain.PriceLevel{{Price: 100, Quantity: 1}}, snapshot.Bids)
		assert.Equal(t, []domain.PriceLevel{{Price: 100.1, Quantity: 2}}, snapshot.Asks)
		assert.NotZero(t, snapshot.Timestamp)
		count++
	}
	assert.GreaterOrEqual(t, count, 3)
}

func TestPollConnector_ContinuesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	poll := func(ctx context.Context, instrument string) (domain.Event, error) {
		if instrument == "BAD" {
			return nil, domain.ErrParse
		}
		if calls.Add(1) == 1 {
			return nil, domain.ErrNetwork
		}
		return domain.Tick{Exchange: domain.ExchangeMock, Pair: instrument, Bid: 1, Ask: 2}, nil
	}

	c := NewPollConnector(domain.ExchangeMock, domain.ConnectorParams{
		Instruments:  []string{"BAD", "GOOD"},
		PollInterval: 10 * time.Millisecond,
	}, poll, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan domain.Event, 1)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, out) }()

	select {
	case ev := <-out:
		assert.Equal(t, "GOOD", ev.Instrument())
	case <-time.After(5 * time.Second):
		t.Fatal("no event after failed polls")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
