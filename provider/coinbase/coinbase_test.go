package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/marketbus/domain"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name        string
		msg         string
		expected    []domain.Event
		expectError bool
	}{
		{
			name: "Ticker",
			msg:  `{"type":"ticker","sequence":1,"product_id":"BTC-USD","price":"100.5","best_bid":"100.4","best_ask":"100.6","time":"2024-01-01T00:00:00Z"}`,
			expected: []domain.Event{domain.Tick{
				Exchange: domain.ExchangeCoinbase, Pair: "BTC-USD", Bid: 100.4, Ask: 100.6,
			}},
		},
		{
			name: "TickerMissingSide",
			msg:  `{"type":"ticker","product_id":"BTC-USD","best_bid":"100.4"}`,
			expected: []domain.Event{domain.Tick{
				Exchange: domain.ExchangeCoinbase, Pair: "BTC-USD", Bid: 100.4,
			}},
		},
		{name: "Subscriptions", msg: `{"type":"subscriptions","channels":[{"name":"ticker","product_ids":["BTC-USD"]}]}`},
		{name: "Heartbeat", msg: `{"type":"heartbeat","sequence":90,"product_id":"BTC-USD"}`},
		{name: "Error", msg: `{"type":"error","message":"Failed to subscribe","reason":"BTC-XYZ is not a valid product"}`, expectError: true},
		{name: "Unknown", msg: `{"type":"l2update"}`, expectError: true},
		{name: "Garbage", msg: `}{`, expectError: true},
		{name: "BadPrice", msg: `{"type":"ticker","product_id":"BTC-USD","best_bid":"x","best_ask":"1"}`, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := ParseMessage([]byte(tt.msg))
			if tt.expectError {
				assert.ErrorIs(t, err, domain.ErrParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, events)
		})
	}
}

func TestSessionHandshake(t *testing.T) {
	api := NewCoinbaseStreamAPI("")
	assert.Equal(t, DefaultStreamEndpoint, api.Endpoint())

	handshake := api.NewSession([]string{"BTC-USD", "ETH-USD"}, 5).Handshake()
	require.Len(t, handshake, 1)
	assert.Equal(t, SubscribeRequest{
		Type:       "subscribe",
		ProductIDs: []string{"BTC-USD", "ETH-USD"},
		Channels:   []string{"ticker"},
	}, handshake[0])
}

func TestCoinbaseSyncAPI_FetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/BTC-USD/book", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("level"))
		_, _ = w.Write([]byte(`{
			"sequence": 3,
			"bids": [["100.1","1.5",3],["100.3","0.5",1],["100.2","2",1],["99","1",1],["98","1",1],["97","1",1]],
			"asks": [["101","1",1],["100.5","2",2]]
		}`))
	}))
	defer srv.Close()

	symbol, err := domain.NewMarketSymbol("btc", "usd")
	require.NoError(t, err)

	snapshot, err := NewCoinbaseSyncAPI(srv.URL, srv.Client()).FetchSnapshot(context.Background(), Notation(symbol), 5)
	require.NoError(t, err)

	assert.Equal(t, "BTC-USD", snapshot.Pair)
	assert.Len(t, snapshot.Bids, 5)
	assert.Equal(t, 100.3, snapshot.Bids[0].Price)
	assert.Equal(t, []domain.PriceLevel{{Price: 100.5, Quantity: 2}, {Price: 101, Quantity: 1}}, snapshot.Asks)
}

func TestCoinbaseSyncAPI_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"NotFound"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewCoinbaseSyncAPI(srv.URL, srv.Client()).FetchSnapshot(context.Background(), "NOPE-USD", 5)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}
