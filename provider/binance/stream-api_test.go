package binance

import (
	"errors"
	"testing"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/marketbus/domain"
)

func TestParseMessage_BookTicker(t *testing.T) {
	msg := `{"stream":"bnbusdt@bookTicker","data":{"u":400900217,"s":"BNBUSDT","b":"25.35190000","B":"31.21000000","a":"25.36520000","A":"40.66000000"}}`

	events, err := ParseMessage([]byte(msg))
	require.NoError(t, err)
	require.Len(t, events, 1)

	tick, ok := events[0].(domain.Tick)
	require.True(t, ok)
	assert.Equal(t, domain.Tick{Exchange: domain.ExchangeBinance, Pair: "BNBUSDT", Bid: 25.3519, Ask: 25.3652}, tick)
}

func TestParseMessage_BareTickerAndArray(t *testing.T) {
	events, err := ParseMessage([]byte(`{"s":"BTCUSDT","b":"100.0","a":"100.5"}`))
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = ParseMessage([]byte(`[{"s":"BTCUSDT","b":"100.0","a":"100.5"},{"s":"ETHUSDT"},{"s":"ETHBTC","b":"0.05","a":"0.051"}]`))
	require.NoError(t, err)
	require.Len(t, events, 2, "array entries without quotes are skipped")
	assert.Equal(t, "ETHBTC", events[1].Instrument())
}

func TestParseMessage_PartialDepth(t *testing.T) {
	msg := `{"stream":"btcusdt@depth5@100ms","data":{"lastUpdateId":160,"bids":[["99.0","1"],["100.0","2"]],"asks":[["101.0","3"],["100.5","4"]]}}`

	events, err := ParseMessage([]byte(msg))
	require.NoError(t, err)
	require.Len(t, events, 1)

	snapshot, ok := events[0].(domain.OrderBookSnapshot)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", snapshot.Pair)
	assert.Equal(t, []domain.PriceLevel{{Price: 100, Quantity: 2}, {Price: 99, Quantity: 1}}, snapshot.Bids)
	assert.Equal(t, []domain.PriceLevel{{Price: 100.5, Quantity: 4}, {Price: 101, Quantity: 3}}, snapshot.Asks)
}

func TestParseMessage_Ack(t *testing.T) {
	events, err := ParseMessage([]byte(`{"result":null,"id":312}`))
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = ParseMessage([]byte(`{"error":{"code":2,"msg":"Invalid request"},"id":312}`))
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestParseMessage_Robustness(t *testing.T) {
	fixtures := []struct {
		msg   string
		valid bool
	}{
		{`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"1.0","a":"1.1"}}`, true},
		{`{"stream":"btcusdt@bookTicker","data":{"s":"BTCUSDT","b":"abc","a":"1.1"}}`, false},
		{`{"stream":"ethusdt@bookTicker","data":{"s":"ETHUSDT","b":"2.0","a":"2.1"}}`, true},
		{`{"stream":"ethusdt@bookTicker","data":`, false},
		{`{"stream":"btcusdt@depth5@100ms","data":{"bids":[["1","1"]],"asks":[["2","1"]]}}`, true},
		{`{"stream":"btcusdt@depth5@100ms","data":{"bids":[["1"]],"asks":[]}}`, false},
		{`{"s":"BTCUSDT","b":"3.0","a":"3.1"}`, true},
		{`not json at all`, false},
		{`{"stream":"btcusdt@kline_1m","data":{}}`, false},
		{`{"stream":"solusdt@bookTicker","data":{"s":"SOLUSDT","b":"4.0","a":"4.1"}}`, true},
	}

	parsed, valid := 0, 0
	for _, f := range fixtures {
		if f.valid {
			valid++
		}

		events, err := ParseMessage([]byte(f.msg))
		if f.valid {
			require.NoError(t, err, f.msg)
			parsed += len(events)
		} else {
			assert.True(t, errors.Is(err, domain.ErrParse), f.msg)
			assert.Empty(t, events)
		}
	}

	assert.Equal(t, len(fixtures)/2, valid)
	assert.Equal(t, valid, parsed, "exactly the well-formed half yields events")
}

func TestSessionHandshake(t *testing.T) {
	api := NewBinanceStreamAPI("")
	assert.Equal(t, DefaultStreamEndpoint, api.Endpoint())

	s := api.NewSession([]string{"BTCUSDT"}, 10)
	handshake := s.Handshake()
	require.Len(t, handshake, 1)

	raw, err := json.Marshal(handshake[0])
	require.NoError(t, err)

	var req WebSocketRequestModel
	require.NoError(t, json.Unmarshal(raw, &req))
	assert.Equal(t, "SUBSCRIBE", req.Method)
	assert.Equal(t, []string{"btcusdt@bookTicker", "btcusdt@depth10@100ms"}, req.Params)
	assert.GreaterOrEqual(t, req.ReqId, 10000)

	assert.Empty(t, api.NewSession(nil, 5).Handshake())
}
