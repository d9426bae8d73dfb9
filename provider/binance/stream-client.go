package binance

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/spooky-finn/marketbus/domain"
)

type WebSocketRequestModel struct {
	ReqId  int      `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

// session tracks the combined streams of one connection.
type session struct {
	streams []string
	depth   int
	reqID   int
}

func newSession(instruments []string, depth int) *session {
	levels := partialDepthLevels(depth)
	streams := make([]string, 0, len(instruments)*2)
	for _, instrument := range instruments {
		symbol := strings.ToLower(instrument)
		streams = append(streams,
			fmt.Sprintf("%s@bookTicker", symbol),
			fmt.Sprintf("%s@depth%d@100ms", symbol, levels),
		)
	}

	return &session{
		streams: streams,
		depth:   depth,
		reqID:   getRandomReqID(),
	}
}

func (s *session) Handshake() []interface{} {
	if len(s.streams) == 0 {
		return nil
	}

	return []interface{}{
		WebSocketRequestModel{
			Method: "SUBSCRIBE",
			ReqId:  s.reqID,
			Params: s.streams,
		},
	}
}

func (s *session) Parse(msg []byte) ([]domain.Event, error) {
	return parseMessage(msg, s.depth)
}

type envelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     *int64          `json:"id"`
	Error  json.RawMessage `json:"error"`
}

// ParseMessage accepts combined-stream envelopes, bare ticker objects, ticker arrays and request acks.
func ParseMessage(msg []byte) ([]domain.Event, error) {
	return parseMessage(msg, domain.DefaultDepth)
}

func parseMessage(msg []byte, depth int) ([]domain.Event, error) {
	trimmed := strings.TrimSpace(string(msg))
	if strings.HasPrefix(trimmed, "[") {
		return parseTickerArray(msg)
	}

	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("%w: binance: %v", domain.ErrParse, err)
	}

	// {"result":null,"id":123} acknowledges SUBSCRIBE
	if env.ID != nil {
		if len(env.Error) > 0 && string(env.Error) != "null" {
			return nil, fmt.Errorf("%w: binance request %d failed: %s", domain.ErrParse, *env.ID, env.Error)
		}
		return nil, nil
	}

	if env.Stream == "" {
		tick, err := parseBookTicker(msg)
		if err != nil {
			return nil, err
		}
		return []domain.Event{tick}, nil
	}

	symbol, channel, _ := strings.Cut(env.Stream, "@")
	switch {
	case channel == "bookTicker":
		tick, err := parseBookTicker(env.Data)
		if err != nil {
			return nil, err
		}
		return []domain.Event{tick}, nil
	case strings.HasPrefix(channel, "depth"):
		snapshot, err := parsePartialDepth(strings.ToUpper(symbol), env.Data, depth)
		if err != nil {
			return nil, err
		}
		return []domain.Event{snapshot}, nil
	default:
		return nil, fmt.Errorf("%w: binance: unexpected stream %q", domain.ErrParse, env.Stream)
	}
}

func getRandomReqID() int {
	min := 10000
	max := 9999999
	return min + rand.Intn(max-min)
}

func partialDepthLevels(depth int) int {
	switch {
	case depth <= 5:
		return 5
	case depth <= 10:
		return 10
	default:
		return 20
	}
}
