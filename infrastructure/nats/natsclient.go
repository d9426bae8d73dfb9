package natsclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/domain"
)

const DefaultSubjectPrefix = "marketbus"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink relays bus events to NATS. It is a live mirror, nothing is persisted or replayed.
type Sink struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

func Connect(url string, prefix string, logger *zap.Logger) (*Sink, error) {
	nc, err := nats.Connect(url,
		nats.Name("marketbus"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	s := NewSink(nc, prefix, logger)
	s.conn = nc
	return s, nil
}

func NewSink(pub Publisher, prefix string, logger *zap.Logger) *Sink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &Sink{
		pub:    pub,
		prefix: prefix,
		logger: logger,
	}
}

type envelope struct {
	Kind  string       `json:"kind"`
	Event domain.Event `json:"event"`
}

var subjectReplacer = strings.NewReplacer(".", "_", "/", "_", ":", "_", " ", "_", "*", "_", ">", "_")

// Subject is <prefix>.<exchange>.<tick|book>.<pair>, with the pair made token safe.
func Subject(prefix string, ev domain.Event) string {
	return strings.Join([]string{
		prefix,
		ev.Venue().String(),
		domain.Kind(ev),
		subjectReplacer.Replace(ev.Instrument()),
	}, ".")
}

func Encode(prefix string, ev domain.Event) (string, []byte, error) {
	payload, err := json.Marshal(envelope{Kind: domain.Kind(ev), Event: ev})
	if err != nil {
		return "", nil, fmt.Errorf("encode %s event: %w", domain.Kind(ev), err)
	}
	return Subject(prefix, ev), payload, nil
}

// Run publishes every event from stream until it is closed or ctx is done.
// Failed publishes are logged and skipped.
func (s *Sink) Run(ctx context.Context, stream <-chan domain.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return nil
			}

			subject, payload, err := Encode(s.prefix, ev)
			if err == nil {
				err = s.pub.Publish(subject, payload)
			}
			if err != nil {
				s.logger.Warn("nats publish failed", zap.String("subject", subject), zap.Error(err))
			}
		}
	}
}

func (s *Sink) Close() {
	if s.conn != nil {
		_ = s.conn.Drain()
		s.conn.Close()
	}
}
