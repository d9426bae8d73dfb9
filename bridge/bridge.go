package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/bus"
	"github.com/spooky-finn/marketbus/domain"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
	"github.com/spooky-finn/marketbus/logger"
)

// Callback is invoked once per event, in publish order. A returned error is logged and
// counted, it does not end the subscription.
type Callback func(ev domain.Event) error

// LagHandler is told how many events a slow subscription lost.
type LagHandler func(skipped uint64)

type SubscribeOption func(*Subscription)

func WithLagHandler(fn LagHandler) SubscribeOption {
	return func(s *Subscription) {
		s.onLag = fn
	}
}

// Bridge turns bus receivers into callback driven subscriptions.
type Bridge struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu   sync.Mutex
	subs map[string]*Subscription
}

func New(b *bus.Bus, l *zap.Logger) *Bridge {
	if l == nil {
		l = logger.Named("bridge")
	}
	return &Bridge{
		bus:    b,
		logger: l,
		subs:   make(map[string]*Subscription),
	}
}

type Subscription struct {
	id       string
	bridge   *Bridge
	receiver *bus.Receiver
	cb       Callback
	onLag    LagHandler
	logger   *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
	done      chan struct{}
}

// Subscribe starts delivering events published from now on to cb.
func (b *Bridge) Subscribe(cb Callback, opts ...SubscribeOption) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	s := &Subscription{
		id:       id,
		bridge:   b,
		receiver: b.bus.Subscribe(),
		cb:       cb,
		logger:   b.logger.With(zap.String("subscription", id)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	go s.loop()
	return s
}

// Unsubscribe cancels the subscription with the given id. It reports whether it was active.
func (b *Bridge) Unsubscribe(id string) bool {
	b.mu.Lock()
	s, ok := b.subs[id]
	b.mu.Unlock()

	if !ok {
		return false
	}
	return s.Unsubscribe()
}

// Channel is the pull style subscription. When the caller falls behind by more than buffer
// events the oldest buffered ones are dropped, and Lagged reports how many were lost so far.
// Unsubscribe closes the stream.
func (b *Bridge) Channel(buffer int) *domain.Subscription[domain.Event] {
	if buffer <= 0 {
		buffer = 1
	}
	stream := make(chan domain.Event, buffer)

	var lagged atomic.Uint64
	sub := b.Subscribe(func(ev domain.Event) error {
		for {
			select {
			case stream <- ev:
				return nil
			default:
			}

			select {
			case <-stream:
				lagged.Add(1)
				promclient.SubscriberLagDropped.Inc()
			default:
			}
		}
	}, WithLagHandler(func(skipped uint64) {
		lagged.Add(skipped)
	}))

	var once sync.Once
	closeStream := func() { once.Do(func() { close(stream) }) }
	go func() {
		<-sub.Done()
		closeStream()
	}()

	return &domain.Subscription[domain.Event]{
		Stream: stream,
		Topic:  sub.ID(),
		Lagged: lagged.Load,
		Unsubscribe: func() {
			sub.Unsubscribe()
			<-sub.Done()
			closeStream()
		},
	}
}

func (b *Bridge) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everything.
func (b *Bridge) Close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (b *Bridge) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the delivery loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops delivery. Once it returns no new callback starts; one already running may
// still finish. Calling it from inside the callback is allowed. The second call returns false.
func (s *Subscription) Unsubscribe() bool {
	if s.cancelled.Swap(true) {
		return false
	}
	s.cancel()
	s.receiver.Close()
	s.bridge.remove(s.id)
	return true
}

func (s *Subscription) loop() {
	defer close(s.done)
	defer s.bridge.remove(s.id)

	for {
		ev, err := s.receiver.Recv(s.ctx)
		if err != nil {
			var lag *bus.LagError
			if errors.As(err, &lag) {
				s.lagged(lag.Skipped)
				continue
			}
			if errors.Is(err, bus.ErrClosed) && !s.cancelled.Load() {
				s.logger.Debug("bus closed, subscription ended")
			}
			return
		}

		if s.cancelled.Load() {
			return
		}
		s.invoke(ev)
	}
}

func (s *Subscription) invoke(ev domain.Event) {
	defer func() {
		if p := recover(); p != nil {
			s.failed(ev, fmt.Errorf("callback panic: %v", p))
		}
	}()

	if err := s.cb(ev); err != nil {
		s.failed(ev, err)
	}
}

func (s *Subscription) failed(ev domain.Event, err error) {
	promclient.CallbackFailures.Inc()
	s.logger.Warn("callback failed",
		zap.String("venue", ev.Venue().String()),
		zap.String("instrument", ev.Instrument()),
		zap.Error(err),
	)
}

func (s *Subscription) lagged(skipped uint64) {
	s.logger.Warn("subscription lagged", zap.Uint64("skipped", skipped))
	if s.onLag != nil {
		s.onLag(skipped)
	}
}
