package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/domain"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
	"github.com/spooky-finn/marketbus/logger"
)

// DefaultCapacity is the per-subscriber ring size.
const DefaultCapacity = 1024

var ErrClosed = errors.New("bus: closed")

// LagError reports events dropped from a receiver's ring since its previous Recv.
type LagError struct {
	Skipped uint64
}

func (e *LagError) Error() string {
	return fmt.Sprintf("bus: receiver lagged, %d events skipped", e.Skipped)
}

type Option func(*Bus)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// Bus fans every published event out to all current receivers.
// Publish never blocks: a full receiver loses its oldest unread event instead.
type Bus struct {
	capacity int
	logger   *zap.Logger

	mu        sync.Mutex
	receivers map[uint64]*Receiver
	nextID    uint64
	closed    bool

	// copy-on-write view read by Publish without taking mu
	snapshot atomic.Pointer[[]*Receiver]
}

func New(capacity int, opts ...Option) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	b := &Bus{
		capacity:  capacity,
		receivers: make(map[uint64]*Receiver),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Named("bus")
	}

	empty := make([]*Receiver, 0)
	b.snapshot.Store(&empty)
	return b
}

func (b *Bus) Capacity() int {
	return b.capacity
}

// Publish delivers ev to every receiver subscribed before the call and returns how many there were.
// With no receivers the event is discarded.
func (b *Bus) Publish(ev domain.Event) int {
	receivers := *b.snapshot.Load()
	for _, r := range receivers {
		r.push(ev)
	}

	promclient.EventsPublished.WithLabelValues(ev.Venue().String(), domain.Kind(ev)).Inc()
	return len(receivers)
}

// Subscribe registers a receiver that sees events published from now on. History is not replayed.
func (b *Bus) Subscribe() *Receiver {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	r := &Receiver{
		id:       b.nextID,
		bus:      b,
		capacity: b.capacity,
		notify:   make(chan struct{}, 1),
	}

	if b.closed {
		r.closed = true
		return r
	}

	b.receivers[r.id] = r
	b.refresh()
	promclient.Subscribers.Inc()

	return r
}

func (b *Bus) SubscriberCount() int {
	return len(*b.snapshot.Load())
}

// Forward republishes events from a connector's private channel in order.
// It returns when in is closed or ctx is done.
func (b *Bus) Forward(ctx context.Context, in <-chan domain.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			b.Publish(ev)
		}
	}
}

// Close detaches every receiver. Receivers drain what they already hold, then get ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	receivers := b.receivers
	b.receivers = make(map[uint64]*Receiver)
	b.refresh()
	b.mu.Unlock()

	for _, r := range receivers {
		r.shutdown(false)
		promclient.Subscribers.Dec()
	}

	b.logger.Debug("bus closed", zap.Int("receivers", len(receivers)))
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.receivers[id]; !ok {
		return
	}
	delete(b.receivers, id)
	b.refresh()
	promclient.Subscribers.Dec()
}

// refresh must be called with mu held.
func (b *Bus) refresh() {
	view := make([]*Receiver, 0, len(b.receivers))
	for _, r := range b.receivers {
		view = append(view, r)
	}
	b.snapshot.Store(&view)
}

// Receiver is one subscriber's bounded ring. It is meant for a single consuming goroutine.
type Receiver struct {
	id       uint64
	bus      *Bus
	capacity int

	mu      sync.Mutex
	queue   deque.Deque[domain.Event]
	skipped uint64
	closed  bool

	notify chan struct{}
}

func (r *Receiver) ID() uint64 {
	return r.id
}

func (r *Receiver) push(ev domain.Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}

	dropped := false
	if r.queue.Len() >= r.capacity {
		r.queue.PopFront()
		r.skipped++
		dropped = true
	}
	r.queue.PushBack(ev)
	r.mu.Unlock()

	if dropped {
		promclient.SubscriberLagDropped.Inc()
	}
	r.wake()
}

// Recv blocks until an event is available, the receiver lagged, it was closed, or ctx is done.
// After a *LagError the next call returns the oldest event still retained.
func (r *Receiver) Recv(ctx context.Context) (domain.Event, error) {
	for {
		r.mu.Lock()
		if r.skipped > 0 {
			skipped := r.skipped
			r.skipped = 0
			r.mu.Unlock()
			return nil, &LagError{Skipped: skipped}
		}
		if r.queue.Len() > 0 {
			ev := r.queue.PopFront()
			r.mu.Unlock()
			return ev, nil
		}
		if r.closed {
			r.mu.Unlock()
			return nil, ErrClosed
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len reports the number of buffered, unread events.
func (r *Receiver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len()
}

// Close unsubscribes the receiver and discards its buffered events.
func (r *Receiver) Close() {
	r.bus.remove(r.id)
	r.shutdown(true)
}

func (r *Receiver) shutdown(discard bool) {
	r.mu.Lock()
	r.closed = true
	if discard {
		r.queue.Clear()
		r.skipped = 0
	}
	r.mu.Unlock()
	r.wake()
}

func (r *Receiver) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
