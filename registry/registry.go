package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/bus"
	"github.com/spooky-finn/marketbus/domain"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
	"github.com/spooky-finn/marketbus/logger"
	"github.com/spooky-finn/marketbus/provider"
)

const (
	DefaultInboundCapacity = 256

	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

var ErrClosed = errors.New("registry: closed")

// Handle identifies one started connector. Handles are never reused.
type Handle uint64

// Factory resolves a venue name to a connector. provider.ConnectionManager implements it.
type Factory interface {
	Connector(venue string, params domain.ConnectorParams) (provider.Connector, error)
}

type State int

const (
	Running State = iota
	Exited
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "exited"
}

type Status struct {
	Handle    Handle
	Venue     domain.Exchange
	State     State
	Restarts  int
	StartedAt time.Time
	// Err is the error the connector last returned, if any.
	Err error
}

type Option func(*Registry)

func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

func WithInboundCapacity(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.inbound = n
		}
	}
}

func WithBackoff(min, max time.Duration) Option {
	return func(r *Registry) {
		r.minBackoff = min
		r.maxBackoff = max
	}
}

// Registry owns the running connectors of one engine and is the only record of which are alive.
type Registry struct {
	bus     *bus.Bus
	factory Factory
	logger  *zap.Logger

	inbound    int
	minBackoff time.Duration
	maxBackoff time.Duration

	mu      sync.Mutex
	last    Handle
	entries map[Handle]*entry
	closed  bool
}

type entry struct {
	venue     domain.Exchange
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
	release   sync.Once

	mu       sync.Mutex
	state    State
	restarts int
	err      error
}

func New(b *bus.Bus, factory Factory, opts ...Option) *Registry {
	r := &Registry{
		bus:        b,
		factory:    factory,
		inbound:    DefaultInboundCapacity,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
		entries:    make(map[Handle]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Named("registry")
	}
	return r
}

// Start resolves and launches a connector, returning once it is recorded.
// Resolution errors such as domain.ErrUnknownVenue are returned synchronously.
func (r *Registry) Start(venue string, params domain.ConnectorParams) (Handle, error) {
	conn, err := r.factory.Connector(venue, params)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		venue:     conn.Venue(),
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return 0, ErrClosed
	}
	r.last++
	handle := r.last
	r.entries[handle] = e
	r.mu.Unlock()

	promclient.ConnectorsRunning.Inc()

	in := make(chan domain.Event, r.inbound)
	go r.bus.Forward(ctx, in)
	go r.run(ctx, handle, e, conn, params.Restart, in)

	r.logger.Info("connector started",
		zap.Uint64("handle", uint64(handle)),
		zap.String("venue", e.venue.String()),
		zap.Strings("instruments", params.Instruments),
	)
	return handle, nil
}

// Stop cancels the connector and forgets the handle. It does not wait for the task to exit.
// Stopping an unknown or already stopped handle returns false.
func (r *Registry) Stop(handle Handle) bool {
	r.mu.Lock()
	e, ok := r.entries[handle]
	if ok {
		delete(r.entries, handle)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	e.cancel()
	e.notRunning()
	r.logger.Info("connector stopped", zap.Uint64("handle", uint64(handle)), zap.String("venue", e.venue.String()))
	return true
}

// StopAll stops every connector and refuses further starts.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	stopped := 0
	for _, h := range r.Handles() {
		if r.Stop(h) {
			stopped++
		}
	}
	return stopped
}

func (r *Registry) Status(handle Handle) (Status, error) {
	r.mu.Lock()
	e, ok := r.entries[handle]
	r.mu.Unlock()

	if !ok {
		return Status{}, fmt.Errorf("%w: %d", domain.ErrUnknownHandle, handle)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Handle:    handle,
		Venue:     e.venue,
		State:     e.state,
		Restarts:  e.restarts,
		StartedAt: e.startedAt,
		Err:       e.err,
	}, nil
}

// Done returns a channel closed when the connector task has exited.
func (r *Registry) Done(handle Handle) (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %d", domain.ErrUnknownHandle, handle)
	}
	return e.done, nil
}

// Handles lists live handles in ascending order.
func (r *Registry) Handles() []Handle {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.entries))
	for h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

func (r *Registry) run(ctx context.Context, handle Handle, e *entry, conn provider.Connector, restart bool, in chan domain.Event) {
	defer close(e.done)
	defer close(in)

	log := r.logger.With(zap.Uint64("handle", uint64(handle)), zap.String("venue", e.venue.String()))
	b := &backoff.Backoff{
		Min:    r.minBackoff,
		Max:    r.maxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for {
		started := time.Now()
		err := runSafe(ctx, conn, in)
		if ctx.Err() != nil {
			e.exit(nil)
			return
		}

		if !restart {
			log.Warn("connector exited", zap.Error(err))
			e.exit(err)
			e.notRunning()
			return
		}

		if time.Since(started) > b.Max {
			b.Reset()
		}
		delay := b.Duration()
		e.restarted(err)
		promclient.ConnectorRestarts.WithLabelValues(e.venue.String()).Inc()
		log.Warn("connector exited, restarting", zap.Error(err), zap.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			e.exit(nil)
			return
		case <-timer.C:
		}
	}
}

// runSafe keeps a panicking connector from taking the process down with it.
func runSafe(ctx context.Context, conn provider.Connector, in chan<- domain.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("connector panic: %v", p)
		}
	}()
	return conn.Run(ctx, in)
}

func (e *entry) exit(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Exited
	if err != nil {
		e.err = err
	}
}

// notRunning takes the entry off the running gauge, at most once.
func (e *entry) notRunning() {
	e.release.Do(promclient.ConnectorsRunning.Dec)
}

func (e *entry) restarted(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restarts++
	e.err = err
}
