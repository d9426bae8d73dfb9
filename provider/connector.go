package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/spooky-finn/marketbus/domain"
)

// DefaultPollInterval applies when a polling connector is started without an interval.
const DefaultPollInterval = 5 * time.Second

// Connector owns one venue session. Run returns when the session ends or ctx is done;
// restarting it is the caller's decision.
type Connector interface {
	Venue() domain.Exchange
	Run(ctx context.Context, out chan<- domain.Event) error
}

func emit(ctx context.Context, out chan<- domain.Event, ev domain.Event) error {
	select {
	case out <- ev:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", domain.ErrChannelClosed, ctx.Err())
	}
}

func validate(ev domain.Event) error {
	switch e := ev.(type) {
	case domain.Tick:
		return e.Validate()
	case domain.OrderBookSnapshot:
		if e.Pair == "" {
			return fmt.Errorf("%w: snapshot without pair", domain.ErrParse)
		}
	}
	return nil
}
