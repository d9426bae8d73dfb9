package provider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-finn/marketbus/domain"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
)

// PollFunc performs one request for one instrument.
type PollFunc func(ctx context.Context, instrument string) (domain.Event, error)

// PollConnector is the polling variant. A failed request is logged and skipped.
type PollConnector struct {
	exchange    domain.Exchange
	instruments []string
	interval    time.Duration
	poll        PollFunc

	stamper *domain.Stamper
	logger  *zap.Logger
}

func NewPollConnector(exchange domain.Exchange, params domain.ConnectorParams, poll PollFunc, logger *zap.Logger) *PollConnector {
	interval := params.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &PollConnector{
		exchange:    exchange,
		instruments: params.Instruments,
		interval:    interval,
		poll:        poll,
		stamper:     domain.NewStamper(),
		logger:      logger.With(zap.String("venue", exchange.String())),
	}
}

func (c *PollConnector) Venue() domain.Exchange {
	return c.exchange
}

func (c *PollConnector) Interval() time.Duration {
	return c.interval
}

func (c *PollConnector) Run(ctx context.Context, out chan<- domain.Event) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("polling started", zap.Duration("interval", c.interval), zap.Strings("instruments", c.instruments))

	for {
		if err := c.pollOnce(ctx, out); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *PollConnector) pollOnce(ctx context.Context, out chan<- domain.Event) error {
	for _, instrument := range c.instruments {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ev, err := c.poll(ctx, instrument)
		if err == nil && ev == nil {
			continue
		}
		if err == nil {
			err = validate(ev)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.failed(instrument, err)
			continue
		}

		if err := emit(ctx, out, domain.Stamp(ev, c.stamper.Next())); err != nil {
			return err
		}
	}
	return nil
}

func (c *PollConnector) failed(instrument string, err error) {
	if errors.Is(err, domain.ErrParse) {
		promclient.ParseErrors.WithLabelValues(c.exchange.String()).Inc()
	} else {
		promclient.NetworkErrors.WithLabelValues(c.exchange.String()).Inc()
	}
	c.logger.Warn("poll failed", zap.String("instrument", instrument), zap.Error(err))
}
