package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/spooky-finn/marketbus/config"
	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/engine"
	natsclient "github.com/spooky-finn/marketbus/infrastructure/nats"
	promclient "github.com/spooky-finn/marketbus/infrastructure/prometheus"
	"github.com/spooky-finn/marketbus/logger"
	"github.com/spooky-finn/marketbus/rpc"
)

func main() {
	configFile := flag.String("config", "", "path to the yaml config")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log := logger.Init("marketbus", cfg.Log.Level)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := engine.New(cfg, log)
	defer e.Close()

	for _, c := range cfg.Connectors {
		handle, err := e.StartConnector(c.Venue, domain.ConnectorParams{
			Instruments:  c.Instruments,
			PollInterval: c.PollInterval,
			Depth:        c.Depth,
			Restart:      c.Restart,
		})
		if err != nil {
			log.Error("connector not started", zap.String("venue", c.Venue), zap.Error(err))
			continue
		}
		log.Info("connector configured", zap.String("venue", c.Venue), zap.Uint64("handle", uint64(handle)))
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.NATS.URL != "" {
		sink, err := natsclient.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log.Named("nats"))
		if err != nil {
			return err
		}
		defer sink.Close()

		sub := e.Channel(cfg.Bus.Capacity)
		g.Go(func() error {
			defer sub.Unsubscribe()
			if err := sink.Run(ctx, sub.Stream); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		return promclient.Serve(ctx, cfg.Metrics.Addr, log.Named("prometheus"))
	})

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}
	grpcServer := grpc.NewServer()
	rpc.Register(grpcServer, rpc.NewServer(e, &rpc.ValidationServiceConfig{AvailableVenues: cfg.AvailableVenues}, log.Named("rpc")))

	g.Go(func() error {
		log.Info("grpc server listening", zap.String("addr", cfg.GRPC.Addr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		// open Subscribe streams end once the bus closes
		e.Close()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	log.Info("shutting down")
	return nil
}
