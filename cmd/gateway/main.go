package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lanepoint/realtime-gateway/internal/api/rest"
	"github.com/lanepoint/realtime-gateway/internal/domain/event"
	"github.com/lanepoint/realtime-gateway/internal/gateway"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/auth"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/backplane"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/bus"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
	"github.com/lanepoint/realtime-gateway/internal/metrics"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg := metrics.New(promRegistry)

	// The backplane delivers into the hub; the hub publishes through the
	// backplane. The subscription starts only after both exist.
	var hub *gateway.Hub
	bp := backplane.NewRedis(&cfg.Redis, func(bc event.Broadcast) {
		hub.DeliverLocal(bc)
	}, logger.Named("backplane"))
	hub = gateway.NewHub(&cfg.Gateway, bp, reg, logger.Named("gateway"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go bp.Run(ctx)

	consumer := bus.NewConsumer(&cfg.Bus, func(ctx context.Context, ev event.DomainEvent) error {
		bcasts, err := event.Route(ev)
		if err != nil {
			return err
		}
		for _, bc := range bcasts {
			hub.Dispatch(ctx, bc)
		}
		return nil
	}, reg, logger.Named("bus"))
	go consumer.Run(ctx)

	verifier := auth.NewVerifier(&cfg.Auth, logger.Named("auth"))
	server := rest.NewServer(&cfg.Server, hub, verifier, bp, consumer, reg, promRegistry, logger.Named("http"))

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	if err := bp.Close(); err != nil {
		logger.Warn("backplane close failed", zap.Error(err))
	}
	logger.Info("gateway stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	var zapCfg zap.Config
	if cfg.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
