package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lanepoint/realtime-gateway/internal/gateway"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
	"github.com/lanepoint/realtime-gateway/internal/metrics"
)

// Server is the gateway's HTTP face: the websocket endpoint, the health
// probe and the metrics scrape target.
type Server struct {
	cfg        *config.ServerConfig
	httpServer *http.Server
	hub        *gateway.Hub
	logger     *zap.Logger
}

func NewServer(
	cfg *config.ServerConfig,
	hub *gateway.Hub,
	verifier IdentityVerifier,
	backplane, bus ConnectivityProbe,
	reg *metrics.Registry,
	promRegistry *prometheus.Registry,
	logger *zap.Logger,
) *Server {
	wsHandler := NewWebSocketHandler(hub, verifier, cfg, reg, logger)
	handshakeLimit := NewHandshakeLimiter(cfg.HandshakePerSecond, cfg.HandshakeBurst)

	mux := http.NewServeMux()
	mux.Handle("/ws", Chain(wsHandler, handshakeLimit.Middleware()))
	mux.Handle("/health", NewHealthHandler(hub, backplane, bus))
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      Chain(mux, LoggingMiddleware(logger)),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		hub:    hub,
		logger: logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown closes every live client and drains the listener within the
// configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	return s.httpServer.Shutdown(ctx)
}
