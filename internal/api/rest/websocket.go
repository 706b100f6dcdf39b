package rest

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "github.com/lanepoint/realtime-gateway/internal/errors"
	"github.com/lanepoint/realtime-gateway/internal/gateway"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/auth"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
	"github.com/lanepoint/realtime-gateway/internal/metrics"
)

// IdentityVerifier is the handshake's view of the auth infrastructure.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// WebSocketHandler upgrades inbound connections and walks them through the
// admission pipeline: token extraction, identity verification, organization
// ceiling, base-room join.
type WebSocketHandler struct {
	hub      *gateway.Hub
	verifier IdentityVerifier
	upgrader websocket.Upgrader
	metrics  *metrics.Registry
	logger   *zap.Logger
}

func NewWebSocketHandler(hub *gateway.Hub, verifier IdentityVerifier, cfg *config.ServerConfig, reg *metrics.Registry, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		metrics: reg,
		logger:  logger,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// Verification happens on this connection's own goroutine; a slow auth
	// service never stalls other connections. The verifier's own timeout
	// bounds the wait.
	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		h.metrics.AuthRejected.Inc()
		h.logger.Info("authentication rejected", zap.Error(err))
		gateway.RejectSocket(conn, apperrors.NewAuthFailed("authentication failed"))
		return
	}

	// Admission and base-room join; the hub owns the socket from here.
	if _, err := h.hub.Connect(conn, identity); err != nil {
		h.logger.Info("admission rejected",
			zap.String("organization_id", identity.OrganizationID), zap.Error(err))
	}
}

// bearerToken pulls the token from the Authorization header, falling back to
// the token query parameter for clients that cannot set handshake headers.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
