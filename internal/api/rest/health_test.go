package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lanepoint/realtime-gateway/internal/gateway"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
	"github.com/lanepoint/realtime-gateway/internal/metrics"
)

type stubProbe struct{ up bool }

func (p stubProbe) Connected() bool { return p.up }

func newHealthHub(t *testing.T) *gateway.Hub {
	t.Helper()
	cfg := &config.GatewayConfig{
		MaxConnectionsPerOrg: 5,
		PingInterval:         time.Minute,
		PongTimeout:          2 * time.Minute,
		RateLimitMax:         10,
		RateLimitWindow:      time.Minute,
		SendBufferSize:       16,
		MaxMessageSize:       1024,
		WriteTimeout:         time.Second,
	}
	return gateway.NewHub(cfg, nil, metrics.NewNop(), zaptest.NewLogger(t))
}

func getHealth(t *testing.T, h *HealthHandler) healthResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHealth_AllUp(t *testing.T) {
	h := NewHealthHandler(newHealthHub(t), stubProbe{up: true}, stubProbe{up: true})
	resp := getHealth(t, h)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Connections.Total)
	assert.NotNil(t, resp.Connections.PerOrganization)
	assert.True(t, resp.Backplane.Connected)
	assert.True(t, resp.Bus.Connected)
}

func TestHealth_DegradedWhenBackplaneDown(t *testing.T) {
	h := NewHealthHandler(newHealthHub(t), stubProbe{up: false}, stubProbe{up: true})
	resp := getHealth(t, h)
	assert.Equal(t, "degraded", resp.Status)
	assert.False(t, resp.Backplane.Connected)
}

func TestHealth_DegradedWhenBusDown(t *testing.T) {
	h := NewHealthHandler(newHealthHub(t), stubProbe{up: true}, stubProbe{up: false})
	resp := getHealth(t, h)
	assert.Equal(t, "degraded", resp.Status)
}
