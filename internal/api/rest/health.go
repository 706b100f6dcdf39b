package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lanepoint/realtime-gateway/internal/gateway"
)

// ConnectivityProbe reports whether an external dependency currently holds a
// live connection.
type ConnectivityProbe interface {
	Connected() bool
}

// HealthHandler reports process status plus current connection counts, total
// and per organization. A lost backplane or bus subscription degrades the
// status without failing the probe: the instance still serves its local
// connections.
type HealthHandler struct {
	hub       *gateway.Hub
	backplane ConnectivityProbe
	bus       ConnectivityProbe
	startTime time.Time
}

type healthResponse struct {
	Status      string            `json:"status"`
	Uptime      string            `json:"uptime"`
	Connections healthConnections `json:"connections"`
	Backplane   healthDependency  `json:"backplane"`
	Bus         healthDependency  `json:"bus"`
}

type healthConnections struct {
	Total           int            `json:"total"`
	PerOrganization map[string]int `json:"perOrganization"`
}

type healthDependency struct {
	Connected bool `json:"connected"`
}

func NewHealthHandler(hub *gateway.Hub, backplane, bus ConnectivityProbe) *HealthHandler {
	return &HealthHandler{hub: hub, backplane: backplane, bus: bus, startTime: time.Now()}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	total, perOrg := h.hub.ConnectionCounts()
	if perOrg == nil {
		perOrg = map[string]int{}
	}

	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
		Connections: healthConnections{
			Total:           total,
			PerOrganization: perOrg,
		},
		Backplane: healthDependency{Connected: h.backplane.Connected()},
		Bus:       healthDependency{Connected: h.bus.Connected()},
	}
	if !resp.Backplane.Connected || !resp.Bus.Connected {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
