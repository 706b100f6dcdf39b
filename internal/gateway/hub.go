package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lanepoint/realtime-gateway/internal/domain/event"
	"github.com/lanepoint/realtime-gateway/internal/domain/room"
	apperrors "github.com/lanepoint/realtime-gateway/internal/errors"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/auth"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
	"github.com/lanepoint/realtime-gateway/internal/metrics"
)

// Publisher is the backplane side the hub publishes through. Connected
// reports whether the subscription that echoes publishes back to this
// instance is currently live.
type Publisher interface {
	Publish(ctx context.Context, bc event.Broadcast) error
	Connected() bool
}

// Hub tracks this instance's connections and their room memberships. Room
// membership is strictly process-local; cross-instance reach comes from the
// backplane rebroadcasting to every instance's hub.
type Hub struct {
	cfg       *config.GatewayConfig
	admission *Admission
	publisher Publisher
	metrics   *metrics.Registry
	logger    *zap.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	rooms   map[room.Room]map[uuid.UUID]*Client
}

func NewHub(cfg *config.GatewayConfig, publisher Publisher, reg *metrics.Registry, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:       cfg,
		admission: NewAdmission(cfg.MaxConnectionsPerOrg),
		publisher: publisher,
		metrics:   reg,
		logger:    logger,
		clients:   make(map[uuid.UUID]*Client),
		rooms:     make(map[room.Room]map[uuid.UUID]*Client),
	}
}

// Connect admits an already-authenticated socket: reserves the organization
// slot, joins the base rooms, starts the pumps and the heartbeat, and sends
// the connected frame. On admission failure the socket is told why and closed.
func (h *Hub) Connect(conn *websocket.Conn, identity auth.Identity) (*Client, error) {
	if err := h.admission.Admit(identity.OrganizationID); err != nil {
		h.metrics.AdmissionRejected.Inc()
		RejectSocket(conn, err.(*apperrors.AppError))
		return nil, err
	}

	c := newClient(conn, identity, h)

	// Buffered before the client joins any room, so it is always the first
	// frame on the wire even when a broadcast races the registration.
	c.enqueue(marshalFrame(connectedFrame{
		Type:           frameConnected,
		UserID:         identity.UserID,
		OrganizationID: identity.OrganizationID,
		Timestamp:      time.Now().UTC(),
	}))

	h.mu.Lock()
	h.clients[c.ID] = c
	for _, r := range room.BaseRooms(c.caller()) {
		h.joinLocked(c, r)
	}
	h.mu.Unlock()

	h.metrics.ConnectionsTotal.Inc()
	h.metrics.ConnectionsPerOrg.WithLabelValues(identity.OrganizationID).Inc()

	c.hb.start()
	go c.writePump()
	go c.readPump()

	h.logger.Info("client connected",
		zap.String("client_id", c.ID.String()),
		zap.String("user_id", identity.UserID),
		zap.String("organization_id", identity.OrganizationID),
		zap.Int("org_connections", h.admission.Count(identity.OrganizationID)))
	return c, nil
}

// unregister releases everything the hub holds for c. Reached only through
// Client.close, which guarantees the exactly-once discipline.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	for r, members := range h.rooms {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, r)
		}
	}
	h.mu.Unlock()

	h.admission.Release(c.Identity.OrganizationID)
	h.metrics.ConnectionsTotal.Dec()
	h.metrics.ConnectionsPerOrg.WithLabelValues(c.Identity.OrganizationID).Dec()

	h.logger.Info("client disconnected",
		zap.String("client_id", c.ID.String()),
		zap.String("user_id", c.Identity.UserID),
		zap.String("organization_id", c.Identity.OrganizationID))
}

func (h *Hub) join(c *Client, r room.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(c, r)
}

func (h *Hub) joinLocked(c *Client, r room.Room) {
	members, ok := h.rooms[r]
	if !ok {
		members = make(map[uuid.UUID]*Client)
		h.rooms[r] = members
	}
	members[c.ID] = c
}

func (h *Hub) leave(c *Client, r room.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[r]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, r)
		}
	}
}

// Rooms returns the rooms c currently belongs to.
func (h *Hub) Rooms(c *Client) []room.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []room.Room
	for r, members := range h.rooms {
		if _, ok := members[c.ID]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Dispatch pushes one broadcast through the backplane so every instance,
// this one included, delivers it to its local members. When the backplane is
// down the broadcast degrades to local-only delivery; cross-instance fan-out
// resumes when the backplane reconnects.
func (h *Hub) Dispatch(ctx context.Context, bc event.Broadcast) {
	h.metrics.BroadcastsPublished.WithLabelValues(bc.Channel).Inc()
	if h.publisher == nil {
		h.DeliverLocal(bc)
		return
	}

	// With the subscription down this instance never hears its own publish
	// back, even when the publish itself succeeds. Deliver locally as well;
	// a duplicate during the reconnect race is tolerable under
	// at-least-once.
	deliverLocal := !h.publisher.Connected()
	if err := h.publisher.Publish(ctx, bc); err != nil {
		h.metrics.BackplaneDrops.Inc()
		h.logger.Warn("backplane publish failed, delivering locally only", zap.Error(err))
		deliverLocal = true
	}
	if deliverLocal {
		h.DeliverLocal(bc)
	}
}

// DeliverLocal writes one broadcast to every local member of its room. This
// is the backplane subscription's entry point back into the instance.
func (h *Hub) DeliverLocal(bc event.Broadcast) {
	var frame []byte
	switch bc.Channel {
	case event.ChannelNewMessage:
		frame = marshalFrame(newMessageFrame{
			Type:      frameNewMessage,
			Message:   bc.Payload,
			Timestamp: time.Now().UTC(),
		})
	default:
		frame = marshalFrame(eventFrame{
			Type:      frameEvent,
			Data:      bc.Payload,
			Timestamp: time.Now().UTC(),
		})
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[bc.Room]))
	for _, c := range h.rooms[bc.Room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if c.enqueue(frame) {
			h.metrics.BroadcastsDelivered.WithLabelValues(bc.Channel).Inc()
		}
	}
}

// ConnectionCounts reports total and per-organization live connections for
// the health endpoint.
func (h *Hub) ConnectionCounts() (int, map[string]int) {
	return h.admission.Total(), h.admission.Counts()
}

// Shutdown closes every live connection with a going-away reason.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "server shutting down")
	}
}

// RejectSocket tells a not-yet-admitted socket why it is being dropped and
// closes it. Used for both authentication and admission rejections.
func RejectSocket(conn *websocket.Conn, appErr *apperrors.AppError) {
	frame := marshalFrame(errorFrame{Type: frameError, Code: appErr.Code, Message: appErr.Message})
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.TextMessage, frame)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, appErr.Code)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	conn.Close()
}
