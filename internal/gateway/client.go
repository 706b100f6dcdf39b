package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lanepoint/realtime-gateway/internal/domain/room"
	apperrors "github.com/lanepoint/realtime-gateway/internal/errors"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/auth"
)

// Client is one admitted connection. All of its derived state (room
// memberships, heartbeat timers, rate-limit window, admission slot) is
// released exactly once through close, no matter which disconnect trigger
// fires first.
type Client struct {
	ID       uuid.UUID
	Identity auth.Identity

	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	hub     *Hub
	limiter *rateWindow
	hb      *heartbeat
	logger  *zap.Logger

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, identity auth.Identity, hub *Hub) *Client {
	c := &Client{
		ID:       uuid.New(),
		Identity: identity,
		conn:     conn,
		send:     make(chan []byte, hub.cfg.SendBufferSize),
		done:     make(chan struct{}),
		hub:      hub,
		limiter:  newRateWindow(hub.cfg.RateLimitMax, hub.cfg.RateLimitWindow),
	}
	c.logger = hub.logger.With(
		zap.String("client_id", c.ID.String()),
		zap.String("user_id", identity.UserID),
		zap.String("organization_id", identity.OrganizationID),
	)
	c.hb = newHeartbeat(hub.cfg.PingInterval, hub.cfg.PongTimeout, c.sendPing, c.expire)
	return c
}

func (c *Client) caller() room.Caller {
	return room.Caller{UserID: c.Identity.UserID, OrganizationID: c.Identity.OrganizationID}
}

// enqueue hands a frame to the write pump and reports whether the pump got
// it. A slow client with a full buffer loses frames rather than blocking the
// sender; at-least-once consumers must tolerate gaps the same way they
// tolerate duplicates.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		c.logger.Warn("send buffer full, dropping frame")
		return false
	}
}

func (c *Client) sendError(appErr *apperrors.AppError) {
	c.enqueue(marshalFrame(errorFrame{Type: frameError, Code: appErr.Code, Message: appErr.Message}))
}

func (c *Client) sendPing() {
	c.enqueue(marshalFrame(pingFrame{Type: framePing, Timestamp: time.Now().UTC()}))
}

func (c *Client) expire() {
	c.hub.metrics.HeartbeatTimeouts.Inc()
	c.logger.Info("heartbeat timeout, closing connection")
	c.close(websocket.ClosePolicyViolation, apperrors.CodeHeartbeatTimeout)
}

// close is the single teardown path: heartbeat timers, room memberships,
// the admission slot and the write pump all go down here, once.
func (c *Client) close(closeCode int, reason string) {
	c.closeOnce.Do(func() {
		c.hb.stop()
		c.hub.unregister(c)

		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(closeCode, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			c.logger.Debug("close frame write failed", zap.Error(err))
		}
		c.conn.Close()
		close(c.done)
	})
}

// readPump processes client-originated messages in receipt order until the
// connection drops.
func (c *Client) readPump() {
	defer c.close(websocket.CloseNormalClosure, "client disconnected")

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump owns all writes to the socket.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write error", zap.Error(err))
				c.close(websocket.CloseAbnormalClosure, "write failure")
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	if !c.limiter.allow(time.Now()) {
		c.hub.metrics.RateLimited.Inc()
		c.sendError(apperrors.NewRateLimited("rate limit exceeded"))
		return
	}

	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(apperrors.NewInvalidRoom("malformed message"))
		return
	}

	switch msg.Type {
	case msgSubscribe:
		c.handleSubscribe(&msg)
	case msgUnsubscribe:
		c.handleUnsubscribe(&msg)
	case msgPong:
		c.hb.pong()
	default:
		c.sendError(apperrors.NewInvalidRoom("unknown message type"))
	}
}

func (c *Client) handleSubscribe(msg *inboundMessage) {
	raw, ok := msg.roomString()
	if !ok {
		c.hub.metrics.InvalidRooms.Inc()
		c.sendError(apperrors.NewInvalidRoom("room must be a string"))
		return
	}
	r, err := room.Parse(raw, c.caller())
	if err != nil {
		c.hub.metrics.InvalidRooms.Inc()
		c.sendError(apperrors.NewInvalidRoom(err.Error()))
		return
	}

	c.hub.join(c, r)
	c.enqueue(marshalFrame(roomAckFrame{Type: frameSubscribed, Room: r.String()}))
	c.logger.Debug("subscribed", zap.String("room", r.String()))
}

func (c *Client) handleUnsubscribe(msg *inboundMessage) {
	raw, ok := msg.roomString()
	if !ok {
		c.hub.metrics.InvalidRooms.Inc()
		c.sendError(apperrors.NewInvalidRoom("room must be a string"))
		return
	}
	r, err := room.Parse(raw, c.caller())
	if err != nil {
		c.hub.metrics.InvalidRooms.Inc()
		c.sendError(apperrors.NewInvalidRoom(err.Error()))
		return
	}
	if room.IsBase(r, c.caller()) {
		c.sendError(apperrors.NewInvalidRoom("cannot leave base room"))
		return
	}

	// Leaving a room that was never joined is a no-op, not an error.
	c.hub.leave(c, r)
	c.enqueue(marshalFrame(roomAckFrame{Type: frameUnsubscribed, Room: r.String()}))
}
