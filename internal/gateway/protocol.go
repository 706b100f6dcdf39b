package gateway

import (
	"encoding/json"
	"time"
)

// Client-originated message kinds. The set is closed; anything else is
// answered with an error frame.
const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPong        = "pong"
)

// Server-originated frame kinds.
const (
	frameConnected    = "connected"
	frameError        = "error"
	frameSubscribed   = "subscribed"
	frameUnsubscribed = "unsubscribed"
	framePing         = "ping"
	frameEvent        = "event"
	frameNewMessage   = "new-message"
)

// inboundMessage is one client-to-server frame. Room stays raw so a
// non-string payload can be rejected explicitly instead of silently
// decoding to "".
type inboundMessage struct {
	Type string          `json:"type"`
	Room json.RawMessage `json:"room,omitempty"`
}

func (m *inboundMessage) roomString() (string, bool) {
	var s string
	if err := json.Unmarshal(m.Room, &s); err != nil {
		return "", false
	}
	return s, true
}

type connectedFrame struct {
	Type           string    `json:"type"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Timestamp      time.Time `json:"timestamp"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type roomAckFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

type pingFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type eventFrame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

type newMessageFrame struct {
	Type      string          `json:"type"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

func marshalFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// All frame types marshal cleanly; this is unreachable with valid input.
		return []byte(`{"type":"error","code":"INTERNAL","message":"encoding failure"}`)
	}
	return data
}
