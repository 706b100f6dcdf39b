package event

import (
	"encoding/json"

	"github.com/lanepoint/realtime-gateway/internal/domain/room"
)

// Broadcast channels. "event" is the generic change notification; clients
// refetch whatever the type tells them changed. "new-message" carries the raw
// message payload so chat views can append without a refetch.
const (
	ChannelEvent      = "event"
	ChannelNewMessage = "new-message"
)

// Broadcast is one (channel, room, payload) delivery computed from an event.
type Broadcast struct {
	Channel string          `json:"channel"`
	Room    room.Room       `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

// Route computes the broadcasts for one domain event:
//
//   - every event reaches the organization room;
//   - events attributed to a user also reach that user's room;
//   - message lifecycle additionally reaches the contact's chat room and the
//     account room, plus the new-message fast path when both the account and
//     chat ids are known;
//   - account lifecycle reaches the account room and nothing finer.
//
// The generic payload is the whole event envelope; the fast path carries the
// raw message only.
func Route(ev DomainEvent) ([]Broadcast, error) {
	envelope, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}

	generic := func(r room.Room) Broadcast {
		return Broadcast{Channel: ChannelEvent, Room: r, Payload: envelope}
	}

	out := []Broadcast{generic(room.Org(ev.OrganizationID))}
	if ev.UserID != "" {
		out = append(out, generic(room.User(ev.UserID)))
	}

	switch {
	case IsMessageLifecycle(ev.Type):
		var data messageData
		if len(ev.Data) > 0 {
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return nil, err
			}
		}
		if data.ContactID != "" {
			out = append(out, generic(room.Chat(data.ContactID)))
		}
		if data.AccountID != "" {
			out = append(out, generic(room.Account(data.AccountID)))
		}
		if data.AccountID != "" && data.ChatID != "" {
			out = append(out, Broadcast{
				Channel: ChannelNewMessage,
				Room:    room.AccountChat(data.AccountID, data.ChatID),
				Payload: data.Message,
			})
		}

	case IsAccountLifecycle(ev.Type):
		var data accountData
		if len(ev.Data) > 0 {
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				return nil, err
			}
		}
		if data.AccountID != "" {
			out = append(out, generic(room.Account(data.AccountID)))
		}
	}

	return out, nil
}
