package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanepoint/realtime-gateway/internal/domain/room"
)

func routesOf(t *testing.T, ev DomainEvent) map[string][]string {
	t.Helper()
	bcasts, err := Route(ev)
	require.NoError(t, err)
	byChannel := make(map[string][]string)
	for _, b := range bcasts {
		byChannel[b.Channel] = append(byChannel[b.Channel], b.Room.String())
	}
	return byChannel
}

func TestRoute_BaseRooms(t *testing.T) {
	got := routesOf(t, DomainEvent{
		ID:             "e1",
		Type:           TypeContactUpdated,
		Timestamp:      time.Now(),
		OrganizationID: "org-1",
	})
	assert.Equal(t, []string{"org:org-1"}, got[ChannelEvent])
	assert.Empty(t, got[ChannelNewMessage])
}

func TestRoute_UserAttribution(t *testing.T) {
	got := routesOf(t, DomainEvent{
		ID:             "e2",
		Type:           TypeDealCreated,
		OrganizationID: "org-1",
		UserID:         "u-5",
	})
	assert.ElementsMatch(t, []string{"org:org-1", "user:u-5"}, got[ChannelEvent])
}

func TestRoute_MessageFanOut(t *testing.T) {
	data, _ := json.Marshal(map[string]any{
		"accountId": "A",
		"chatId":    "C",
		"contactId": "K",
		"message":   map[string]any{"id": "m1", "text": "hi"},
	})
	got := routesOf(t, DomainEvent{
		ID:             "e3",
		Type:           TypeMessageCreated,
		OrganizationID: "O",
		Data:           data,
	})
	assert.ElementsMatch(t,
		[]string{"org:O", "chat:K", "account:A"},
		got[ChannelEvent])
	assert.Equal(t, []string{"account:A:chat:C"}, got[ChannelNewMessage])
}

func TestRoute_MessageFastPathCarriesRawMessage(t *testing.T) {
	data, _ := json.Marshal(map[string]any{
		"accountId": "A",
		"chatId":    "C",
		"message":   map[string]any{"id": "m1"},
	})
	bcasts, err := Route(DomainEvent{Type: TypeMessageCreated, OrganizationID: "O", Data: data})
	require.NoError(t, err)

	var fast *Broadcast
	for i := range bcasts {
		if bcasts[i].Channel == ChannelNewMessage {
			fast = &bcasts[i]
		}
	}
	require.NotNil(t, fast)
	assert.Equal(t, room.AccountChat("A", "C"), fast.Room)
	assert.JSONEq(t, `{"id":"m1"}`, string(fast.Payload))
}

func TestRoute_MessageMissingIDs(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"contactId": "K"})
	got := routesOf(t, DomainEvent{Type: TypeMessageDeleted, OrganizationID: "O", Data: data})
	assert.ElementsMatch(t, []string{"org:O", "chat:K"}, got[ChannelEvent])
	assert.Empty(t, got[ChannelNewMessage])
}

func TestRoute_AccountLifecycle(t *testing.T) {
	data, _ := json.Marshal(map[string]any{"accountId": "A", "progress": 40})
	got := routesOf(t, DomainEvent{Type: TypeAccountSyncProgress, OrganizationID: "O", Data: data})
	assert.ElementsMatch(t, []string{"org:O", "account:A"}, got[ChannelEvent])
	assert.Empty(t, got[ChannelNewMessage])
}

func TestRoute_MalformedData(t *testing.T) {
	_, err := Route(DomainEvent{
		Type:           TypeMessageCreated,
		OrganizationID: "O",
		Data:           json.RawMessage(`{"accountId":`),
	})
	assert.Error(t, err)
}
