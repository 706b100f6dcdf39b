package event

import (
	"encoding/json"
	"time"
)

// Domain event types consumed by the gateway. The list is fixed: the bus
// queue is bound to exactly these routing keys.
const (
	TypeMessageCreated = "message.created"
	TypeMessageUpdated = "message.updated"
	TypeMessageDeleted = "message.deleted"

	TypeAccountConnected    = "account.connected"
	TypeAccountDisconnected = "account.disconnected"
	TypeAccountSyncProgress = "account.sync.progress"

	TypeContactCreated = "contact.created"
	TypeContactUpdated = "contact.updated"
	TypeContactDeleted = "contact.deleted"

	TypeDealCreated = "deal.created"
	TypeDealUpdated = "deal.updated"
	TypeDealDeleted = "deal.deleted"

	TypeCompanyCreated = "company.created"
	TypeCompanyUpdated = "company.updated"
	TypeCompanyDeleted = "company.deleted"

	TypeDraftCreated = "draft.created"
	TypeDraftUpdated = "draft.updated"
	TypeDraftDeleted = "draft.deleted"
)

// Types is the full binding list, in routing-key form.
var Types = []string{
	TypeMessageCreated, TypeMessageUpdated, TypeMessageDeleted,
	TypeAccountConnected, TypeAccountDisconnected, TypeAccountSyncProgress,
	TypeContactCreated, TypeContactUpdated, TypeContactDeleted,
	TypeDealCreated, TypeDealUpdated, TypeDealDeleted,
	TypeCompanyCreated, TypeCompanyUpdated, TypeCompanyDeleted,
	TypeDraftCreated, TypeDraftUpdated, TypeDraftDeleted,
}

// DomainEvent is a single event published by a domain service. The gateway
// never stores these; each is routed once and dropped.
type DomainEvent struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	OrganizationID string          `json:"organizationId"`
	UserID         string          `json:"userId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

// messageData is the subset of a message-lifecycle payload the router needs.
// ChatID is the channel-side thread id, ContactID the CRM-side contact id.
type messageData struct {
	AccountID string          `json:"accountId"`
	ChatID    string          `json:"chatId"`
	ContactID string          `json:"contactId"`
	Message   json.RawMessage `json:"message"`
}

type accountData struct {
	AccountID string `json:"accountId"`
}

// IsMessageLifecycle reports whether t is one of the message events.
func IsMessageLifecycle(t string) bool {
	return t == TypeMessageCreated || t == TypeMessageUpdated || t == TypeMessageDeleted
}

// IsAccountLifecycle reports whether t is an account connect/disconnect/sync event.
func IsAccountLifecycle(t string) bool {
	return t == TypeAccountConnected || t == TypeAccountDisconnected || t == TypeAccountSyncProgress
}
