package room

import (
	"fmt"
	"strings"
)

// Kind identifies one of the recognized room shapes.
type Kind int

const (
	KindOrg Kind = iota
	KindUser
	KindAccount
	KindChat
	KindAccountChat
)

func (k Kind) String() string {
	switch k {
	case KindOrg:
		return "organization"
	case KindUser:
		return "user"
	case KindAccount:
		return "account"
	case KindChat:
		return "chat"
	case KindAccountChat:
		return "account-chat"
	}
	return "unknown"
}

// Room is a parsed, validated room identifier. The set of shapes is closed:
// raw strings are parsed exactly once, at subscribe time, and everything
// downstream (membership, routing, the backplane) works with this type.
type Room struct {
	Kind     Kind   `json:"kind"`
	ID       string `json:"id"`
	SecondID string `json:"secondId,omitempty"` // chat id for KindAccountChat
}

const (
	prefixOrg     = "org:"
	prefixUser    = "user:"
	prefixAccount = "account:"
	prefixChat    = "chat:"
	chatSegment   = ":chat:"
)

// Org returns the base room for an organization.
func Org(orgID string) Room { return Room{Kind: KindOrg, ID: orgID} }

// User returns the base room for a user.
func User(userID string) Room { return Room{Kind: KindUser, ID: userID} }

// Account returns the room for a connected messaging account.
func Account(accountID string) Room { return Room{Kind: KindAccount, ID: accountID} }

// Chat returns the room for a single chat thread.
func Chat(chatID string) Room { return Room{Kind: KindChat, ID: chatID} }

// AccountChat returns the fast-path room for one chat on one account.
func AccountChat(accountID, chatID string) Room {
	return Room{Kind: KindAccountChat, ID: accountID, SecondID: chatID}
}

// String renders the wire form of the room name.
func (r Room) String() string {
	switch r.Kind {
	case KindOrg:
		return prefixOrg + r.ID
	case KindUser:
		return prefixUser + r.ID
	case KindAccount:
		return prefixAccount + r.ID
	case KindChat:
		return prefixChat + r.ID
	case KindAccountChat:
		return prefixAccount + r.ID + chatSegment + r.SecondID
	}
	return ""
}

// Caller carries the identity a subscribe request is checked against.
type Caller struct {
	UserID         string
	OrganizationID string
}

// Parse validates a raw room name from a subscribe request against the fixed
// allow-list of shapes. Org and user rooms must name the caller's own
// identity. Account and chat rooms are validated by shape only; ownership of
// those ids is not checked here.
func Parse(raw string, caller Caller) (Room, error) {
	if raw == "" {
		return Room{}, fmt.Errorf("empty room name")
	}

	switch {
	case strings.HasPrefix(raw, prefixOrg):
		id := raw[len(prefixOrg):]
		if id == "" || id != caller.OrganizationID {
			return Room{}, fmt.Errorf("room %q does not match caller organization", raw)
		}
		return Org(id), nil

	case strings.HasPrefix(raw, prefixUser):
		id := raw[len(prefixUser):]
		if id == "" || id != caller.UserID {
			return Room{}, fmt.Errorf("room %q does not match caller user", raw)
		}
		return User(id), nil

	case strings.HasPrefix(raw, prefixAccount):
		rest := raw[len(prefixAccount):]
		if accountID, chatID, ok := strings.Cut(rest, chatSegment); ok {
			if accountID == "" || chatID == "" || strings.Contains(chatID, ":") {
				return Room{}, fmt.Errorf("malformed account-chat room %q", raw)
			}
			return AccountChat(accountID, chatID), nil
		}
		if rest == "" || strings.Contains(rest, ":") {
			return Room{}, fmt.Errorf("malformed account room %q", raw)
		}
		return Account(rest), nil

	case strings.HasPrefix(raw, prefixChat):
		id := raw[len(prefixChat):]
		if id == "" || strings.Contains(id, ":") {
			return Room{}, fmt.Errorf("malformed chat room %q", raw)
		}
		return Chat(id), nil
	}

	return Room{}, fmt.Errorf("unrecognized room %q", raw)
}

// BaseRooms returns the rooms every connection joins at admission and can
// never leave: its organization and its user room.
func BaseRooms(caller Caller) []Room {
	return []Room{Org(caller.OrganizationID), User(caller.UserID)}
}

// IsBase reports whether r is one of the caller's irrevocable base rooms.
func IsBase(r Room, caller Caller) bool {
	return (r.Kind == KindOrg && r.ID == caller.OrganizationID) ||
		(r.Kind == KindUser && r.ID == caller.UserID)
}
