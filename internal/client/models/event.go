package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventKind names a push-channel event. The set is closed: Decode rejects
// unknown kinds instead of ignoring them.
type EventKind string

const (
	EventNewMessage      EventKind = "new_message"
	EventMessageEdited   EventKind = "message_edited"
	EventMessageDeleted  EventKind = "message_deleted"
	EventReactionAdded   EventKind = "reaction_added"
	EventReactionRemoved EventKind = "reaction_removed"
	EventTyping          EventKind = "typing"
	EventUserOnline      EventKind = "user_online"
	EventUserOffline     EventKind = "user_offline"
	EventMemberJoined    EventKind = "member_joined"
	EventMemberLeft      EventKind = "member_left"
)

// ErrUnknownEvent is returned for event kinds outside the closed set.
var ErrUnknownEvent = errors.New("unknown event kind")

// Event is the raw frame delivered by the push channel.
type Event struct {
	Kind    EventKind       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WireMessage is a message as it travels on the wire: the body is always an
// encrypted envelope, never plaintext. The same shape is used by snapshot
// and pagination responses and by new_message events.
type WireMessage struct {
	ID            string       `json:"id"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	RoomID        string       `json:"room_id"`
	SenderID      string       `json:"sender_id"`
	Body          string       `json:"body"`
	Type          MessageType  `json:"type"`
	ReplyToID     string       `json:"reply_to_id,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// EditedPayload is broadcast when a message is edited.
type EditedPayload struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	Body      string    `json:"body"`
	EditedAt  time.Time `json:"edited_at"`
}

// DeletedPayload is broadcast when a message is deleted.
type DeletedPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
}

// ReactionPayload is broadcast when a reaction is added or removed.
type ReactionPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// TypingPayload is broadcast while a user is typing.
type TypingPayload struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	Stopped bool   `json:"stopped,omitempty"`
}

// PresencePayload is broadcast for online/offline transitions.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// MemberPayload is broadcast when a member joins or leaves a room.
type MemberPayload struct {
	RoomID   string `json:"room_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Decode unmarshals the payload into its kind-specific type. Every kind in
// the closed set is handled; anything else is ErrUnknownEvent.
func (e Event) Decode() (any, error) {
	switch e.Kind {
	case EventNewMessage:
		var p WireMessage
		return p, e.unmarshal(&p)
	case EventMessageEdited:
		var p EditedPayload
		return p, e.unmarshal(&p)
	case EventMessageDeleted:
		var p DeletedPayload
		return p, e.unmarshal(&p)
	case EventReactionAdded, EventReactionRemoved:
		var p ReactionPayload
		return p, e.unmarshal(&p)
	case EventTyping:
		var p TypingPayload
		return p, e.unmarshal(&p)
	case EventUserOnline, EventUserOffline:
		var p PresencePayload
		return p, e.unmarshal(&p)
	case EventMemberJoined, EventMemberLeft:
		var p MemberPayload
		return p, e.unmarshal(&p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e.Kind)
	}
}

func (e Event) unmarshal(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Kind, err)
	}
	return nil
}
