// Package models defines the entities owned by the local cache: rooms,
// messages, reactions, typing state, pagination cursors and upload tasks,
// plus the wire-level event types delivered by the push channel.
package models

import "time"

// RoomType classifies a room.
type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
	// RoomTypeDirect is a 1:1 room whose key is derived via key exchange
	// rather than issued by the server.
	RoomTypeDirect RoomType = "direct"
)

// RoomState is the lifecycle of a room inside the engine.
type RoomState int

const (
	RoomUnloaded RoomState = iota
	RoomSnapshotLoading
	RoomLive
)

func (s RoomState) String() string {
	switch s {
	case RoomSnapshotLoading:
		return "snapshot_loading"
	case RoomLive:
		return "live"
	default:
		return "unloaded"
	}
}

// Room is the cached view of a room. The symmetric key itself lives in the
// key store, looked up by room id; the room record only knows whether one
// should exist.
type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Type         RoomType  `json:"type"`
	CreatedBy    string    `json:"created_by,omitempty"`
	LastActivity time.Time `json:"last_activity"`
	Unread       int       `json:"unread"`
}

// Member is a room member as returned by the directory channel.
type Member struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
	// PublicKey is the member's long-term public key, needed to derive the
	// shared key for direct rooms.
	PublicKey []byte `json:"public_key,omitempty"`
}

// TypingEntry records one user currently typing in a room. Entries expire
// after TypingExpiry unless refreshed.
type TypingEntry struct {
	UserID   string
	LastSeen time.Time
}

// TypingExpiry is how long a typing indicator stays alive without a refresh.
const TypingExpiry = 5 * time.Second

// PaginationCursor tracks backward paging through a room's history.
// The cursor only ever moves toward older messages.
type PaginationCursor struct {
	OldestID string
	HasMore  bool
	InFlight bool
}
