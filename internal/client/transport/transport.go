// Package transport defines the two channel contracts the engine depends on,
// a request/response API and a push event stream, together with the concrete
// HTTP and websocket implementations. Payload bodies on both channels are
// always encrypted envelopes; plaintext never crosses here.
package transport

import (
	"context"
	"time"

	"github.com/cipherroom/internal/client/models"
)

// API is the request/response channel: snapshots, pagination, membership,
// room CRUD and acknowledged writes.
type API interface {
	// FetchRooms lists the rooms the user is a member of.
	FetchRooms(ctx context.Context) ([]models.Room, error)

	// FetchRoomSnapshot returns the most recent page of a room's messages.
	FetchRoomSnapshot(ctx context.Context, roomID string, limit int) ([]models.WireMessage, error)

	// FetchOlderMessages returns up to limit messages older than beforeID
	// and whether more remain beyond them.
	FetchOlderMessages(ctx context.Context, roomID, beforeID string, limit int) ([]models.WireMessage, bool, error)

	// FetchMembers lists room members, including their public keys.
	FetchMembers(ctx context.Context, roomID string) ([]models.Member, error)

	// CreateRoom creates a room; the grant carries the server-issued room key.
	CreateRoom(ctx context.Context, name string, typ models.RoomType) (*RoomGrant, error)

	// JoinRoom joins a room; the grant carries the server-issued room key.
	JoinRoom(ctx context.Context, roomID string) (*RoomGrant, error)

	// LeaveRoom leaves (or deletes, for the owner) a room.
	LeaveRoom(ctx context.Context, roomID string) error

	// SendMessage transmits an encrypted message and returns the
	// acknowledgement carrying the server-assigned id and the echoed
	// correlation id.
	SendMessage(ctx context.Context, req SendRequest) (*SendAck, error)

	// EditMessage transmits an encrypted replacement body.
	EditMessage(ctx context.Context, roomID, messageID, body string) error

	// DeleteMessage requests a tombstone.
	DeleteMessage(ctx context.Context, roomID, messageID string) error

	// React adds or removes a reaction.
	React(ctx context.Context, roomID, messageID, emoji string, add bool) error

	// PresignUpload asks the server for a one-shot upload URL for an
	// attachment blob.
	PresignUpload(ctx context.Context, roomID, name string, size int64) (*UploadGrant, error)
}

// Stream is the push channel: a persistent duplex connection delivering the
// closed set of models.EventKind events and accepting lightweight emits.
// Reconnection with bounded retry is the stream's own responsibility; after
// a reconnect it re-establishes every active subscription.
type Stream interface {
	// Run connects and pumps events until ctx is cancelled. It returns only
	// when the context ends or retries are exhausted.
	Run(ctx context.Context) error

	// Events is the inbound event feed. Closed when Run returns.
	Events() <-chan models.Event

	// Subscribe registers interest in a room's events.
	Subscribe(roomID string) error

	// Unsubscribe removes interest in a room's events.
	Unsubscribe(roomID string) error

	// EmitTyping sends a fire-and-forget typing indicator.
	EmitTyping(roomID string, stopped bool) error
}

// RoomGrant is the create/join response: the room record plus its symmetric
// key. The key travels base64-encoded in JSON.
type RoomGrant struct {
	Room models.Room `json:"room"`
	Key  []byte      `json:"key"`
}

// SendRequest is an outbound message write.
type SendRequest struct {
	RoomID        string              `json:"room_id"`
	CorrelationID string              `json:"correlation_id"`
	Body          string              `json:"body"`
	Type          models.MessageType  `json:"type"`
	ReplyToID     string              `json:"reply_to_id,omitempty"`
	Attachments   []models.Attachment `json:"attachments,omitempty"`
}

// SendAck acknowledges a SendMessage call.
type SendAck struct {
	MessageID     string    `json:"message_id"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// UploadGrant is a presigned upload slot for one attachment.
type UploadGrant struct {
	AttachmentID string `json:"attachment_id"`
	UploadURL    string `json:"upload_url"`
	// FileURL is the address the attachment will be served from once
	// uploaded; it goes into the message's attachment list.
	FileURL string `json:"file_url"`
}
