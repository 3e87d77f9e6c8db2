package models

import "time"

// MessageType tags message content.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeVideo  MessageType = "video"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// MessageStatus is the delivery state of a locally authored message.
// Remote messages are always Sent.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Attachment describes an uploaded file referenced by a message. The blob at
// URL is encrypted with the room key like any other payload.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url"`
}

// Message is the cached representation of one message.
//
// Exactly one of ID / LocalID is authoritative at any moment: an optimistic
// message starts with only a LocalID, and the server echo replaces it with
// the server-assigned ID in place (never as a second record). LocalID doubles
// as the correlation token carried through the send acknowledgement and the
// broadcast.
type Message struct {
	ID      string `json:"id,omitempty"`
	LocalID string `json:"local_id,omitempty"`

	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`

	// Body is the encrypted wire form. Plaintext is derived on decrypt and
	// never persisted.
	Body      string `json:"body"`
	Plaintext string `json:"-"`

	// DecryptFailed marks a message whose envelope could not be opened; the
	// UI renders a placeholder instead of Plaintext.
	DecryptFailed bool `json:"-"`

	Type   MessageType   `json:"type"`
	Status MessageStatus `json:"status"`

	Edited  bool `json:"edited,omitempty"`
	Deleted bool `json:"deleted,omitempty"`

	ReplyToID     string `json:"reply_to_id,omitempty"`
	ForwardOfRoom string `json:"forward_of_room,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// Reactions maps emoji to the set of reactor user ids.
	Reactions map[string]map[string]struct{} `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
}

// Key returns the cache identity of the message: the server id once known,
// the local id before that.
func (m *Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.LocalID
}

// Tombstone clears content and marks the message deleted, keeping its
// identity in ordering and history.
func (m *Message) Tombstone() {
	m.Body = ""
	m.Plaintext = ""
	m.Attachments = nil
	m.Deleted = true
}

// AddReaction records userID reacting with emoji. Adding twice is a no-op.
func (m *Message) AddReaction(emoji, userID string) {
	if m.Reactions == nil {
		m.Reactions = make(map[string]map[string]struct{})
	}
	set, ok := m.Reactions[emoji]
	if !ok {
		set = make(map[string]struct{})
		m.Reactions[emoji] = set
	}
	set[userID] = struct{}{}
}

// RemoveReaction removes userID's emoji reaction. Removing a reaction that
// is not present is a no-op.
func (m *Message) RemoveReaction(emoji, userID string) {
	set, ok := m.Reactions[emoji]
	if !ok {
		return
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(m.Reactions, emoji)
	}
}

// HasReaction reports whether userID has reacted with emoji.
func (m *Message) HasReaction(emoji, userID string) bool {
	set, ok := m.Reactions[emoji]
	if !ok {
		return false
	}
	_, ok = set[userID]
	return ok
}

// UploadStatus is the lifecycle of an attachment upload.
type UploadStatus string

const (
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadCancelled UploadStatus = "cancelled"
	UploadFailed    UploadStatus = "failed"
)

// UploadTask tracks one in-flight attachment upload. Progress is monotonic
// until a terminal state.
type UploadTask struct {
	ID       string
	RoomID   string
	Name     string
	Progress int
	Status   UploadStatus
}

// Terminal reports whether the task reached a final state.
func (u *UploadTask) Terminal() bool {
	switch u.Status {
	case UploadCompleted, UploadCancelled, UploadFailed:
		return true
	}
	return false
}
