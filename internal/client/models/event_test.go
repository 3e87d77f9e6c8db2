package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvent_Decode_KnownKinds(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	tests := []struct {
		name    string
		kind    EventKind
		payload any
		check   func(t *testing.T, got any)
	}{
		{
			name: "new message",
			kind: EventNewMessage,
			payload: WireMessage{
				ID: "m1", RoomID: "r1", SenderID: "u1",
				Body: "ZW5j", Type: MessageTypeText, CreatedAt: now,
			},
			check: func(t *testing.T, got any) {
				p, ok := got.(WireMessage)
				require.True(t, ok)
				require.Equal(t, "m1", p.ID)
				require.Equal(t, now, p.CreatedAt)
			},
		},
		{
			name:    "edited",
			kind:    EventMessageEdited,
			payload: EditedPayload{MessageID: "m1", RoomID: "r1", Body: "bmV3"},
			check: func(t *testing.T, got any) {
				p, ok := got.(EditedPayload)
				require.True(t, ok)
				require.Equal(t, "bmV3", p.Body)
			},
		},
		{
			name:    "reaction added",
			kind:    EventReactionAdded,
			payload: ReactionPayload{MessageID: "m1", RoomID: "r1", UserID: "u2", Emoji: "👍"},
			check: func(t *testing.T, got any) {
				p, ok := got.(ReactionPayload)
				require.True(t, ok)
				require.Equal(t, "👍", p.Emoji)
			},
		},
		{
			name:    "typing",
			kind:    EventTyping,
			payload: TypingPayload{RoomID: "r1", UserID: "u2"},
			check: func(t *testing.T, got any) {
				_, ok := got.(TypingPayload)
				require.True(t, ok)
			},
		},
		{
			name:    "presence",
			kind:    EventUserOffline,
			payload: PresencePayload{UserID: "u2"},
			check: func(t *testing.T, got any) {
				_, ok := got.(PresencePayload)
				require.True(t, ok)
			},
		},
		{
			name:    "member left",
			kind:    EventMemberLeft,
			payload: MemberPayload{RoomID: "r1", UserID: "u2"},
			check: func(t *testing.T, got any) {
				_, ok := got.(MemberPayload)
				require.True(t, ok)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.payload)
			require.NoError(t, err)

			got, err := Event{Kind: tt.kind, Payload: raw}.Decode()
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestEvent_Decode_UnknownKindRejected(t *testing.T) {
	_, err := Event{Kind: "message_pinned", Payload: []byte(`{}`)}.Decode()
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEvent_Decode_BadPayload(t *testing.T) {
	_, err := Event{Kind: EventNewMessage, Payload: []byte(`{"id":42}`)}.Decode()
	require.Error(t, err)
}

func TestMessage_Key(t *testing.T) {
	m := &Message{LocalID: "tmp-1"}
	require.Equal(t, "tmp-1", m.Key())

	m.ID = "srv-9"
	require.Equal(t, "srv-9", m.Key())
}

func TestMessage_ReactionSetSemantics(t *testing.T) {
	m := &Message{}

	m.AddReaction("👍", "u1")
	m.AddReaction("👍", "u1") // idempotent
	require.Len(t, m.Reactions["👍"], 1)

	m.RemoveReaction("👍", "u1")
	require.False(t, m.HasReaction("👍", "u1"))

	// removing again is a no-op
	m.RemoveReaction("👍", "u1")
	m.RemoveReaction("🎉", "u1")
}

func TestMessage_Tombstone(t *testing.T) {
	m := &Message{ID: "m1", Body: "ZW5j", Plaintext: "hi", Attachments: []Attachment{{ID: "a1"}}}
	m.Tombstone()

	require.True(t, m.Deleted)
	require.Empty(t, m.Body)
	require.Empty(t, m.Plaintext)
	require.Nil(t, m.Attachments)
	require.Equal(t, "m1", m.ID, "identity survives the tombstone")
}

func TestUploadTask_Terminal(t *testing.T) {
	u := &UploadTask{Status: UploadUploading}
	require.False(t, u.Terminal())
	u.Status = UploadFailed
	require.True(t, u.Terminal())
}
