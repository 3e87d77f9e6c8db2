package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/client/transport"
	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
	"github.com/google/uuid"
)

// SendOptions carries the optional attributes of an outbound message.
type SendOptions struct {
	Type        models.MessageType
	ReplyToID   string
	Attachments []models.Attachment

	// forwardOf marks the local record as a forward; it is not transmitted.
	forwardOf string
}

// SendMessage performs an optimistic send: the message appears in the cache
// immediately with Sending status and a local correlation id, then the
// acknowledgement rebinds it to the server id in place. A missing room key
// fails the call before anything is shown. A transport failure leaves the
// message visible in Failed state for RetrySend.
func (e *Engine) SendMessage(ctx context.Context, roomID, plaintext string, opts SendOptions) (models.Message, error) {
	key, err := e.roomKey(ctx, roomID)
	if err != nil {
		return models.Message{}, err
	}
	envelope, err := cryptox.Encrypt([]byte(plaintext), key)
	if err != nil {
		return models.Message{}, fmt.Errorf("encrypting message: %w", err)
	}
	if opts.Type == "" {
		opts.Type = models.MessageTypeText
	}

	local := models.Message{
		LocalID:       uuid.NewString(),
		RoomID:        roomID,
		SenderID:      e.sess.UserID,
		Body:          envelope,
		Plaintext:     plaintext,
		Type:          opts.Type,
		Status:        models.StatusSending,
		ReplyToID:     opts.ReplyToID,
		ForwardOfRoom: opts.forwardOf,
		Attachments:   opts.Attachments,
		CreatedAt:     e.now(),
	}
	e.cache.UpsertMessage(local)
	e.cache.TouchRoom(roomID, local.CreatedAt)

	return e.transmit(ctx, local)
}

// RetrySend re-transmits a message stuck in Failed state. The original
// correlation id is reused so a send that actually reached the server the
// first time is deduplicated, not doubled.
func (e *Engine) RetrySend(ctx context.Context, roomID, localID string) (models.Message, error) {
	m, ok := e.cache.Message(roomID, localID)
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", localID, common.ErrNotFound)
	}
	if m.Status != models.StatusFailed {
		return m, nil
	}
	e.cache.SetStatus(roomID, localID, models.StatusSending)
	return e.transmit(ctx, m)
}

func (e *Engine) transmit(ctx context.Context, m models.Message) (models.Message, error) {
	ack, err := e.api.SendMessage(ctx, transport.SendRequest{
		RoomID:        m.RoomID,
		CorrelationID: m.LocalID,
		Body:          m.Body,
		Type:          m.Type,
		ReplyToID:     m.ReplyToID,
		Attachments:   m.Attachments,
	})
	if err != nil {
		// The broadcast echo may have landed while the ack path was failing;
		// a message that already resolved to its server id stays Sent.
		if cur, ok := e.cache.Message(m.RoomID, m.LocalID); !ok || cur.ID == "" {
			e.cache.SetStatus(m.RoomID, m.LocalID, models.StatusFailed)
		}
		if errors.Is(err, common.ErrTransportUnavailable) {
			return models.Message{}, fmt.Errorf("send queued locally: %w", err)
		}
		return models.Message{}, fmt.Errorf("sending message: %w", err)
	}

	// The broadcast echo may have resolved the local id already; both paths
	// are idempotent.
	e.cache.ResolveLocal(m.RoomID, m.LocalID, ack.MessageID)
	if !ack.CreatedAt.IsZero() {
		m.ID = ack.MessageID
		m.Status = models.StatusSent
		m.CreatedAt = ack.CreatedAt
		e.cache.UpsertMessage(m)
		e.cache.TouchRoom(m.RoomID, ack.CreatedAt)
	}
	e.persist(ctx, m.RoomID, ack.MessageID)

	sent, _ := e.cache.Message(m.RoomID, ack.MessageID)
	return sent, nil
}

// EditMessage replaces a message body optimistically: the new content shows
// in the cache immediately, then the encrypted edit is transmitted. On
// failure the error is surfaced; the server's edit broadcast reconciles the
// record idempotently either way.
func (e *Engine) EditMessage(ctx context.Context, roomID, messageID, plaintext string) error {
	key, err := e.roomKey(ctx, roomID)
	if err != nil {
		return err
	}
	envelope, err := cryptox.Encrypt([]byte(plaintext), key)
	if err != nil {
		return fmt.Errorf("encrypting edit: %w", err)
	}
	if !e.cache.ApplyEdit(roomID, messageID, envelope, plaintext, e.now()) {
		return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	e.persist(ctx, roomID, messageID)
	if err := e.api.EditMessage(ctx, roomID, messageID, envelope); err != nil {
		return fmt.Errorf("editing message %s: %w", messageID, err)
	}
	return nil
}

// DeleteMessage tombstones a message optimistically in the cache and the
// persisted history, then transmits. The tombstone keeps its place in the
// timeline; replaying the delete broadcast is a no-op.
func (e *Engine) DeleteMessage(ctx context.Context, roomID, messageID string) error {
	e.cache.Tombstone(roomID, messageID)
	if e.hist != nil {
		if err := e.hist.Tombstone(ctx, messageID); err != nil {
			e.log.Warn(ctx, "history tombstone failed", "message_id", messageID, "err", err)
		}
	}
	if err := e.api.DeleteMessage(ctx, roomID, messageID); err != nil {
		return fmt.Errorf("deleting message %s: %w", messageID, err)
	}
	return nil
}

// ToggleReaction flips the user's reaction optimistically and records the
// intent so a stale remote echo cannot undo a faster second toggle. The last
// local intent wins.
func (e *Engine) ToggleReaction(ctx context.Context, roomID, messageID, emoji string) error {
	m, ok := e.cache.Message(roomID, messageID)
	if !ok {
		return fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	desired := !m.HasReaction(emoji, e.sess.UserID)

	e.mu.Lock()
	e.pendingReactions[reactionKey(roomID, m.Key(), emoji)] = desired
	e.mu.Unlock()
	e.cache.MergeReaction(roomID, messageID, emoji, e.sess.UserID, desired)

	if err := e.api.React(ctx, roomID, m.Key(), emoji, desired); err != nil {
		// Roll back the optimistic flip and forget the intent.
		e.cache.MergeReaction(roomID, messageID, emoji, e.sess.UserID, !desired)
		e.mu.Lock()
		delete(e.pendingReactions, reactionKey(roomID, m.Key(), emoji))
		e.mu.Unlock()
		return fmt.Errorf("reacting to %s: %w", messageID, err)
	}
	return nil
}

// ForwardMessage re-sends the content of an existing message into another
// room, re-encrypted with the target room's key. Content never travels
// between rooms under the source key.
func (e *Engine) ForwardMessage(ctx context.Context, srcRoomID, messageID, dstRoomID string) (models.Message, error) {
	src, ok := e.cache.Message(srcRoomID, messageID)
	if !ok {
		return models.Message{}, fmt.Errorf("message %s: %w", messageID, common.ErrNotFound)
	}
	if src.Deleted {
		return models.Message{}, fmt.Errorf("message %s is deleted: %w", messageID, common.ErrNotFound)
	}

	plaintext := src.Plaintext
	if plaintext == "" && src.Body != "" {
		key, err := e.roomKey(ctx, srcRoomID)
		if err != nil {
			return models.Message{}, err
		}
		pt, err := cryptox.Decrypt(src.Body, key)
		if err != nil {
			return models.Message{}, fmt.Errorf("decrypting source message: %w", err)
		}
		plaintext = string(pt)
	}

	return e.SendMessage(ctx, dstRoomID, plaintext, SendOptions{
		Type:      src.Type,
		forwardOf: srcRoomID,
	})
}

// SetTyping announces the local user's typing state on the stream. Repeated
// starts within the debounce window are dropped; a stop always goes out and
// resets the window.
func (e *Engine) SetTyping(roomID string, typing bool) {
	now := e.now()
	e.mu.Lock()
	if typing {
		if last, ok := e.lastTypingEmit[roomID]; ok && now.Sub(last) < typingDebounce {
			e.mu.Unlock()
			return
		}
		e.lastTypingEmit[roomID] = now
	} else {
		delete(e.lastTypingEmit, roomID)
	}
	e.mu.Unlock()

	_ = e.stream.EmitTyping(roomID, !typing)
}

// decryptWire converts a wire message to its cached form, decrypting the
// body. A failed decrypt is per-message and non-fatal: the record carries a
// placeholder flag instead of plaintext.
func (e *Engine) decryptWire(ctx context.Context, w *models.WireMessage, key []byte) models.Message {
	m := models.Message{
		ID:          w.ID,
		LocalID:     w.CorrelationID,
		RoomID:      w.RoomID,
		SenderID:    w.SenderID,
		Body:        w.Body,
		Type:        w.Type,
		Status:      models.StatusSent,
		ReplyToID:   w.ReplyToID,
		Attachments: w.Attachments,
		CreatedAt:   w.CreatedAt,
	}
	if w.Body == "" {
		return m
	}
	pt, err := cryptox.Decrypt(w.Body, key)
	if err != nil {
		m.DecryptFailed = true
		e.log.Warn(ctx, "undecryptable message", "room_id", w.RoomID, "message_id", w.ID)
		return m
	}
	m.Plaintext = string(pt)
	return m
}

// persist mirrors a cached message into the history store, if configured.
// Persistence failures are logged, never surfaced: history is best-effort.
func (e *Engine) persist(ctx context.Context, roomID, messageID string) {
	if e.hist == nil || messageID == "" {
		return
	}
	m, ok := e.cache.Message(roomID, messageID)
	if !ok {
		return
	}
	if err := e.hist.Upsert(ctx, &m); err != nil {
		e.log.Warn(ctx, "history upsert failed", "message_id", messageID, "err", err)
	}
}

func reactionKey(roomID, messageKey, emoji string) string {
	return roomID + "|" + messageKey + "|" + emoji
}
