package engine

import (
	"context"
	"errors"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/cryptox"
)

// dispatch routes one stream event. Events for a room whose snapshot is
// still loading are queued and replayed after it lands; ephemeral kinds
// (typing, presence) apply immediately since they carry no history.
func (e *Engine) dispatch(ctx context.Context, ev models.Event) {
	switch ev.Kind {
	case models.EventNewMessage, models.EventMessageEdited, models.EventMessageDeleted,
		models.EventReactionAdded, models.EventReactionRemoved,
		models.EventMemberJoined, models.EventMemberLeft:
		if roomID := eventRoom(ev); roomID != "" {
			e.mu.Lock()
			if e.cache.RoomState(roomID) == models.RoomSnapshotLoading {
				e.queued[roomID] = append(e.queued[roomID], ev)
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
		}
	}
	e.apply(ctx, ev)
}

// apply merges one event into the cache. Every branch is idempotent: the
// server may redeliver events after a reconnect.
func (e *Engine) apply(ctx context.Context, ev models.Event) {
	payload, err := ev.Decode()
	if err != nil {
		if errors.Is(err, models.ErrUnknownEvent) {
			e.log.Warn(ctx, "dropping unknown event", "kind", ev.Kind)
		} else {
			e.log.Error(ctx, "dropping undecodable event", "kind", ev.Kind, "err", err)
		}
		return
	}

	switch p := payload.(type) {
	case models.WireMessage:
		e.applyNewMessage(ctx, p)

	case models.EditedPayload:
		key, err := e.roomKey(ctx, p.RoomID)
		plaintext := ""
		if err == nil {
			if pt, derr := decryptBody(p.Body, key); derr == nil {
				plaintext = pt
			}
		}
		e.cache.ApplyEdit(p.RoomID, p.MessageID, p.Body, plaintext, p.EditedAt)
		e.persist(ctx, p.RoomID, p.MessageID)

	case models.DeletedPayload:
		e.cache.Tombstone(p.RoomID, p.MessageID)
		if e.hist != nil {
			if err := e.hist.Tombstone(ctx, p.MessageID); err != nil {
				e.log.Warn(ctx, "history tombstone failed", "message_id", p.MessageID, "err", err)
			}
		}

	case models.ReactionPayload:
		e.applyReaction(ev.Kind, p)

	case models.TypingPayload:
		if p.UserID == e.sess.UserID {
			return
		}
		if p.Stopped {
			e.cache.ClearTyping(p.RoomID, p.UserID)
		} else {
			e.cache.SetTyping(p.RoomID, p.UserID, e.now())
		}

	case models.PresencePayload:
		e.cache.SetOnline(p.UserID, ev.Kind == models.EventUserOnline)

	case models.MemberPayload:
		if ev.Kind == models.EventMemberLeft && p.UserID == e.sess.UserID {
			// Removed from the room on another device or by a moderator.
			_ = e.stream.Unsubscribe(p.RoomID)
			e.cache.RemoveRoom(p.RoomID)
			return
		}
		e.log.Debug(ctx, "membership change", "kind", ev.Kind, "room_id", p.RoomID, "user_id", p.UserID)
	}
}

func (e *Engine) applyNewMessage(ctx context.Context, w models.WireMessage) {
	key, keyErr := e.roomKey(ctx, w.RoomID)

	var m models.Message
	if keyErr != nil {
		m = models.Message{
			ID:            w.ID,
			LocalID:       w.CorrelationID,
			RoomID:        w.RoomID,
			SenderID:      w.SenderID,
			Body:          w.Body,
			Type:          w.Type,
			Status:        models.StatusSent,
			DecryptFailed: true,
			CreatedAt:     w.CreatedAt,
		}
	} else {
		m = e.decryptWire(ctx, &w, key)
	}

	// Echo of an optimistic send: rebind the local record instead of adding
	// a second one. The ack path does the same; whichever lands first wins
	// and the other is a no-op.
	if w.CorrelationID != "" && w.SenderID == e.sess.UserID {
		e.cache.ResolveLocal(w.RoomID, w.CorrelationID, w.ID)
	}
	e.cache.UpsertMessage(m)
	e.cache.TouchRoom(w.RoomID, w.CreatedAt)
	e.persist(ctx, w.RoomID, w.ID)

	e.mu.Lock()
	focused := e.focused == w.RoomID
	e.mu.Unlock()
	if !focused && w.SenderID != e.sess.UserID {
		e.cache.IncrementUnread(w.RoomID)
	}
}

// applyReaction merges a reaction echo, honoring pending local intents: the
// user's own echo that contradicts a newer local toggle is stale and dropped.
func (e *Engine) applyReaction(kind models.EventKind, p models.ReactionPayload) {
	add := kind == models.EventReactionAdded

	if p.UserID == e.sess.UserID {
		k := reactionKey(p.RoomID, p.MessageID, p.Emoji)
		e.mu.Lock()
		desired, pending := e.pendingReactions[k]
		if pending {
			if desired != add {
				e.mu.Unlock()
				return // stale echo of an older toggle
			}
			delete(e.pendingReactions, k)
		}
		e.mu.Unlock()
	}

	e.cache.MergeReaction(p.RoomID, p.MessageID, p.Emoji, p.UserID, add)
}

// eventRoom extracts the room scope of an event without a full decode.
func eventRoom(ev models.Event) string {
	payload, err := ev.Decode()
	if err != nil {
		return ""
	}
	switch p := payload.(type) {
	case models.WireMessage:
		return p.RoomID
	case models.EditedPayload:
		return p.RoomID
	case models.DeletedPayload:
		return p.RoomID
	case models.ReactionPayload:
		return p.RoomID
	case models.MemberPayload:
		return p.RoomID
	}
	return ""
}

func decryptBody(envelope string, key []byte) (string, error) {
	pt, err := cryptox.Decrypt(envelope, key)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
