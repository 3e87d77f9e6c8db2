package engine

import (
	"context"
	"fmt"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/cryptox"
)

// OpenRoom brings a room to the Live state: subscribe, fetch the latest
// snapshot, decrypt it into the cache and replay any events that arrived
// while the snapshot was loading. Opening a room that is already Live or
// already loading is a no-op; the first call wins.
func (e *Engine) OpenRoom(ctx context.Context, roomID string) error {
	e.mu.Lock()
	switch e.cache.RoomState(roomID) {
	case models.RoomLive:
		e.focused = roomID
		e.mu.Unlock()
		e.cache.ResetUnread(roomID)
		return nil
	case models.RoomSnapshotLoading:
		e.mu.Unlock()
		return nil
	}
	e.cache.SetRoomState(roomID, models.RoomSnapshotLoading)
	e.queued[roomID] = nil
	epoch := e.epoch[roomID]
	e.mu.Unlock()

	// Subscribe before the fetch so nothing falls between the snapshot and
	// the live feed; events during the load are queued and replayed.
	if err := e.stream.Subscribe(roomID); err != nil {
		e.abortOpen(roomID)
		return fmt.Errorf("subscribing to %s: %w", roomID, err)
	}

	key, err := e.roomKey(ctx, roomID)
	if err != nil {
		e.abortOpen(roomID)
		_ = e.stream.Unsubscribe(roomID)
		return err
	}

	// Persisted history first, so the room renders instantly; the snapshot
	// merges over it by id.
	e.hydrate(ctx, roomID, key)

	wire, err := e.api.FetchRoomSnapshot(ctx, roomID, e.snapshotLimit)
	if err != nil {
		e.abortOpen(roomID)
		_ = e.stream.Unsubscribe(roomID)
		return fmt.Errorf("fetching snapshot of %s: %w", roomID, err)
	}

	e.mu.Lock()
	if e.epoch[roomID] != epoch {
		// Closed while the fetch was in flight; the result is stale.
		e.mu.Unlock()
		return nil
	}

	for i := range wire {
		m := e.decryptWire(ctx, &wire[i], key)
		e.cache.UpsertMessage(m)
		e.persist(ctx, roomID, m.ID)
	}
	oldest, hasMore := oldestOf(wire), len(wire) >= e.snapshotLimit
	e.cache.SetPagination(roomID, models.PaginationCursor{OldestID: oldest, HasMore: hasMore})
	e.cache.SetRoomState(roomID, models.RoomLive)
	e.focused = roomID

	replay := e.queued[roomID]
	delete(e.queued, roomID)
	e.mu.Unlock()

	for _, ev := range replay {
		e.apply(ctx, ev)
	}
	e.cache.ResetUnread(roomID)
	e.log.Debug(ctx, "room opened", "room_id", roomID, "messages", len(wire), "replayed", len(replay))
	return nil
}

// hydrate loads persisted history into the cache. Bodies are decrypted on
// the way in; stored plaintext does not exist.
func (e *Engine) hydrate(ctx context.Context, roomID string, key []byte) {
	if e.hist == nil {
		return
	}
	msgs, err := e.hist.Recent(ctx, roomID, e.snapshotLimit)
	if err != nil {
		e.log.Warn(ctx, "history hydration failed", "room_id", roomID, "err", err)
		return
	}
	for _, m := range msgs {
		if m.Body != "" && !m.Deleted {
			if pt, derr := cryptox.Decrypt(m.Body, key); derr == nil {
				m.Plaintext = string(pt)
			} else {
				m.DecryptFailed = true
			}
		}
		m.Status = models.StatusSent
		e.cache.UpsertMessage(m)
	}
}

func (e *Engine) abortOpen(roomID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache.SetRoomState(roomID, models.RoomUnloaded)
	delete(e.queued, roomID)
}

// CloseRoom unsubscribes and marks the room unloaded. Cached messages are
// kept; a snapshot fetch still in flight discards its result.
func (e *Engine) CloseRoom(roomID string) error {
	e.mu.Lock()
	e.epoch[roomID]++
	delete(e.queued, roomID)
	if e.focused == roomID {
		e.focused = ""
	}
	e.mu.Unlock()

	e.cache.SetRoomState(roomID, models.RoomUnloaded)
	return e.stream.Unsubscribe(roomID)
}

// LoadMore fetches the next older page of a Live room. Concurrent calls for
// the same room coalesce: only one fetch runs, the rest return immediately.
// Once the beginning of history is reached every call is a no-op.
func (e *Engine) LoadMore(ctx context.Context, roomID string) error {
	cur, ok := e.cache.BeginLoad(roomID)
	if !ok {
		return nil
	}

	key, err := e.roomKey(ctx, roomID)
	if err != nil {
		e.cache.EndLoad(roomID, "", false, false)
		return err
	}

	wire, hasMore, err := e.api.FetchOlderMessages(ctx, roomID, cur.OldestID, e.pageLimit)
	if err != nil {
		e.cache.EndLoad(roomID, "", false, false)
		return fmt.Errorf("loading older messages of %s: %w", roomID, err)
	}

	for i := range wire {
		m := e.decryptWire(ctx, &wire[i], key)
		e.cache.UpsertMessage(m)
		e.persist(ctx, roomID, m.ID)
	}

	oldest := cur.OldestID
	if len(wire) > 0 {
		oldest = oldestOf(wire)
	}
	e.cache.EndLoad(roomID, oldest, hasMore, true)
	return nil
}

// CreateRoom creates a room, stores its key and installs it in the cache.
func (e *Engine) CreateRoom(ctx context.Context, name string, typ models.RoomType) (models.Room, error) {
	grant, err := e.api.CreateRoom(ctx, name, typ)
	if err != nil {
		return models.Room{}, fmt.Errorf("creating room: %w", err)
	}
	if len(grant.Key) > 0 {
		if err := e.keys.PutRoomKey(ctx, grant.Room.ID, grant.Key); err != nil {
			return models.Room{}, fmt.Errorf("storing key for %s: %w", grant.Room.ID, err)
		}
	}
	e.cache.UpsertRoom(grant.Room)
	return grant.Room, nil
}

// JoinRoom joins a room; the grant delivers the room key for non-direct
// rooms (direct rooms derive theirs).
func (e *Engine) JoinRoom(ctx context.Context, roomID string) (models.Room, error) {
	grant, err := e.api.JoinRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, fmt.Errorf("joining room %s: %w", roomID, err)
	}
	if len(grant.Key) > 0 {
		if err := e.keys.PutRoomKey(ctx, grant.Room.ID, grant.Key); err != nil {
			return models.Room{}, fmt.Errorf("storing key for %s: %w", grant.Room.ID, err)
		}
	}
	e.cache.UpsertRoom(grant.Room)
	return grant.Room, nil
}

// LeaveRoom leaves the room and drops all its local state.
func (e *Engine) LeaveRoom(ctx context.Context, roomID string) error {
	if err := e.api.LeaveRoom(ctx, roomID); err != nil {
		return fmt.Errorf("leaving room %s: %w", roomID, err)
	}
	_ = e.stream.Unsubscribe(roomID)

	e.mu.Lock()
	e.epoch[roomID]++
	delete(e.queued, roomID)
	if e.focused == roomID {
		e.focused = ""
	}
	e.mu.Unlock()

	e.cache.RemoveRoom(roomID)
	return nil
}

// Members fetches the room's member directory.
func (e *Engine) Members(ctx context.Context, roomID string) ([]models.Member, error) {
	members, err := e.api.FetchMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetching members of %s: %w", roomID, err)
	}
	return members, nil
}

// oldestOf returns the id of the earliest-created message of the page.
func oldestOf(wire []models.WireMessage) string {
	if len(wire) == 0 {
		return ""
	}
	oldest := wire[0]
	for _, w := range wire[1:] {
		if w.CreatedAt.Before(oldest.CreatedAt) {
			oldest = w
		}
	}
	return oldest.ID
}
