// Package cache is the in-memory view of rooms and messages that the UI
// observes. The synchronization engine is its only writer; every mutation is
// idempotent under replay, so applying the same server event twice leaves the
// cache unchanged.
package cache

import (
	"sort"
	"sync"
	"time"

	"github.com/cipherroom/internal/client/models"
)

type roomData struct {
	messages map[string]*models.Message // keyed by models.Message.Key()
	sorted   []*models.Message
	dirty    bool
	cursor   models.PaginationCursor
	typing   map[string]time.Time
	state    models.RoomState
}

// Cache holds all cached entities. Safe for concurrent use; reads return
// snapshots so observers never see in-place mutation.
type Cache struct {
	mu            sync.RWMutex
	rooms         map[string]*models.Room
	data          map[string]*roomData
	localToServer map[string]string
	online        map[string]struct{}
	uploads       map[string]*models.UploadTask
}

func New() *Cache {
	return &Cache{
		rooms:         make(map[string]*models.Room),
		data:          make(map[string]*roomData),
		localToServer: make(map[string]string),
		online:        make(map[string]struct{}),
		uploads:       make(map[string]*models.UploadTask),
	}
}

func (c *Cache) room(roomID string) *roomData {
	d, ok := c.data[roomID]
	if !ok {
		d = &roomData{
			messages: make(map[string]*models.Message),
			typing:   make(map[string]time.Time),
		}
		c.data[roomID] = d
	}
	return d
}

// UpsertRoom installs or refreshes a room record.
func (c *Cache) UpsertRoom(r models.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.rooms[r.ID]; ok {
		r.Unread = existing.Unread
	}
	c.rooms[r.ID] = &r
}

// RemoveRoom drops a room and all its state (leave/delete).
func (c *Cache) RemoveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
	delete(c.data, roomID)
}

// Room returns a copy of the room record.
func (c *Cache) Room(roomID string) (models.Room, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[roomID]
	if !ok {
		return models.Room{}, false
	}
	return *r, true
}

// Rooms returns all rooms sorted by last activity, newest first.
func (c *Cache) Rooms() []models.Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// SetRoomState records the engine lifecycle state of the room.
func (c *Cache) SetRoomState(roomID string, s models.RoomState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room(roomID).state = s
}

// RoomState reports the lifecycle state (RoomUnloaded for unknown rooms).
func (c *Cache) RoomState(roomID string) models.RoomState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.data[roomID]; ok {
		return d.state
	}
	return models.RoomUnloaded
}

// UpsertMessage merges a message into the room. The dedup key is the server
// id (or the local id before the echo resolves it); replaying the same event
// never duplicates a message. Reactions on an existing record survive a
// content merge.
func (c *Cache) UpsertMessage(m models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(&m)
}

func (c *Cache) upsertLocked(m *models.Message) {
	d := c.room(m.RoomID)

	key := m.Key()
	// A message that already resolved local->server may be replayed under
	// either identity.
	if mapped, ok := c.localToServer[key]; ok {
		key = mapped
	}

	existing, ok := d.messages[key]
	if !ok && m.ID != "" && m.LocalID != "" {
		// Echo of an optimistic message arriving before an explicit resolve.
		if opt, found := d.messages[m.LocalID]; found {
			c.rekeyLocked(d, opt, m.ID)
			existing, ok = opt, true
		}
	}

	if !ok {
		stored := *m
		d.messages[stored.Key()] = &stored
		d.sorted = append(d.sorted, &stored)
		d.dirty = true
		return
	}

	// Merge into the existing record in place.
	if m.ID != "" && existing.ID == "" {
		c.rekeyLocked(d, existing, m.ID)
	}
	if existing.Deleted {
		return // tombstones never resurrect
	}
	existing.Body = m.Body
	existing.Plaintext = m.Plaintext
	existing.DecryptFailed = m.DecryptFailed
	existing.Status = m.Status
	existing.Edited = existing.Edited || m.Edited
	existing.EditedAt = latest(existing.EditedAt, m.EditedAt)
	if m.Deleted {
		existing.Tombstone()
	}
	if !m.CreatedAt.IsZero() {
		existing.CreatedAt = m.CreatedAt
		d.dirty = true
	}
}

// rekeyLocked moves an optimistic record under its server id.
func (c *Cache) rekeyLocked(d *roomData, m *models.Message, serverID string) {
	delete(d.messages, m.LocalID)
	m.ID = serverID
	d.messages[serverID] = m
	c.localToServer[m.LocalID] = serverID
}

// ResolveLocal binds an optimistic message to its server id and marks it
// Sent. Returns false if the local id is unknown (already resolved and
// replayed, or never existed); callers treat that as a no-op.
func (c *Cache) ResolveLocal(roomID, localID, serverID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.room(roomID)

	if mapped, ok := c.localToServer[localID]; ok && mapped == serverID {
		return false
	}
	m, ok := d.messages[localID]
	if !ok {
		return false
	}
	c.rekeyLocked(d, m, serverID)
	m.Status = models.StatusSent
	d.dirty = true
	return true
}

// SetStatus updates the delivery status of a message.
func (c *Cache) SetStatus(roomID, key string, status models.MessageStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.lookupLocked(roomID, key); m != nil {
		m.Status = status
	}
}

// Tombstone marks a message deleted, clearing content but keeping identity.
// Replaying a delete for an already-tombstoned message is a no-op.
func (c *Cache) Tombstone(roomID, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.lookupLocked(roomID, key)
	if m == nil || m.Deleted {
		return false
	}
	m.Tombstone()
	return true
}

// ApplyEdit updates content and sets the edited flag. Applying the same edit
// twice produces no visible change.
func (c *Cache) ApplyEdit(roomID, key, body, plaintext string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.lookupLocked(roomID, key)
	if m == nil || m.Deleted {
		return false
	}
	m.Body = body
	m.Plaintext = plaintext
	m.Edited = true
	if !at.IsZero() {
		m.EditedAt = &at
	}
	return true
}

// MergeReaction applies an add/remove with set semantics.
func (c *Cache) MergeReaction(roomID, key, emoji, userID string, add bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.lookupLocked(roomID, key)
	if m == nil {
		return
	}
	if add {
		m.AddReaction(emoji, userID)
	} else {
		m.RemoveReaction(emoji, userID)
	}
}

// Message returns a copy of one message, resolving local ids.
func (c *Cache) Message(roomID, key string) (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.lookupLocked(roomID, key)
	if m == nil {
		return models.Message{}, false
	}
	return copyMessage(m), true
}

// Messages returns the room's messages in ascending creation-time order,
// re-sorted after out-of-order merges. Tombstones are included.
func (c *Cache) Messages(roomID string) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[roomID]
	if !ok {
		return nil
	}
	if d.dirty {
		sort.SliceStable(d.sorted, func(i, j int) bool {
			a, b := d.sorted[i], d.sorted[j]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.Key() < b.Key()
		})
		d.dirty = false
	}
	out := make([]models.Message, len(d.sorted))
	for i, m := range d.sorted {
		out[i] = copyMessage(m)
	}
	return out
}

func (c *Cache) lookupLocked(roomID, key string) *models.Message {
	d, ok := c.data[roomID]
	if !ok {
		return nil
	}
	if mapped, ok := c.localToServer[key]; ok {
		key = mapped
	}
	return d.messages[key]
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	if m.Reactions != nil {
		out.Reactions = make(map[string]map[string]struct{}, len(m.Reactions))
		for emoji, set := range m.Reactions {
			copied := make(map[string]struct{}, len(set))
			for u := range set {
				copied[u] = struct{}{}
			}
			out.Reactions[emoji] = copied
		}
	}
	if m.Attachments != nil {
		out.Attachments = append([]models.Attachment(nil), m.Attachments...)
	}
	return out
}

func latest(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || b.Before(*a) {
		return a
	}
	return b
}
