package cache

import (
	"time"

	"github.com/cipherroom/internal/client/models"
)

// SetPagination replaces the room's cursor state.
func (c *Cache) SetPagination(roomID string, cur models.PaginationCursor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room(roomID).cursor = cur
}

// Pagination returns the room's cursor state.
func (c *Cache) Pagination(roomID string) models.PaginationCursor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.data[roomID]; ok {
		return d.cursor
	}
	return models.PaginationCursor{}
}

// BeginLoad atomically claims the in-flight flag. It returns false when a
// load is already running or there is nothing more to fetch, which is how
// concurrent LoadMore calls coalesce.
func (c *Cache) BeginLoad(roomID string) (models.PaginationCursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.room(roomID)
	if d.cursor.InFlight || !d.cursor.HasMore {
		return d.cursor, false
	}
	d.cursor.InFlight = true
	return d.cursor, true
}

// EndLoad clears the in-flight flag, optionally advancing the cursor. On
// failure the cursor is left unchanged so a retry fetches the same page.
func (c *Cache) EndLoad(roomID string, oldestID string, hasMore bool, advanced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.room(roomID)
	d.cursor.InFlight = false
	if advanced {
		d.cursor.OldestID = oldestID
		d.cursor.HasMore = hasMore
	}
}

// IncrementUnread bumps the unread counter for a room the user is not
// looking at.
func (c *Cache) IncrementUnread(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[roomID]; ok {
		r.Unread++
	}
}

// ResetUnread zeroes the unread counter.
func (c *Cache) ResetUnread(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[roomID]; ok {
		r.Unread = 0
	}
}

// TouchRoom advances the room's last-activity timestamp (monotonic).
func (c *Cache) TouchRoom(roomID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.rooms[roomID]; ok && at.After(r.LastActivity) {
		r.LastActivity = at
	}
}

// SetTyping records or refreshes a typing indicator.
func (c *Cache) SetTyping(roomID, userID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room(roomID).typing[userID] = at
}

// ClearTyping removes a typing indicator (explicit stop).
func (c *Cache) ClearTyping(roomID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.data[roomID]; ok {
		delete(d.typing, userID)
	}
}

// Typing returns the users typing in the room as of now, pruning entries
// older than models.TypingExpiry.
func (c *Cache) Typing(roomID string, now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.data[roomID]
	if !ok {
		return nil
	}
	var out []string
	for user, seen := range d.typing {
		if now.Sub(seen) > models.TypingExpiry {
			delete(d.typing, user)
			continue
		}
		out = append(out, user)
	}
	return out
}

// SweepTyping prunes expired typing entries across all rooms.
func (c *Cache) SweepTyping(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.data {
		for user, seen := range d.typing {
			if now.Sub(seen) > models.TypingExpiry {
				delete(d.typing, user)
			}
		}
	}
}

// SetOnline records a presence transition.
func (c *Cache) SetOnline(userID string, online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if online {
		c.online[userID] = struct{}{}
	} else {
		delete(c.online, userID)
	}
}

// Online reports whether the user is currently online.
func (c *Cache) Online(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.online[userID]
	return ok
}

// PutUpload installs an upload task.
func (c *Cache) PutUpload(t models.UploadTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads[t.ID] = &t
}

// SetUploadProgress advances progress; regressions and updates after a
// terminal state are ignored.
func (c *Cache) SetUploadProgress(id string, progress int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.uploads[id]
	if !ok || t.Terminal() {
		return
	}
	if progress > t.Progress {
		t.Progress = progress
	}
}

// SetUploadStatus moves an upload to a new status. Terminal states are final.
func (c *Cache) SetUploadStatus(id string, status models.UploadStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.uploads[id]
	if !ok || t.Terminal() {
		return
	}
	t.Status = status
	if status == models.UploadCompleted {
		t.Progress = 100
	}
}

// Uploads returns copies of all tracked upload tasks.
func (c *Cache) Uploads() []models.UploadTask {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.UploadTask, 0, len(c.uploads))
	for _, t := range c.uploads {
		out = append(out, *t)
	}
	return out
}

// Upload returns a copy of the task.
func (c *Cache) Upload(id string) (models.UploadTask, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.uploads[id]
	if !ok {
		return models.UploadTask{}, false
	}
	return *t, true
}

// RemoveUpload drops a finished task.
func (c *Cache) RemoveUpload(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.uploads, id)
}
