package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/cipherroom/internal/client/models"
	"github.com/stretchr/testify/require"
)

func newMsg(id, room string, at time.Time) models.Message {
	return models.Message{
		ID: id, RoomID: room, SenderID: "u1",
		Body: "ZW5j", Plaintext: "hi", Type: models.MessageTypeText,
		Status: models.StatusSent, CreatedAt: at,
	}
}

func TestUpsertMessage_IdempotentReplay(t *testing.T) {
	c := New()
	at := time.Now()

	m := newMsg("m1", "r1", at)
	c.UpsertMessage(m)
	c.UpsertMessage(m)
	c.UpsertMessage(m)

	got := c.Messages("r1")
	require.Len(t, got, 1)
	require.Equal(t, "m1", got[0].ID)
}

func TestUpsertMessage_OutOfOrderArrivalsSortAscending(t *testing.T) {
	c := New()
	base := time.Now()

	// arrival order deliberately scrambled
	for _, i := range []int{5, 1, 4, 2, 3} {
		c.UpsertMessage(newMsg(fmt.Sprintf("m%d", i), "r1", base.Add(time.Duration(i)*time.Second)))
	}

	got := c.Messages("r1")
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		require.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt),
			"messages must render oldest-first")
	}
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, "m5", got[4].ID)
}

func TestResolveLocal_ReplacesNotDuplicates(t *testing.T) {
	c := New()
	at := time.Now()

	optimistic := models.Message{
		LocalID: "tmp-1", RoomID: "r1", SenderID: "me",
		Plaintext: "hello", Status: models.StatusSending, CreatedAt: at,
	}
	c.UpsertMessage(optimistic)

	require.True(t, c.ResolveLocal("r1", "tmp-1", "srv-1"))

	// server broadcast of the same message arrives afterwards
	echo := newMsg("srv-1", "r1", at)
	echo.LocalID = "tmp-1"
	c.UpsertMessage(echo)

	got := c.Messages("r1")
	require.Len(t, got, 1, "echo must replace the optimistic message, not duplicate it")
	require.Equal(t, "srv-1", got[0].ID)
	require.Equal(t, models.StatusSent, got[0].Status)
}

func TestUpsertMessage_EchoBeforeAckStillDedupes(t *testing.T) {
	c := New()
	at := time.Now()

	c.UpsertMessage(models.Message{
		LocalID: "tmp-1", RoomID: "r1", SenderID: "me",
		Status: models.StatusSending, CreatedAt: at,
	})

	// broadcast carrying the correlation id beats the acknowledgement
	echo := newMsg("srv-1", "r1", at)
	echo.LocalID = "tmp-1"
	c.UpsertMessage(echo)

	// late acknowledgement resolves the same pair; must be a no-op
	c.ResolveLocal("r1", "tmp-1", "srv-1")

	got := c.Messages("r1")
	require.Len(t, got, 1)
	require.Equal(t, "srv-1", got[0].ID)
}

func TestResolveLocal_UnknownLocalIsNoop(t *testing.T) {
	c := New()
	require.False(t, c.ResolveLocal("r1", "ghost", "srv-1"))
	require.Empty(t, c.Messages("r1"))
}

func TestTombstone_IdempotentAndKeepsIdentity(t *testing.T) {
	c := New()
	c.UpsertMessage(newMsg("m1", "r1", time.Now()))

	require.True(t, c.Tombstone("r1", "m1"))
	require.False(t, c.Tombstone("r1", "m1"), "second delete is a no-op")

	got := c.Messages("r1")
	require.Len(t, got, 1)
	require.True(t, got[0].Deleted)
	require.Empty(t, got[0].Plaintext)

	// a replayed new_message for a tombstoned id must not resurrect it
	c.UpsertMessage(newMsg("m1", "r1", time.Now()))
	got = c.Messages("r1")
	require.True(t, got[0].Deleted)
}

func TestApplyEdit_Idempotent(t *testing.T) {
	c := New()
	at := time.Now()
	c.UpsertMessage(newMsg("m1", "r1", at))

	editedAt := at.Add(time.Minute)
	require.True(t, c.ApplyEdit("r1", "m1", "bmV3", "new", editedAt))
	require.True(t, c.ApplyEdit("r1", "m1", "bmV3", "new", editedAt))

	got, ok := c.Message("r1", "m1")
	require.True(t, ok)
	require.True(t, got.Edited)
	require.Equal(t, "new", got.Plaintext)
}

func TestMergeReaction_SetSemantics(t *testing.T) {
	c := New()
	c.UpsertMessage(newMsg("m1", "r1", time.Now()))

	// add, add -> exactly one entry
	c.MergeReaction("r1", "m1", "👍", "u2", true)
	c.MergeReaction("r1", "m1", "👍", "u2", true)
	m, _ := c.Message("r1", "m1")
	require.Len(t, m.Reactions["👍"], 1)

	// add, remove -> zero
	c.MergeReaction("r1", "m1", "👍", "u2", false)
	m, _ = c.Message("r1", "m1")
	require.False(t, m.HasReaction("👍", "u2"))

	// removing a reaction that was never added is a no-op
	c.MergeReaction("r1", "m1", "🎉", "u3", false)
}

func TestMergeReaction_SurvivesContentMerge(t *testing.T) {
	c := New()
	at := time.Now()
	c.UpsertMessage(newMsg("m1", "r1", at))
	c.MergeReaction("r1", "m1", "👍", "u2", true)

	// replayed new_message for the same id
	c.UpsertMessage(newMsg("m1", "r1", at))

	m, _ := c.Message("r1", "m1")
	require.True(t, m.HasReaction("👍", "u2"))
}

func TestBeginEndLoad_CoalescesAndRetains(t *testing.T) {
	c := New()
	c.SetPagination("r1", models.PaginationCursor{OldestID: "m10", HasMore: true})

	cur, ok := c.BeginLoad("r1")
	require.True(t, ok)
	require.Equal(t, "m10", cur.OldestID)

	// second call while in flight coalesces
	_, ok = c.BeginLoad("r1")
	require.False(t, ok)

	// failure: flag cleared, cursor unchanged
	c.EndLoad("r1", "", false, false)
	cur = c.Pagination("r1")
	require.False(t, cur.InFlight)
	require.Equal(t, "m10", cur.OldestID)

	// success: cursor moves backward
	_, ok = c.BeginLoad("r1")
	require.True(t, ok)
	c.EndLoad("r1", "m3", true, true)
	require.Equal(t, "m3", c.Pagination("r1").OldestID)

	// exhausted history: further loads are no-ops
	_, ok = c.BeginLoad("r1")
	require.True(t, ok)
	c.EndLoad("r1", "m1", false, true)
	_, ok = c.BeginLoad("r1")
	require.False(t, ok)
}

func TestUnreadCounters(t *testing.T) {
	c := New()
	c.UpsertRoom(models.Room{ID: "r1", Name: "general"})

	c.IncrementUnread("r1")
	c.IncrementUnread("r1")
	r, _ := c.Room("r1")
	require.Equal(t, 2, r.Unread)

	// room refresh must not clobber the counter
	c.UpsertRoom(models.Room{ID: "r1", Name: "general renamed"})
	r, _ = c.Room("r1")
	require.Equal(t, 2, r.Unread)

	c.ResetUnread("r1")
	r, _ = c.Room("r1")
	require.Equal(t, 0, r.Unread)
}

func TestTyping_ExpiresAfterTimeout(t *testing.T) {
	c := New()
	start := time.Now()

	c.SetTyping("r1", "u2", start)
	c.SetTyping("r1", "u3", start)

	require.ElementsMatch(t, []string{"u2", "u3"}, c.Typing("r1", start.Add(time.Second)))

	// u3 refreshes, u2 goes stale
	c.SetTyping("r1", "u3", start.Add(4*time.Second))
	got := c.Typing("r1", start.Add(6*time.Second))
	require.Equal(t, []string{"u3"}, got)

	// explicit stop
	c.ClearTyping("r1", "u3")
	require.Empty(t, c.Typing("r1", start.Add(6*time.Second)))
}

func TestUpload_MonotonicProgress(t *testing.T) {
	c := New()
	c.PutUpload(models.UploadTask{ID: "up1", RoomID: "r1", Status: models.UploadUploading})

	c.SetUploadProgress("up1", 40)
	c.SetUploadProgress("up1", 30) // regression ignored
	u, _ := c.Upload("up1")
	require.Equal(t, 40, u.Progress)

	c.SetUploadStatus("up1", models.UploadCompleted)
	u, _ = c.Upload("up1")
	require.Equal(t, 100, u.Progress)

	// terminal state is final
	c.SetUploadStatus("up1", models.UploadFailed)
	c.SetUploadProgress("up1", 10)
	u, _ = c.Upload("up1")
	require.Equal(t, models.UploadCompleted, u.Status)
	require.Equal(t, 100, u.Progress)
}

func TestMessages_ReturnsSnapshots(t *testing.T) {
	c := New()
	c.UpsertMessage(newMsg("m1", "r1", time.Now()))
	c.MergeReaction("r1", "m1", "👍", "u2", true)

	got := c.Messages("r1")
	got[0].Plaintext = "mutated"
	delete(got[0].Reactions["👍"], "u2")

	again, _ := c.Message("r1", "m1")
	require.Equal(t, "hi", again.Plaintext)
	require.True(t, again.HasReaction("👍", "u2"))
}

func TestRooms_SortedByActivity(t *testing.T) {
	c := New()
	base := time.Now()
	c.UpsertRoom(models.Room{ID: "r1", LastActivity: base})
	c.UpsertRoom(models.Room{ID: "r2", LastActivity: base.Add(time.Hour)})

	c.TouchRoom("r1", base.Add(2*time.Hour))
	c.TouchRoom("r1", base) // regressions ignored

	rooms := c.Rooms()
	require.Equal(t, "r1", rooms[0].ID)
	require.Equal(t, "r2", rooms[1].ID)
}
