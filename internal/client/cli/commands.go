package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cipherroom/internal/client/engine"
	"github.com/cipherroom/internal/client/models"
)

// Rooms prints the room list, newest activity first.
func (a *App) Rooms(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	rooms := a.engine.Cache().Rooms()
	if len(rooms) == 0 {
		printlnFn("No rooms. Use 'create <name>' or 'join <id>'.")
		return nil
	}
	for _, r := range rooms {
		marker := " "
		if r.ID == a.current {
			marker = "*"
		}
		unread := ""
		if r.Unread > 0 {
			unread = fmt.Sprintf(" (%d unread)", r.Unread)
		}
		printlnFn(fmt.Sprintf("%s %-24s %-10s %s%s", marker, r.ID, r.Type, r.Name, unread))
	}
	return nil
}

// Open loads a room and prints its recent messages.
func (a *App) Open(ctx context.Context, roomID string) error {
	if !a.requireLogin() {
		return nil
	}
	if err := a.engine.OpenRoom(ctx, roomID); err != nil {
		printlnFn("Could not open room:", err)
		return err
	}
	a.current = roomID
	return a.Show(ctx)
}

// Close leaves the current room view; cached messages are kept.
func (a *App) Close(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		return nil
	}
	if err := a.engine.CloseRoom(a.current); err != nil {
		return err
	}
	a.current = ""
	return nil
}

// Show prints the current room's timeline.
func (a *App) Show(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		printlnFn("No room open.")
		return nil
	}
	msgs := a.engine.Cache().Messages(a.current)
	for _, m := range msgs {
		printlnFn(formatMessage(&m))
	}
	if typing := a.engine.Cache().Typing(a.current, time.Now()); len(typing) > 0 {
		printlnFn(strings.Join(typing, ", ") + " typing...")
	}
	return nil
}

// More fetches the next older page of the current room.
func (a *App) More(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		printlnFn("No room open.")
		return nil
	}
	if err := a.engine.LoadMore(ctx, a.current); err != nil {
		printlnFn("Could not load more:", err)
		return err
	}
	return a.Show(ctx)
}

// Send posts a message to the current room.
func (a *App) Send(ctx context.Context, text string) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		printlnFn("No room open.")
		return nil
	}
	a.engine.SetTyping(a.current, false)
	if _, err := a.engine.SendMessage(ctx, a.current, text, engine.SendOptions{}); err != nil {
		printlnFn("Send failed (kept locally for retry):", err)
		return err
	}
	return nil
}

// Edit replaces the body of a message in the current room.
func (a *App) Edit(ctx context.Context, messageID, text string) error {
	if !a.requireLogin() {
		return nil
	}
	if err := a.engine.EditMessage(ctx, a.current, messageID, text); err != nil {
		printlnFn("Edit failed:", err)
		return err
	}
	return nil
}

// Delete tombstones a message in the current room.
func (a *App) Delete(ctx context.Context, messageID string) error {
	if !a.requireLogin() {
		return nil
	}
	if err := a.engine.DeleteMessage(ctx, a.current, messageID); err != nil {
		printlnFn("Delete failed:", err)
		return err
	}
	return nil
}

// React toggles an emoji reaction on a message in the current room.
func (a *App) React(ctx context.Context, messageID, emoji string) error {
	if !a.requireLogin() {
		return nil
	}
	if err := a.engine.ToggleReaction(ctx, a.current, messageID, emoji); err != nil {
		printlnFn("Reaction failed:", err)
		return err
	}
	return nil
}

// Forward re-sends a message from the current room into another.
func (a *App) Forward(ctx context.Context, messageID, dstRoomID string) error {
	if !a.requireLogin() {
		return nil
	}
	if _, err := a.engine.ForwardMessage(ctx, a.current, messageID, dstRoomID); err != nil {
		printlnFn("Forward failed:", err)
		return err
	}
	return nil
}

// Members prints the member directory of the current room.
func (a *App) Members(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		printlnFn("No room open.")
		return nil
	}
	members, err := a.engine.Members(ctx, a.current)
	if err != nil {
		printlnFn("Could not fetch members:", err)
		return err
	}
	for _, m := range members {
		status := "offline"
		if a.engine.Cache().Online(m.UserID) {
			status = "online"
		}
		printlnFn(fmt.Sprintf("%-24s %-16s %s", m.UserID, m.Username, status))
	}
	return nil
}

// Create makes a new room and opens it.
func (a *App) Create(ctx context.Context, name string, typ models.RoomType) error {
	if !a.requireLogin() {
		return nil
	}
	room, err := a.engine.CreateRoom(ctx, name, typ)
	if err != nil {
		printlnFn("Create failed:", err)
		return err
	}
	printlnFn("Created room", room.ID)
	return a.Open(ctx, room.ID)
}

// Join joins an existing room and opens it.
func (a *App) Join(ctx context.Context, roomID string) error {
	if !a.requireLogin() {
		return nil
	}
	room, err := a.engine.JoinRoom(ctx, roomID)
	if err != nil {
		printlnFn("Join failed:", err)
		return err
	}
	return a.Open(ctx, room.ID)
}

// Leave leaves the current room and drops its local state.
func (a *App) Leave(ctx context.Context) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		printlnFn("No room open.")
		return nil
	}
	if err := a.engine.LeaveRoom(ctx, a.current); err != nil {
		printlnFn("Leave failed:", err)
		return err
	}
	a.current = ""
	return nil
}

// Upload encrypts and uploads a file, then sends it as an attachment
// message in the current room.
func (a *App) Upload(ctx context.Context, path string) error {
	if !a.requireLogin() {
		return nil
	}
	if a.current == "" {
		printlnFn("No room open.")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		printlnFn("Could not read file:", err)
		return err
	}
	name := filepath.Base(path)

	att, err := a.engine.UploadAttachment(ctx, a.api, a.current, name, data)
	if err != nil {
		printlnFn("Upload failed:", err)
		return err
	}
	opts := engine.SendOptions{Type: models.MessageTypeFile, Attachments: []models.Attachment{att}}
	if _, err := a.engine.SendMessage(ctx, a.current, name, opts); err != nil {
		printlnFn("Send failed:", err)
		return err
	}
	printlnFn("Uploaded", name)
	return nil
}

func formatMessage(m *models.Message) string {
	switch {
	case m.Deleted:
		return fmt.Sprintf("[%s] %s: (deleted)", m.Key(), m.SenderID)
	case m.DecryptFailed:
		return fmt.Sprintf("[%s] %s: (cannot decrypt)", m.Key(), m.SenderID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: %s", m.Key(), m.SenderID, m.Plaintext)
	if m.Edited {
		b.WriteString(" (edited)")
	}
	if m.Status == models.StatusSending {
		b.WriteString(" ...")
	}
	if m.Status == models.StatusFailed {
		b.WriteString(" (failed)")
	}
	for emoji, users := range m.Reactions {
		fmt.Fprintf(&b, " %s×%d", emoji, len(users))
	}
	for _, att := range m.Attachments {
		fmt.Fprintf(&b, " [file: %s]", att.Name)
	}
	return b.String()
}
