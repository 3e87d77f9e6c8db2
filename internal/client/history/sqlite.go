package history

import (
	"context"
	"fmt"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert stores a message by server id. On conflict the mutable columns are
// updated, so replaying the same event is harmless.
func (r *SQLiteRepository) Upsert(ctx context.Context, m *models.Message) error {
	if m.ID == "" {
		return nil
	}
	query := `INSERT INTO messages (id, room_id, sender_id, body, type, reply_to_id, edited, deleted, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET body = excluded.body,
				edited = excluded.edited,
				deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.RoomID, m.SenderID, m.Body, string(m.Type), m.ReplyToID,
		boolToInt(m.Edited), boolToInt(m.Deleted), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	return nil
}

// Recent returns the newest limit messages of the room, oldest first.
func (r *SQLiteRepository) Recent(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	query := `SELECT id, room_id, sender_id, body, type, reply_to_id, edited, deleted, created_at
			FROM (
				SELECT * FROM messages WHERE room_id = ?
				ORDER BY created_at DESC LIMIT ?
			) ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select messages: %w", err)
	}
	defer rows.Close()

	var result []models.Message
	for rows.Next() {
		var m models.Message
		var typ string
		var edited, deleted int
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Body, &typ,
			&m.ReplyToID, &edited, &deleted, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = models.MessageType(typ)
		m.Status = models.StatusSent
		m.Edited = edited != 0
		m.Deleted = deleted != 0
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Tombstone clears the body and flags the row; a second call is a no-op.
func (r *SQLiteRepository) Tombstone(ctx context.Context, messageID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE messages SET body = '', deleted = 1 WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to tombstone message: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages`)
	if err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
