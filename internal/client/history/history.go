// Package history persists message history to the client database. Only the
// encrypted wire body is stored; plaintext never reaches disk.
package history

import (
	"context"

	"github.com/cipherroom/internal/client/models"
)

// Repository is the persisted-history contract used by the engine when a
// database is configured. All operations are idempotent under replay.
type Repository interface {
	// Upsert stores or updates a message by its server id. Messages without
	// a server id (optimistic, unacknowledged) are not persisted.
	Upsert(ctx context.Context, m *models.Message) error

	// Recent returns up to limit messages of a room in ascending
	// creation-time order.
	Recent(ctx context.Context, roomID string, limit int) ([]models.Message, error)

	// Tombstone clears the stored body and marks the message deleted.
	Tombstone(ctx context.Context, messageID string) error

	// Clear removes all history. Used on logout.
	Clear(ctx context.Context) error
}
