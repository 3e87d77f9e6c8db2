// Package keystore holds the user's long-term keypair and per-room symmetric
// keys. It is pure lookup/insert: no network access, no cache access, and key
// bytes are never inspected or logged.
package keystore

import (
	"context"

	"github.com/cipherroom/internal/cryptox"
)

// Store is the key-store contract. A missing room key is reported as
// common.ErrKeyMissing and a missing user keypair as common.ErrNotFound;
// both are matched with errors.Is.
type Store interface {
	// RoomKey returns the symmetric key for the room.
	RoomKey(ctx context.Context, roomID string) ([]byte, error)

	// PutRoomKey installs the symmetric key for the room. Keys are immutable
	// once stored for a given room; a second Put with the same id overwrites
	// only because join responses may redeliver the identical key.
	PutRoomKey(ctx context.Context, roomID string, key []byte) error

	// UserKeypair returns the user's long-term keypair.
	UserKeypair(ctx context.Context) (*cryptox.Keypair, error)

	// SetUserKeypair installs the user's long-term keypair.
	SetUserKeypair(ctx context.Context, kp *cryptox.Keypair) error

	// Clear irreversibly erases all key material. Used on logout and
	// "delete all data".
	Clear(ctx context.Context) error
}
