package keystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
	"github.com/cipherroom/internal/dbx"
)

// Keypair rows live in the metadata table under fixed keys.
const (
	metaKeypairPrivate = "keypair.private"
	metaKeypairPublic  = "keypair.public"
)

// SQLite is a Store backed by the client database, so keys survive restarts.
type SQLite struct {
	db dbx.DBTX
}

func NewSQLite(db dbx.DBTX) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) RoomKey(ctx context.Context, roomID string) ([]byte, error) {
	var key []byte
	err := s.db.QueryRowContext(ctx, `SELECT key FROM room_keys WHERE room_id = ?`, roomID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrKeyMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room key: %w", err)
	}
	return key, nil
}

func (s *SQLite) PutRoomKey(ctx context.Context, roomID string, key []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO room_keys (room_id, key) VALUES (?, ?)
		ON CONFLICT(room_id) DO UPDATE SET key = excluded.key
	`, roomID, key)
	if err != nil {
		return fmt.Errorf("failed to put room key: %w", err)
	}
	return nil
}

func (s *SQLite) UserKeypair(ctx context.Context) (*cryptox.Keypair, error) {
	priv, err := s.meta(ctx, metaKeypairPrivate)
	if err != nil {
		return nil, err
	}
	pub, err := s.meta(ctx, metaKeypairPublic)
	if err != nil {
		return nil, err
	}
	return &cryptox.Keypair{Private: priv, Public: pub}, nil
}

func (s *SQLite) SetUserKeypair(ctx context.Context, kp *cryptox.Keypair) error {
	if err := s.setMeta(ctx, metaKeypairPrivate, kp.Private); err != nil {
		return err
	}
	return s.setMeta(ctx, metaKeypairPublic, kp.Public)
}

// Clear removes every key row. The database file may still hold freed pages;
// callers wanting physical erasure should also vacuum or delete the file.
func (s *SQLite) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_keys`); err != nil {
		return fmt.Errorf("failed to clear room keys: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key IN (?, ?)`,
		metaKeypairPrivate, metaKeypairPublic); err != nil {
		return fmt.Errorf("failed to clear keypair: %w", err)
	}
	return nil
}

func (s *SQLite) meta(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) setMeta(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}
