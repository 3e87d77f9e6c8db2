package keystore

import (
	"context"
	"sync"

	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	roomKey map[string][]byte
	keypair *cryptox.Keypair
}

func NewMemory() *Memory {
	return &Memory{roomKey: make(map[string][]byte)}
}

func (s *Memory) RoomKey(_ context.Context, roomID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.roomKey[roomID]
	if !ok {
		return nil, common.ErrKeyMissing
	}
	out := make([]byte, len(key))
	copy(out, key)
	return out, nil
}

func (s *Memory) PutRoomKey(_ context.Context, roomID string, key []byte) error {
	stored := make([]byte, len(key))
	copy(stored, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomKey[roomID] = stored
	return nil
}

func (s *Memory) UserKeypair(_ context.Context) (*cryptox.Keypair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.keypair == nil {
		return nil, common.ErrNotFound
	}
	return &cryptox.Keypair{
		Private: append([]byte(nil), s.keypair.Private...),
		Public:  append([]byte(nil), s.keypair.Public...),
	}, nil
}

func (s *Memory) SetUserKeypair(_ context.Context, kp *cryptox.Keypair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keypair = &cryptox.Keypair{
		Private: append([]byte(nil), kp.Private...),
		Public:  append([]byte(nil), kp.Public...),
	}
	return nil
}

func (s *Memory) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, key := range s.roomKey {
		common.WipeByteArray(key)
		delete(s.roomKey, id)
	}
	if s.keypair != nil {
		common.WipeByteArray(s.keypair.Private)
		common.WipeByteArray(s.keypair.Public)
		s.keypair = nil
	}
	return nil
}
