// Package cryptox implements the message envelope codec: symmetric AES-GCM
// envelopes for room messages, an X25519 exchange for direct messages, and a
// memory-hard KDF for local password verification.
//
// The wire envelope is base64(nonce || ciphertext || tag). Decryption fails
// closed: authentication failure and malformed input both map to
// common.ErrDecryptionFailed so callers can treat them uniformly.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/cipherroom/internal/common"
)

const (
	// KeySize is the room key length (AES-256).
	KeySize = 32

	// nonceSize is the standard GCM nonce length.
	nonceSize = 12
)

// GenerateRoomKey returns a fresh random symmetric key.
func GenerateRoomKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// Encrypt seals plaintext under key and returns the transport envelope.
// A new random nonce is generated for every call.
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// Seal appends ciphertext||tag after the nonce prefix.
	sealed := aesgcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a transport envelope produced by Encrypt. Any failure
// (bad base64, truncated input, wrong key, tampered ciphertext) returns an
// error matching common.ErrDecryptionFailed.
func Decrypt(envelope string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed envelope", common.ErrDecryptionFailed)
	}
	if len(raw) < nonceSize {
		return nil, fmt.Errorf("%w: envelope too short", common.ErrDecryptionFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key", common.ErrDecryptionFailed)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid key", common.ErrDecryptionFailed)
	}

	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, common.ErrDecryptionFailed
	}
	return plaintext, nil
}
