// Package common defines shared constants and sentinel errors used across
// the engine's layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository / lookup errors.
	ErrNotFound = errors.New("not found")

	// Crypto errors. ErrDecryptionFailed covers both authentication failure
	// and malformed envelopes; it is per-message and non-fatal.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrKeyMissing means no key material exists for the room (or no user
	// keypair is installed). Fatal to the specific call only.
	ErrKeyMissing = errors.New("room key missing")

	// Transport errors.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// Auth errors.
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
