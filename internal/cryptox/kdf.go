package cryptox

import "golang.org/x/crypto/argon2"

// Fixed argon2id cost parameters. Changing them invalidates stored verifiers.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveLocalVerifier hashes a password for local verification only. The
// result is never sent to the server as a credential and must never be reused
// as a message key.
func DeriveLocalVerifier(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeySize)
}
