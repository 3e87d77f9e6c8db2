package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoDirect = "cipherroom-direct-v1"

// Keypair is the user's long-term X25519 keypair. Buffers are opaque; nothing
// in this package logs or inspects them beyond the exchange itself.
type Keypair struct {
	Private []byte
	Public  []byte
}

// GenerateKeypair creates a new X25519 keypair for direct-message key exchange.
func GenerateKeypair() (*Keypair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	return &Keypair{Private: priv, Public: pub}, nil
}

// SharedKey derives the symmetric key for a 1:1 conversation from our private
// key and the peer's public key. Both sides compute the same value, which is
// then used with the regular envelope codec.
func SharedKey(private, peerPublic []byte) ([]byte, error) {
	secret, err := curve25519.X25519(private, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("x25519 exchange: %w", err)
	}

	hk := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfoDirect))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return key, nil
}
