// Package drivekey provides type-safe keypair identity types for drives.
// A drive is reachable by its public key; the secret key authorizes
// mutation. Keys render as lowercase hex everywhere user-facing.
//
// This is a leaf package with zero dependencies beyond stdlib.
package drivekey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// PublicKeySize is the byte length of a drive public key.
const PublicKeySize = ed25519.PublicKeySize

// PublicKey identifies a drive. The zero value represents an absent key.
type PublicKey struct {
	value [PublicKeySize]byte
	set   bool
}

// SecretKey authorizes mutation of a drive. Never rendered in full;
// String() is deliberately redacted so a key cannot leak through logging.
type SecretKey struct {
	value ed25519.PrivateKey
}

// KeyPair couples a drive's public identity with its mutation capability.
type KeyPair struct {
	Public PublicKey
	Secret SecretKey
}

// Generate creates a fresh keypair from crypto/rand.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("drivekey: generating keypair: %w", err)
	}

	var pk PublicKey
	copy(pk.value[:], pub)
	pk.set = true

	return KeyPair{Public: pk, Secret: SecretKey{value: priv}}, nil
}

// ParsePublic decodes a hex-encoded public key. Accepts upper or lower
// case input; the canonical form is lowercase. Empty input returns the
// zero key, which callers check with IsZero().
func ParsePublic(raw string) (PublicKey, error) {
	if raw == "" {
		return PublicKey{}, nil
	}

	b, err := hex.DecodeString(strings.ToLower(raw))
	if err != nil {
		return PublicKey{}, fmt.Errorf("drivekey: invalid public key hex: %w", err)
	}

	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("drivekey: public key must be %d bytes, got %d", PublicKeySize, len(b))
	}

	var pk PublicKey
	copy(pk.value[:], b)
	pk.set = true

	return pk, nil
}

// FromBytes builds a PublicKey from raw bytes.
func FromBytes(b []byte) (PublicKey, error) {
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("drivekey: public key must be %d bytes, got %d", PublicKeySize, len(b))
	}

	var pk PublicKey
	copy(pk.value[:], b)
	pk.set = true

	return pk, nil
}

// String returns the lowercase hex rendering, or "" for the zero key.
func (pk PublicKey) String() string {
	if !pk.set {
		return ""
	}

	return hex.EncodeToString(pk.value[:])
}

// Bytes returns a copy of the raw key bytes, or nil for the zero key.
func (pk PublicKey) Bytes() []byte {
	if !pk.set {
		return nil
	}

	out := make([]byte, PublicKeySize)
	copy(out, pk.value[:])

	return out
}

// IsZero reports whether this is the zero-value (absent) key.
func (pk PublicKey) IsZero() bool {
	return !pk.set
}

// Equal reports whether two public keys are identical.
func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.set == other.set && pk.value == other.value
}

// Sign signs msg with the secret key.
func (sk SecretKey) Sign(msg []byte) []byte {
	return ed25519.Sign(sk.value, msg)
}

// IsZero reports whether the secret key is absent.
func (sk SecretKey) IsZero() bool {
	return len(sk.value) == 0
}

// String returns a redacted placeholder, never the key material.
func (sk SecretKey) String() string {
	if sk.IsZero() {
		return ""
	}

	return "<secret>"
}

// Bytes returns the raw private key for persistence. Callers own keeping
// the result off any log path.
func (sk SecretKey) Bytes() []byte {
	out := make([]byte, len(sk.value))
	copy(out, sk.value)

	return out
}

// SecretFromBytes restores a secret key persisted by Bytes().
func SecretFromBytes(b []byte) (SecretKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return SecretKey{}, fmt.Errorf("drivekey: secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}

	priv := make(ed25519.PrivateKey, len(b))
	copy(priv, b)

	return SecretKey{value: priv}, nil
}

// Verify reports whether sig is a valid signature of msg under pk.
func (pk PublicKey) Verify(msg, sig []byte) bool {
	if !pk.set {
		return false
	}

	return ed25519.Verify(pk.value[:], msg, sig)
}
