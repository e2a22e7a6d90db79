package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const keyBytes = 32

// ErrRandomnessUnavailable reports that the platform's secure random
// source failed; no key or nonce may be produced without it.
var ErrRandomnessUnavailable = errors.New("secure randomness unavailable")

// Key is symmetric key material encoded as base64 so it travels as a
// plain string. It lives in memory for the session only; persisting it
// is a deployment decision made elsewhere.
type Key string

// GenerateKey produces a fresh 256-bit key from the secure random
// source.
func GenerateKey() (Key, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
	}
	return Key(base64.StdEncoding.EncodeToString(raw)), nil
}

// DeriveKey stretches a user passphrase into key material via scrypt,
// for conversations protected by a shared secret instead of a random
// session key.
func DeriveKey(passphrase string) (Key, error) {
	if passphrase == "" {
		return "", errors.New("empty passphrase")
	}
	salt := sha256.Sum256([]byte(passphrase))
	raw, err := scrypt.Key([]byte(passphrase), salt[:], 1<<15, 8, 1, keyBytes)
	if err != nil {
		return "", err
	}
	return Key(base64.StdEncoding.EncodeToString(raw)), nil
}

func (k Key) bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(string(k))
	if err != nil {
		return nil, fmt.Errorf("malformed key: %w", err)
	}
	if len(raw) != keyBytes {
		return nil, fmt.Errorf("key must be %d bytes, got %d", keyBytes, len(raw))
	}
	return raw, nil
}
