package crypto

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrEncryptionFailed wraps any failure while sealing a payload.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrDecryptionFailed wraps any failure while opening a payload:
	// malformed encoding, truncated nonce, or a bad authentication tag.
	// Callers must treat it as fatal to the message, not retryable.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Cipher seals and opens message content with AES-256-GCM. Each call
// uses a fresh random nonce prefixed to the payload, so the encoded
// form is self-contained: base64(nonce || ciphertext || tag).
type Cipher struct {
	gcm gocipher.AEAD
}

// NewCipher builds a Cipher from generated or derived key material.
func NewCipher(key Key) (*Cipher, error) {
	raw, err := key.bytes()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

// Encrypt seals plaintext and returns the portable encoded payload.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered input yields
// ErrDecryptionFailed rather than garbage output.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: undecodable payload: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < c.gcm.NonceSize() {
		return "", fmt.Errorf("%w: payload shorter than nonce", ErrDecryptionFailed)
	}
	nonce, ciphertext := sealed[:c.gcm.NonceSize()], sealed[c.gcm.NonceSize():]
	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}
