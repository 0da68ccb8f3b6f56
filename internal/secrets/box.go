package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// Context string bound to sealed app passwords so a blob sealed here
// cannot be replayed in another context.
const aadEmailConfig = "email-config"

var (
	ErrInvalidKey  = errors.New("encryption key must be 32 bytes")
	ErrOpenFailed  = errors.New("failed to open sealed value")
	ErrEmptySecret = errors.New("secret is required")
)

// Box seals and opens sender app passwords with AES-256-GCM.
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts a plaintext secret and returns a hex-encoded
// nonce|ciphertext|tag blob.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptySecret
	}

	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), []byte(aadEmailConfig))
	return hex.EncodeToString(sealed), nil
}

// Open decrypts a blob produced by Seal. It fails closed: any
// truncation, bit flip or key mismatch returns ErrOpenFailed rather
// than wrong plaintext.
func (b *Box) Open(blob string) (string, error) {
	data, err := hex.DecodeString(blob)
	if err != nil {
		return "", ErrOpenFailed
	}
	if len(data) < b.aead.NonceSize() {
		return "", ErrOpenFailed
	}

	nonce, ciphertext := data[:b.aead.NonceSize()], data[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, []byte(aadEmailConfig))
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh hex-encoded 32-byte key, suitable for
// the crypto.encryption_key config setting.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
