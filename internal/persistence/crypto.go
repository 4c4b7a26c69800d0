package persistence

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

// Sealer encrypts credential payloads at rest with AES-256-GCM. The
// nonce is prepended to the ciphertext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 256-bit key from the given secret. An empty
// secret is rejected; run without a sealer instead if encryption at
// rest is not wanted.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("credential key must not be empty")
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts data produced by Seal.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	if len(data) < s.aead.NonceSize() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, ciphertext := data[:s.aead.NonceSize()], data[s.aead.NonceSize():]
	return s.aead.Open(nil, nonce, ciphertext, nil)
}
