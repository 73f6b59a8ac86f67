// Package codec encrypts message payloads at rest.
//
// A blob is hex(nonce) ":" hex(ciphertext), sealed with AES-256-GCM under a
// key derived from the configured secret. Every call draws a fresh nonce, so
// a blob carries everything needed to open it besides the secret.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// MinSecretLen is the shortest secret accepted by New.
const MinSecretLen = 32

const keyInfo = "consult message codec v1"

// ErrCrypto is returned for a missing or short secret and for blobs that
// cannot be opened.
var ErrCrypto = errors.New("crypto error")

type Codec struct {
	aead cipher.AEAD
}

func New(secret string) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: encryption key is not configured", ErrCrypto)
	}
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("%w: encryption key must be at least %d bytes, got %d", ErrCrypto, MinSecretLen, len(secret))
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("%w: derive key: %v", ErrCrypto, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string passes through unchanged.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if c == nil {
		return "", fmt.Errorf("%w: codec is not initialized", ErrCrypto)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generate nonce: %v", ErrCrypto, err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. The empty string passes through.
func (c *Codec) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	if c == nil {
		return "", fmt.Errorf("%w: codec is not initialized", ErrCrypto)
	}

	parts := strings.Split(blob, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: malformed blob: want 2 segments, got %d", ErrCrypto, len(parts))
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce: %v", ErrCrypto, err)
	}
	if len(nonce) != c.aead.NonceSize() {
		return "", fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrCrypto, c.aead.NonceSize(), len(nonce))
	}
	sealed, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", ErrCrypto, err)
	}

	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: open: %v", ErrCrypto, err)
	}
	return string(plain), nil
}
