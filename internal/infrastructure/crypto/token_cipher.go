package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// encPrefix marks values written by this cipher. Values without the prefix
// are treated as legacy plaintext and passed through on read so that tokens
// stored before encryption was enabled keep working during migration.
const encPrefix = "enc:v1:"

// Errors returned by the token cipher
var (
	ErrInvalidKey        = errors.New("token cipher: key must be 32 bytes")
	ErrCiphertextInvalid = errors.New("token cipher: ciphertext is malformed")
)

// TokenCipher encrypts access tokens at rest. Encrypt always writes
// AES-256-GCM; Decrypt accepts both encrypted and legacy plaintext values.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a 32-byte key. The key may be given
// raw or hex-encoded. An empty key yields a passthrough cipher that stores
// tokens unencrypted; this is only intended for tests and local development.
func NewTokenCipher(key string) (*TokenCipher, error) {
	if key == "" {
		return &TokenCipher{}, nil
	}

	keyBytes := []byte(key)
	if len(key) == 64 {
		decoded, err := hex.DecodeString(key)
		if err == nil {
			keyBytes = decoded
		}
	}
	if len(keyBytes) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Enabled reports whether encryption is configured.
func (c *TokenCipher) Enabled() bool {
	return c.aead != nil
}

// Encrypt encrypts a token for storage. Empty tokens stay empty so scrubbed
// rows remain recognizably scrubbed.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !c.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("token cipher: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt returns the plaintext token. Values without the encryption prefix
// are returned unchanged.
func (c *TokenCipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", ErrCiphertextInvalid
	}

	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}
