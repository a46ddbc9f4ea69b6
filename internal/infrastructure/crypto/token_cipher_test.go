package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f000102030405060708090a0b0c0d0e0f"

func TestNewTokenCipher(t *testing.T) {
	t.Run("empty key is a passthrough", func(t *testing.T) {
		cipher, err := NewTokenCipher("")
		require.NoError(t, err)
		assert.False(t, cipher.Enabled())
	})

	t.Run("hex key", func(t *testing.T) {
		cipher, err := NewTokenCipher(testKeyHex)
		require.NoError(t, err)
		assert.True(t, cipher.Enabled())
	})

	t.Run("raw 32-byte key", func(t *testing.T) {
		cipher, err := NewTokenCipher(strings.Repeat("k", 32))
		require.NoError(t, err)
		assert.True(t, cipher.Enabled())
	})

	t.Run("rejects a short key", func(t *testing.T) {
		_, err := NewTokenCipher("too-short")
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher(testKeyHex)
	require.NoError(t, err)

	stored, err := cipher.Encrypt("shpat_secret_token")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored, "enc:v1:"))
	assert.NotContains(t, stored, "shpat_secret_token")

	plain, err := cipher.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, "shpat_secret_token", plain)

	t.Run("each encryption uses a fresh nonce", func(t *testing.T) {
		again, err := cipher.Encrypt("shpat_secret_token")
		require.NoError(t, err)
		assert.NotEqual(t, stored, again)
	})

	t.Run("empty token stays empty", func(t *testing.T) {
		stored, err := cipher.Encrypt("")
		require.NoError(t, err)
		assert.Empty(t, stored)
	})
}

func TestTokenCipher_LegacyPlaintextPassthrough(t *testing.T) {
	cipher, err := NewTokenCipher(testKeyHex)
	require.NoError(t, err)

	// Rows written before encryption was enabled carry no prefix.
	plain, err := cipher.Decrypt("shpat_legacy")
	require.NoError(t, err)
	assert.Equal(t, "shpat_legacy", plain)
}

func TestTokenCipher_RejectsDamage(t *testing.T) {
	cipher, err := NewTokenCipher(testKeyHex)
	require.NoError(t, err)

	t.Run("truncated ciphertext", func(t *testing.T) {
		_, err := cipher.Decrypt("enc:v1:AAAA")
		assert.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := cipher.Decrypt("enc:v1:!!!!")
		assert.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("wrong key", func(t *testing.T) {
		stored, err := cipher.Encrypt("shpat_secret_token")
		require.NoError(t, err)

		other, err := NewTokenCipher(strings.Repeat("x", 32))
		require.NoError(t, err)
		_, err = other.Decrypt(stored)
		assert.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("encrypted value without a configured key", func(t *testing.T) {
		passthrough, err := NewTokenCipher("")
		require.NoError(t, err)

		stored, err := cipher.Encrypt("shpat_secret_token")
		require.NoError(t, err)
		_, err = passthrough.Decrypt(stored)
		assert.ErrorIs(t, err, ErrCiphertextInvalid)
	})
}
