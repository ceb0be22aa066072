package secrets

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(seed byte) [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestBox(t *testing.T) {
	box := NewBox(testKey(1))

	t.Run("round trip", func(t *testing.T) {
		sealed, err := box.Encrypt("api-key-123")
		require.NoError(t, err)
		assert.NotContains(t, sealed, "api-key-123")

		plain, err := box.Decrypt(sealed)
		require.NoError(t, err)
		assert.Equal(t, "api-key-123", plain)
	})

	t.Run("nonce differs per call", func(t *testing.T) {
		a, _ := box.Encrypt("same")
		b, _ := box.Encrypt("same")
		assert.NotEqual(t, a, b)
	})

	t.Run("empty stays empty", func(t *testing.T) {
		sealed, err := box.Encrypt("")
		require.NoError(t, err)
		assert.Empty(t, sealed)

		plain, err := box.Decrypt("")
		require.NoError(t, err)
		assert.Empty(t, plain)
	})

	t.Run("wrong key", func(t *testing.T) {
		sealed, _ := box.Encrypt("secret")
		_, err := NewBox(testKey(2)).Decrypt(sealed)
		assert.ErrorIs(t, err, ErrDecrypt)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := box.Decrypt("not base64!")
		assert.ErrorIs(t, err, ErrDecrypt)

		_, err = box.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
		assert.ErrorIs(t, err, ErrDecrypt)
	})
}

func TestGenerateKey(t *testing.T) {
	encoded, err := GenerateKey()
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}
