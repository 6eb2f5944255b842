package cipher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMCipherRoundTrip(t *testing.T) {
	var key [32]byte
	copy(key[:], "01234567890123456789012345678901")
	c, err := NewAESGCMCipher(key)
	require.NoError(t, err)

	plaintext := []byte("remember this secret")
	ciphertext, err := c.Encrypt(context.Background(), plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := c.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestAESGCMCipherEncryptProducesFreshNonce(t *testing.T) {
	var key [32]byte
	copy(key[:], "01234567890123456789012345678901")
	c, err := NewAESGCMCipher(key)
	require.NoError(t, err)

	a, err := c.Encrypt(context.Background(), []byte("same plaintext"))
	require.NoError(t, err)
	b, err := c.Encrypt(context.Background(), []byte("same plaintext"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "nonce reuse would make two ciphertexts of the same plaintext identical")
}

func TestAESGCMCipherDecryptRejectsTamperedCiphertext(t *testing.T) {
	var key [32]byte
	copy(key[:], "01234567890123456789012345678901")
	c, err := NewAESGCMCipher(key)
	require.NoError(t, err)

	ciphertext, err := c.Encrypt(context.Background(), []byte("integrity matters"))
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = c.Decrypt(context.Background(), ciphertext)
	assert.Error(t, err)
}

func TestAESGCMCipherDecryptRejectsShortCiphertext(t *testing.T) {
	var key [32]byte
	c, err := NewAESGCMCipher(key)
	require.NoError(t, err)

	_, err = c.Decrypt(context.Background(), []byte("short"))
	assert.Error(t, err)
}
