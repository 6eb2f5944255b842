package cipher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneCipherPassthrough(t *testing.T) {
	var c NoneCipher
	plaintext := []byte("not actually secret")

	ciphertext, err := c.Encrypt(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, ciphertext)

	got, err := c.Decrypt(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}
