package cipher

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/scrypster/mnemo/pkg/merr"
)

// AESGCMCipher implements Cipher with AES-256-GCM. Ciphertexts are
// self-contained: a fresh random nonce is prepended to every output so
// Decrypt needs nothing but the key.
type AESGCMCipher struct {
	gcm cipher.AEAD
}

// NewAESGCMCipher builds an AESGCMCipher from a 32-byte key.
func NewAESGCMCipher(key [32]byte) (*AESGCMCipher, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, merr.Wrap(merr.Internal, "failed to construct AES cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, merr.Wrap(merr.Internal, "failed to construct GCM mode", err)
	}
	return &AESGCMCipher{gcm: gcm}, nil
}

// Encrypt seals plaintext with a fresh random nonce, returning nonce||ciphertext.
func (c *AESGCMCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, merr.Wrap(merr.Decryption, "failed to generate nonce", err)
	}
	return c.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce||ciphertext blob produced by Encrypt.
func (c *AESGCMCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, merr.New(merr.Decryption, "ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, merr.Wrap(merr.Decryption, "failed to authenticate ciphertext", err)
	}
	return plaintext, nil
}
