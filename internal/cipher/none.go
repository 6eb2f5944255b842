package cipher

import "context"

// NoneCipher is a passthrough Cipher for deployments that rely on
// disk-level encryption instead of application-level encryption.
type NoneCipher struct{}

func (NoneCipher) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (NoneCipher) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}
