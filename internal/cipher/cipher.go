// Package cipher provides at-rest encryption for memory content. No AEAD
// library appears anywhere in the retrieved example pack, so this package
// is built on the standard library's crypto/aes and crypto/cipher, which
// is the idiomatic Go way to get AES-GCM without a third-party dependency.
package cipher

import "context"

// Cipher encrypts and decrypts memory content for at-rest storage.
// Implementations must be safe for concurrent use.
type Cipher interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}
