package store

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// NonceSize is the size of the secretbox nonce prepended to ciphertext.
const NonceSize = 24

// ErrDecryption is returned when a ciphertext cannot be authenticated or
// decrypted (corrupted blob or wrong key).
var ErrDecryption = errors.New("template decryption failed")

// cipher seals and opens template blobs with NaCl secretbox.
type cipher struct {
	key [KeySize]byte
}

// encrypt seals the plaintext with a random nonce. The nonce is prepended
// to the returned ciphertext.
func (c *cipher) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &c.key), nil
}

// decrypt opens a ciphertext produced by encrypt.
func (c *cipher) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrDecryption
	}
	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &c.key)
	if !ok {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
