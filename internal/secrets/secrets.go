// Package secrets implements the two-tier key hierarchy protecting
// connection secrets: a master key-encryption key (KEK) wraps one random
// data-encryption key (DEK) per organization, and the DEK encrypts the
// organization's secret fields. Raw DEKs are never persisted.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey           = errors.New("invalid key")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// DEKSize is the size of a data-encryption key in bytes.
const DEKSize = chacha20poly1305.KeySize

// KEKProvider wraps and unwraps DEKs under a master key. Production deploys
// can back this with a KMS; LocalKEK keeps the master key in process.
type KEKProvider interface {
	Wrap(dek []byte) (string, error)
	Unwrap(blob string) ([]byte, error)
}

// LocalKEK is a KEKProvider over an in-process 32-byte master key.
type LocalKEK struct {
	key []byte
}

// NewLocalKEK builds a provider from a base64-encoded 32-byte master key.
func NewLocalKEK(masterKeyB64 string) (*LocalKEK, error) {
	key, err := base64.StdEncoding.DecodeString(masterKeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: master key is not valid base64", ErrInvalidKey)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: master key must be %d bytes", ErrInvalidKey, chacha20poly1305.KeySize)
	}
	return &LocalKEK{key: key}, nil
}

func (l *LocalKEK) Wrap(dek []byte) (string, error) {
	return seal(l.key, dek)
}

func (l *LocalKEK) Unwrap(blob string) ([]byte, error) {
	return open(l.key, blob)
}

// NewDEK generates a fresh random data-encryption key.
func NewDEK() ([]byte, error) {
	dek := make([]byte, DEKSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("generate dek: %w", err)
	}
	return dek, nil
}

// EncryptSecret encrypts a secret string field under the given DEK and
// returns a self-contained base64 blob.
func EncryptSecret(plaintext string, dek []byte) (string, error) {
	return seal(dek, []byte(plaintext))
}

// DecryptSecret decrypts a blob produced by EncryptSecret. Decryption with
// the wrong DEK fails with ErrAuthenticationFailed; it never silently
// returns corrupted plaintext.
func DecryptSecret(blob string, dek []byte) (string, error) {
	plaintext, err := open(dek, blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// seal encrypts with XChaCha20-Poly1305, prepending the random nonce to the
// ciphertext, and encodes the result as base64.
func seal(key, plaintext []byte) (string, error) {
	if len(key) != chacha20poly1305.KeySize {
		return "", fmt.Errorf("%w: key must be %d bytes", ErrInvalidKey, chacha20poly1305.KeySize)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func open(key []byte, blob string) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrInvalidKey, chacha20poly1305.KeySize)
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext is not valid base64", ErrAuthenticationFailed)
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrAuthenticationFailed)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("construct xchacha20-poly1305: %w", err)
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return plaintext, nil
}
