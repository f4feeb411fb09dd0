// Package vault encrypts small secrets at rest, either through a Vault
// transit key or with a locally derived key.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Cipher encrypts and decrypts secrets such as TOTP seeds
type Cipher interface {
	Encrypt(ctx context.Context, plaintext string) (string, error)
	Decrypt(ctx context.Context, ciphertext string) (string, error)
}

const localPrefix = "local:v1:"

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// TransitCipher encrypts with a Vault transit key
type TransitCipher struct {
	client  *Client
	keyName string
}

// NewTransitCipher ensures keyName exists and returns a cipher bound to it
func NewTransitCipher(ctx context.Context, client *Client, keyName string) (*TransitCipher, error) {
	if err := client.EnsureKey(ctx, keyName); err != nil {
		return nil, err
	}
	return &TransitCipher{client: client, keyName: keyName}, nil
}

func (t *TransitCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	return t.client.Encrypt(ctx, t.keyName, []byte(plaintext))
}

func (t *TransitCipher) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	if strings.HasPrefix(ciphertext, localPrefix) {
		return "", fmt.Errorf("%w: value was encrypted with the local key", ErrMalformedCiphertext)
	}
	plaintext, err := t.client.Decrypt(ctx, t.keyName, ciphertext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// LocalCipher uses XChaCha20-Poly1305 with a key derived by HKDF-SHA256
type LocalCipher struct {
	key []byte
}

// NewLocalCipher derives the encryption key from secret
func NewLocalCipher(secret []byte) (*LocalCipher, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("local cipher requires key material")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, []byte("fp-innova"), []byte("two-factor secrets"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &LocalCipher{key: key}, nil
}

func (l *LocalCipher) Encrypt(_ context.Context, plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(l.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return localPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (l *LocalCipher) Decrypt(_ context.Context, ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, localPrefix)
	if !ok {
		return "", ErrMalformedCiphertext
	}
	sealed, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}
	aead, err := chacha20poly1305.NewX(l.key)
	if err != nil {
		return "", fmt.Errorf("cipher creation failed: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	nonce, body := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed: %w", err)
	}
	return string(plaintext), nil
}
