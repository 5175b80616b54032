// Package secretbox seals small secrets (client secrets, provider tokens) with
// AES-256-GCM. Sealed values are base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	// EnvVar holds the base64 (or hex) master key.
	EnvVar = "SECRETBOX_MASTER_KEY"

	// SealedPrefix marks config values that must be opened before use.
	SealedPrefix = "enc:"

	nonceSize = 12
	keySize   = 32
	sep       = "|"
)

var (
	ErrNoKey     = fmt.Errorf("%s not set; generate one with: openssl rand -base64 32", EnvVar)
	ErrMalformed = errors.New("secretbox: expected base64(nonce)|base64(ciphertext)")
)

// Box seals and opens values with one key.
type Box struct{ aead cipher.AEAD }

// New builds a Box from a raw 32 byte key.
func New(key []byte) (*Box, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("secretbox: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Box{aead: aead}, nil
}

// FromEnv builds a Box from SECRETBOX_MASTER_KEY.
func FromEnv() (*Box, error) {
	v := strings.TrimSpace(os.Getenv(EnvVar))
	if v == "" {
		return nil, ErrNoKey
	}
	key, err := ParseKey(v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", EnvVar, err)
	}
	return New(key)
}

// ParseKey accepts standard base64, unpadded base64 or 64 hex chars.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == keySize {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil && len(b) == keySize {
		return b, nil
	}
	if len(s) == 2*keySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secretbox: key must decode to %d bytes", keySize)
}

func (b *Box) Seal(plain string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	ct := b.aead.Seal(nil, nonce, []byte(plain), nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

func (b *Box) Open(sealed string) (string, error) {
	nonceB64, ctB64, ok := strings.Cut(sealed, sep)
	if !ok {
		return "", ErrMalformed
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("secretbox: nonce must be %d bytes, got %d", nonceSize, len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}

// Resolve opens v when it carries SealedPrefix and returns it unchanged
// otherwise. A nil Box fails on sealed input.
func Resolve(b *Box, v string) (string, error) {
	if !strings.HasPrefix(v, SealedPrefix) {
		return v, nil
	}
	if b == nil {
		return "", ErrNoKey
	}
	return b.Open(strings.TrimPrefix(v, SealedPrefix))
}
