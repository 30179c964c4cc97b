// Package secrets decrypts configuration values that are stored encrypted.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var ErrDecrypt = errors.New("secret could not be decrypted")

// Provider turns a stored value into plaintext.
type Provider interface {
	Decrypt(value string) (string, error)
}

// Plain returns values unchanged. Used when no APP_KEY is configured.
type Plain struct{}

func (Plain) Decrypt(value string) (string, error) { return value, nil }

// SecretBox opens base64(nonce || box) values sealed with a shared key.
type SecretBox struct {
	key [keySize]byte
}

// NewSecretBox parses a base64 encoded 32 byte key.
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, errors.Wrap(err, "decode app key")
	}
	if len(raw) != keySize {
		return nil, errors.Errorf("app key must be %d bytes, got %d", keySize, len(raw))
	}
	sb := &SecretBox{}
	copy(sb.key[:], raw)
	return sb, nil
}

// NewProvider picks SecretBox when a key is set and Plain otherwise.
func NewProvider(encodedKey string) (Provider, error) {
	if encodedKey == "" {
		return Plain{}, nil
	}
	return NewSecretBox(encodedKey)
}

func (s *SecretBox) Decrypt(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", errors.Wrap(ErrDecrypt, err.Error())
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	out, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(out), nil
}

// Encrypt seals plaintext for storage in configuration.
func (s *SecretBox) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "read nonce")
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// GenerateKey returns a fresh base64 encoded key.
func GenerateKey() (string, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", errors.Wrap(err, "read key")
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}
