package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	keyLength = 32
	ivLength  = 16
	tagLength = 16
)

var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encryptor seals short texts with AES-256-GCM. Values are serialized as
// base64(iv):base64(tag):base64(ciphertext).
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives the key with scrypt(secret, "salt", N=16384, r=8, p=1).
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, errors.New("encryption secret is empty")
	}
	key, err := scrypt.Key([]byte(secret), []byte("salt"), 16384, 8, 1, keyLength)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt returns "" for "".
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	sealed := e.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagLength], sealed[len(sealed)-tagLength:]

	enc := base64.StdEncoding
	return enc.EncodeToString(iv) + ":" + enc.EncodeToString(tag) + ":" + enc.EncodeToString(ct), nil
}

func (e *Encryptor) Decrypt(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 parts, got %d", ErrMalformedCiphertext, len(parts))
	}

	enc := base64.StdEncoding
	iv, err := enc.DecodeString(parts[0])
	if err != nil || len(iv) != ivLength {
		return "", fmt.Errorf("%w: bad iv", ErrMalformedCiphertext)
	}
	tag, err := enc.DecodeString(parts[1])
	if err != nil || len(tag) != tagLength {
		return "", fmt.Errorf("%w: bad tag", ErrMalformedCiphertext)
	}
	ct, err := enc.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrMalformedCiphertext)
	}

	plain, err := e.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
