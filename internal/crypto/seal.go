// internal/crypto/seal.go (AES-GCM at-rest sealing)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	nonceSize    = 12 // GCM standard nonce size
	sealedPrefix = "gcm1:"
)

// Sealer encrypts key material before it reaches the repository.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Open(sealed string) ([]byte, error)
}

// AESSealer seals with AES-256-GCM under a key derived from a server secret.
type AESSealer struct {
	key []byte
}

var _ Sealer = (*AESSealer)(nil)

func NewAESSealer(secret string) (*AESSealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("sealing secret is required")
	}
	return &AESSealer{key: deriveKey(secret)}, nil
}

func (s *AESSealer) Seal(plaintext []byte) (string, error) {
	gcm, err := newGCM(s.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(ciphertext), nil
}

func (s *AESSealer) Open(sealed string) ([]byte, error) {
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return nil, fmt.Errorf("value is not sealed")
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("decoding sealed value: %w", err)
	}
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	gcm, err := newGCM(s.key)
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[:nonceSize]
	ciphertext = ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// PlainSealer stores values as given. Used when no sealing secret is configured.
type PlainSealer struct{}

var _ Sealer = PlainSealer{}

func (PlainSealer) Seal(plaintext []byte) (string, error) { return string(plaintext), nil }

func (PlainSealer) Open(sealed string) ([]byte, error) { return []byte(sealed), nil }

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("GCM creation failed: %w", err)
	}
	return gcm, nil
}

func deriveKey(secret string) []byte {
	hash := sha256.Sum256([]byte(secret))
	return hash[:]
}
