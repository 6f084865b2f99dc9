// Package payload encrypts and decrypts job specs stored in the queue.
package payload

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/joshuadwieczorek/ga-queue-processor/internal/worker/domain"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required key length in bytes
const KeySize = chacha20poly1305.KeySize

// Codec serializes job specs to JSON and seals them with XChaCha20-Poly1305.
// The stored text is base64(nonce || ciphertext).
type Codec struct {
	key      []byte
	validate *validator.Validate
}

// NewCodec creates a codec from a raw 32 byte key
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("payload key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Codec{key: k, validate: validator.New()}, nil
}

// NewCodecFromHex creates a codec from a hex encoded key
func NewCodecFromHex(hexKey string) (*Codec, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload key: %w", err)
	}
	return NewCodec(key)
}

// Validate checks the required fields of a spec
func (c *Codec) Validate(spec *domain.JobSpec) error {
	if spec == nil {
		return fmt.Errorf("%w: job spec is nil", domain.ErrValidation)
	}
	if err := c.validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed on %s", domain.ErrValidation, verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return nil
}

// Encode validates, serializes and encrypts a spec
func (c *Codec) Encode(spec *domain.JobSpec) (string, error) {
	if err := c.Validate(spec); err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal job spec: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode decrypts and validates a stored payload. Every failure wraps domain.ErrValidation.
func (c *Codec) Decode(payload string) (*domain.JobSpec, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: payload is empty", domain.ErrValidation)
	}

	sealed, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64: %w", domain.ErrValidation, err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: payload too short", domain.ErrValidation)
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt payload: %w", domain.ErrValidation, err)
	}

	var spec domain.JobSpec
	if err := json.Unmarshal(plaintext, &spec); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal job spec: %w", domain.ErrValidation, err)
	}

	if err := c.Validate(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}
