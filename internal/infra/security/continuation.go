package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrContinuationInvalid covers malformed or tampered continuation tokens.
	ErrContinuationInvalid = errors.New("continuation token invalid")
	// ErrContinuationExpired indicates the token outlived its window.
	ErrContinuationExpired = errors.New("continuation token expired")
)

// LoginContinuation carries the state of a half-finished login between the
// credential check and the two-factor verification step. It never touches
// storage; the sealed payload itself is the only record.
type LoginContinuation struct {
	AccountID  string    `json:"sub"`
	Email      string    `json:"email"`
	RememberMe bool      `json:"remember_me"`
	IssuedAt   time.Time `json:"iat"`
}

// ContinuationSealer seals and opens login continuations with AES-256-GCM.
type ContinuationSealer struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

// NewContinuationSealer builds a sealer from a 32-byte key.
func NewContinuationSealer(key []byte, ttl time.Duration) (*ContinuationSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("continuation key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	return &ContinuationSealer{aead: aead, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *ContinuationSealer) WithClock(now func() time.Time) *ContinuationSealer {
	if now != nil {
		s.now = now
	}
	return s
}

// Seal encrypts the continuation and returns a base64 URL-safe opaque token.
func (s *ContinuationSealer) Seal(c LoginContinuation) (string, error) {
	c.IssuedAt = s.now().UTC()

	plaintext, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal continuation: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open authenticates and decrypts a token produced by Seal, enforcing the TTL.
func (s *ContinuationSealer) Open(token string) (*LoginContinuation, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrContinuationInvalid
	}
	if len(raw) < s.aead.NonceSize() {
		return nil, ErrContinuationInvalid
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrContinuationInvalid
	}

	var c LoginContinuation
	if err := json.Unmarshal(plaintext, &c); err != nil {
		return nil, ErrContinuationInvalid
	}

	if s.ttl > 0 && s.now().After(c.IssuedAt.Add(s.ttl)) {
		return nil, ErrContinuationExpired
	}

	return &c, nil
}
