package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("share token secret is not configured")
)

const (
	defaultTokenTTL = 12 * time.Hour
	sigLen          = 16
	// 4 bytes expiry + 8 random bytes.
	payloadLen = 12
)

// TokenSigner mints and checks request-forgery tokens bound to a scope such as
// "share:<user id>". Tokens are stateless: expiry and nonce travel in the payload and
// the HMAC ties them to the scope.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns a signer issuing tokens valid for ttl (12h when ttl <= 0).
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenSigner{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (s *TokenSigner) WithClock(now func() time.Time) *TokenSigner {
	s.now = now
	return s
}

// Issue mints a token for scope.
func (s *TokenSigner) Issue(scope string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	payload := make([]byte, payloadLen)
	expires := uint32(s.now().Add(s.ttl).Unix())
	binary.BigEndian.PutUint32(payload[:4], expires)
	if _, err := rand.Read(payload[4:]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	signature := s.sign(scope, payload)
	return fmt.Sprintf("%s.%s",
		base64.RawURLEncoding.EncodeToString(payload),
		base64.RawURLEncoding.EncodeToString(signature[:sigLen]),
	), nil
}

// Validate checks that token was issued for scope and has not expired.
func (s *TokenSigner) Validate(scope, token string) error {
	if len(s.secret) == 0 {
		return ErrMissingSecret
	}

	payloadEnc, sigEnc, ok := strings.Cut(token, ".")
	if !ok {
		return ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(payloadEnc)
	if err != nil || len(payload) != payloadLen {
		return ErrInvalidToken
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(sigEnc)
	if err != nil || len(sigProvided) != sigLen {
		return ErrInvalidToken
	}

	expected := s.sign(scope, payload)
	if !hmac.Equal(sigProvided, expected[:sigLen]) {
		return ErrInvalidToken
	}

	expires := binary.BigEndian.Uint32(payload[:4])
	if s.now().Unix() > int64(expires) {
		return ErrInvalidToken
	}

	return nil
}

func (s *TokenSigner) sign(scope string, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(scope))
	mac.Write([]byte("|"))
	mac.Write(payload)
	return mac.Sum(nil)
}
