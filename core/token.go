package core

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const signingKeySize = 32 // bytes, HMAC-SHA256

// DefaultTokenTTL is used when no expiration is configured.
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrTokenMalformed is returned when a token cannot be parsed into the
	// expected header.payload.signature structure.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenSignature is returned when the recomputed signature does not match.
	ErrTokenSignature = errors.New("token signature invalid")
	// ErrTokenExpired is returned when the token is past its expiration.
	ErrTokenExpired = errors.New("token expired")
)

// Claims is the data carried inside an issued token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenCodec signs and verifies bearer tokens (HS256 JWTs) with a symmetric
// key generated once at construction and held for the process lifetime. The
// key is never persisted, so tokens do not survive a restart.
type TokenCodec struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenCodec generates a fresh random signing key and returns a codec
// issuing tokens valid for ttl (DefaultTokenTTL when ttl <= 0).
func NewTokenCodec(ttl time.Duration) (*TokenCodec, error) {
	key := make([]byte, signingKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{signingKey: key, ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (tc *TokenCodec) TTL() time.Duration {
	return tc.ttl
}

// Issue builds claims for the principal with issuedAt=now and signs them.
func (tc *TokenCodec) Issue(p Principal, now time.Time) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tc.ttl)),
		},
		Role: p.Role.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token, checks the signature and the expiration against
// now, and returns the claims unchanged. A token is expired from the instant
// now >= expiresAt.
func (tc *TokenCodec) Verify(token string, now time.Time) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tc.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !parsed.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
