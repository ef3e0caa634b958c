// Package auth issues and resolves bearer credentials (HS256 JWTs) and hashes
// account passwords with argon2id.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tbourn/go-chat-rooms/internal/domain"
)

var (
	// ErrInvalidToken is returned when the token is malformed, signed with the
	// wrong key or algorithm, or carries the wrong issuer.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims is the JWT payload: sub (user id), username, iat, exp, iss.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies tokens with a shared HMAC secret.
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager returns a TokenManager for the given secret, issuer and lifetime.
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a signed token for the user.
func (m *TokenManager) Issue(userID, username string) (string, error) {
	now := m.now()
	claims := Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse validates signature, algorithm, issuer and expiry and returns the claims.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve maps a credential to an identity. Any rejection is reported as
// domain.ErrUnauthorized wrapping the cause.
func (m *TokenManager) Resolve(token string) (domain.Identity, error) {
	claims, err := m.Parse(token)
	if err != nil {
		return domain.Identity{}, errors.Join(domain.ErrUnauthorized, err)
	}
	return domain.Identity{UserID: claims.Subject, Username: claims.Username}, nil
}
