// Package auth issues and verifies the bearer tokens the API accepts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingSecret = errors.New("jwt secret is not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Claims carries the user id in Subject.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. ttl defaults to one hour.
func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Sign mints a token for userID that expires after the issuer's TTL.
func (i *Issuer) Sign(userID uuid.UUID, email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token and returns the user id it was issued for.
func (i *Issuer) Verify(tokenString string) (uuid.UUID, *Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return userID, claims, nil
}

// Session holds one user's current token and renews it shortly before it
// expires. It is the refresh target of the query executor.
type Session struct {
	issuer        *Issuer
	userID        uuid.UUID
	email         string
	refreshBefore time.Duration

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewSession mints the first token immediately.
func NewSession(i *Issuer, userID uuid.UUID, email string, refreshBefore time.Duration) (*Session, error) {
	if refreshBefore <= 0 {
		refreshBefore = 15 * time.Second
	}
	s := &Session{issuer: i, userID: userID, email: email, refreshBefore: refreshBefore}
	if err := s.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-mints the token unconditionally.
func (s *Session) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tok, exp, err := s.issuer.Sign(s.userID, s.email)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token, s.expiresAt = tok, exp
	s.mu.Unlock()
	return nil
}

// Token returns a valid token, renewing it when it expires within the
// refresh window.
func (s *Session) Token(ctx context.Context) (string, error) {
	if s.issuer.now().Add(s.refreshBefore).After(s.ExpiresAt()) {
		if err := s.Refresh(ctx); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// UserID is the session's subject.
func (s *Session) UserID() uuid.UUID { return s.userID }

// ExpiresAt is the current token's expiry.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}
