package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	i, err := NewIssuer("test-secret", "aivisibility", time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	return i
}

func TestSignVerifyRoundTrip(t *testing.T) {
	i := newTestIssuer(t)
	user := uuid.New()

	tok, exp, err := i.Sign(user, "a@b.c")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(exp) > time.Minute {
		t.Errorf("unexpected expiry %s", exp)
	}

	got, claims, err := i.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != user {
		t.Errorf("expected %s, got %s", user, got)
	}
	if claims.Email != "a@b.c" || claims.Issuer != "aivisibility" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejects(t *testing.T) {
	i := newTestIssuer(t)
	other, _ := NewIssuer("other-secret", "aivisibility", time.Minute)
	tok, _, _ := other.Sign(uuid.New(), "")

	if _, _, err := i.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: expected ErrInvalidToken, got %v", err)
	}
	if _, _, err := i.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: expected ErrInvalidToken, got %v", err)
	}

	i.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	expired, _, _ := i.Sign(uuid.New(), "")
	i.now = time.Now
	if _, _, err := i.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsBadSubject(t *testing.T) {
	i := newTestIssuer(t)
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "not-a-uuid",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := i.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMissingSecret(t *testing.T) {
	if _, err := NewIssuer("", "x", 0); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
}

func TestSessionRenewsNearExpiry(t *testing.T) {
	i := newTestIssuer(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	i.now = func() time.Time { return now }

	s, err := NewSession(i, uuid.New(), "", 15*time.Second)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	first := s.ExpiresAt()

	now = now.Add(30 * time.Second)
	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if !s.ExpiresAt().Equal(first) {
		t.Error("token should not renew outside the refresh window")
	}

	now = now.Add(20 * time.Second) // 10s left
	if _, err := s.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if !s.ExpiresAt().After(first) {
		t.Error("token should renew inside the refresh window")
	}
}

func TestSessionRefreshHonoursContext(t *testing.T) {
	s, err := NewSession(newTestIssuer(t), uuid.New(), "", 0)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
