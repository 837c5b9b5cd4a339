package auth

import (
	"context"
	"testing"
	"time"
)

var testNow = time.Unix(1750000000, 0).UTC()

func newTestIssuer(ttl time.Duration, clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("unit-test-secret"),
		TokenTTL:      ttl,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := newTestIssuer(15*time.Minute, func() time.Time { return testNow })

	token, expiresIn, err := issuer.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if expiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds: %d", expiresIn)
	}

	subject, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("expected subject alice, got %q", subject)
	}
}

func TestIssueTokenRejectsEmptySubject(t *testing.T) {
	issuer := newTestIssuer(0, nil)

	if _, _, err := issuer.IssueToken(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestIssueTokenRequiresSigningSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})

	if _, _, err := issuer.IssueToken(context.Background(), "alice"); err == nil {
		t.Fatalf("expected error without signing secret")
	}
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	current := testNow
	issuer := newTestIssuer(5*time.Minute, func() time.Time { return current })

	token, _, err := issuer.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	current = testNow.Add(10 * time.Minute)
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected validation failure for expired token")
	}
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	issuer := newTestIssuer(5*time.Minute, func() time.Time { return testNow })
	foreign := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("some-other-secret"),
		TokenTTL:      5 * time.Minute,
		Clock:         func() time.Time { return testNow },
	})

	token, _, err := foreign.IssueToken(context.Background(), "alice")
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatalf("expected validation failure for foreign signature")
	}
}
