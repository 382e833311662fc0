package auth

import (
	"errors"
	"slices"
	"testing"
	"time"
)

func TestTokenIssueAndParse(t *testing.T) {
	now := fixedNow
	issuer, err := NewTokenIssuer("s3cret", WithTokenIssuer("test-issuer"), WithTokenTTL(time.Hour),
		WithTokenClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, exp, err := issuer.Issue("user-42", Claims{Roles: []string{"Admin", "viewer", "admin"}, Method: "wallet", Wallet: stakeBech})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %s", exp)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "user-42" || claims.Issuer != "test-issuer" || claims.Wallet != stakeBech || claims.Method != "wallet" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !slices.Equal(claims.Roles, []string{"admin", "viewer"}) {
		t.Fatalf("roles not normalized: %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti")
	}

	now = now.Add(2 * time.Hour)
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestTokenRejectsForeignTokens(t *testing.T) {
	clock := WithTokenClock(func() time.Time { return fixedNow })
	a, _ := NewTokenIssuer("secret-a", clock)
	b, _ := NewTokenIssuer("secret-b", clock)
	c, _ := NewTokenIssuer("secret-a", clock, WithTokenIssuer("elsewhere"))

	token, _, err := a.Issue("user-1", Claims{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with another secret accepted")
	}
	if _, err := c.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token from another issuer accepted")
	}
	if _, err := a.Parse("  "); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("empty token accepted")
	}
	if _, _, err := a.Issue(" ", Claims{}); err == nil {
		t.Fatalf("expected subject error")
	}
}

func TestNewTokenIssuerValidation(t *testing.T) {
	if _, err := NewTokenIssuer(" "); !errors.Is(err, errMissingSecret) {
		t.Fatalf("expected missing secret, got %v", err)
	}
	if _, err := NewTokenIssuer("x", WithTokenTTL(-time.Second)); err == nil {
		t.Fatalf("expected ttl error")
	}
}
