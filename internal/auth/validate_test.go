package auth

import (
	"context"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	for email, want := range map[string]bool{
		"alice@example.com":  true,
		"a.b+c@sub.host.org": true,
		"alice@example":      false,
		"alice example@x.io": false,
		"@example.com":       false,
		"":                   false,
	} {
		if got := ValidateEmail(email); got != want {
			t.Errorf("ValidateEmail(%q) = %v, want %v", email, got, want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	for pw, want := range map[string]bool{
		"Secret123": true,
		"Sec12":     false,
		"secret123": false,
		"SECRET123": false,
		"SecretPwd": false,
	} {
		if got := ValidatePassword(pw); got != want {
			t.Errorf("ValidatePassword(%q) = %v, want %v", pw, got, want)
		}
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: 4}
	hash, err := h.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !h.Compare(hash, "Secret123") || h.Compare(hash, "Secret124") || h.Compare("", "") {
		t.Fatalf("unexpected comparison results")
	}
}

func TestContextSubject(t *testing.T) {
	ctx := ContextWithSubject(context.Background(), "u1", []string{"Admin", "member"})
	if subject, ok := SubjectFromContext(ctx); !ok || subject != "u1" {
		t.Fatalf("subject lost")
	}
	if !HasRole(ctx, "admin") || HasRole(ctx, "owner") {
		t.Fatalf("unexpected roles %v", RolesFromContext(ctx))
	}
	if _, ok := SubjectFromContext(context.Background()); ok {
		t.Fatalf("empty context should have no subject")
	}
}
