package auth

import (
	"errors"
	"testing"
)

func TestMintVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "")
	token := v.Mint("user-1")
	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UID != "user-1" || id.Admin {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	v := NewVerifier("secret", "")
	token := v.Mint("user-1")
	if _, err := v.Verify("user-2" + token[len("user-1"):]); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := v.Verify("garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token := NewVerifier("secret-a", "").Mint("user-1")
	if _, err := NewVerifier("secret-b", "").Verify(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	v := NewVerifier("secret", "")
	if _, err := v.Verify(""); !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
}

func TestAdminKey(t *testing.T) {
	v := NewVerifier("secret", "admin-key")
	id, err := v.Verify("admin-key")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !id.Admin {
		t.Fatal("admin key must yield an admin identity")
	}
}
