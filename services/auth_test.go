package services

import (
	"net/url"
	"strings"
	"testing"
)

func TestJWTRoundTrip(t *testing.T) {
	auth := NewAuthService()

	token, err := auth.CreateJWT("profile-123", "ada@example.com")
	if err != nil {
		t.Fatalf("CreateJWT failed: %v", err)
	}

	userID, email, err := auth.VerifyJWT(token)
	if err != nil {
		t.Fatalf("VerifyJWT failed: %v", err)
	}
	if userID != "profile-123" {
		t.Errorf("expected sub claim profile-123, got %q", userID)
	}
	if email != "ada@example.com" {
		t.Errorf("expected email claim, got %q", email)
	}
}

func TestVerifyJWT_RejectsTampered(t *testing.T) {
	auth := NewAuthService()

	token, err := auth.CreateJWT("profile-123", "ada@example.com")
	if err != nil {
		t.Fatalf("CreateJWT failed: %v", err)
	}

	tampered := token[:len(token)-2] + "xx"
	if _, _, err := auth.VerifyJWT(tampered); err == nil {
		t.Error("expected tampered token to be rejected")
	}

	if _, _, err := auth.VerifyJWT("not-a-jwt"); err == nil {
		t.Error("expected garbage token to be rejected")
	}
}

func TestMagicLinkToken_OneTimeUse(t *testing.T) {
	auth := NewAuthService()

	link, err := auth.GenerateMagicLink("ada@example.com", "http://localhost:3001")
	if err != nil {
		t.Fatalf("GenerateMagicLink failed: %v", err)
	}
	if !strings.HasPrefix(link, "http://localhost:3001/api/auth/magic-link?token=") {
		t.Fatalf("unexpected magic link shape: %s", link)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("Failed to parse link: %v", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatal("expected token query parameter")
	}

	email, err := auth.VerifyMagicLinkToken(token)
	if err != nil {
		t.Fatalf("VerifyMagicLinkToken failed: %v", err)
	}
	if email != "ada@example.com" {
		t.Errorf("expected associated email, got %q", email)
	}

	// Second use must fail
	if _, err := auth.VerifyMagicLinkToken(token); err == nil {
		t.Error("expected token to be single-use")
	}
}

func TestMagicLinkTokens_Unique(t *testing.T) {
	auth := NewAuthService()

	a, _ := auth.GenerateMagicLink("a@example.com", "http://localhost:3001")
	b, _ := auth.GenerateMagicLink("b@example.com", "http://localhost:3001")
	if a == b {
		t.Error("expected distinct tokens per request")
	}
}
