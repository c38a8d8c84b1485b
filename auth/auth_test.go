// ABOUTME: Tests for password hashing and session tokens
// ABOUTME: Covers round trips, wrong secrets, and tampered tokens
package auth

import (
	"strings"
	"testing"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("password stored in plaintext")
	}

	if !CheckPassword(hash, "correct horse battery staple") {
		t.Error("correct password rejected")
	}
	if CheckPassword(hash, "wrong password") {
		t.Error("wrong password accepted")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := IssueToken("secret", 42)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	userID, err := VerifyToken("secret", token)
	if err != nil {
		t.Fatalf("VerifyToken failed: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := IssueToken("secret", 42)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if _, err := VerifyToken("other-secret", token); err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestTokenTampered(t *testing.T) {
	token, err := IssueToken("secret", 42)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", token)
	}
	tampered := parts[0] + "." + parts[1] + "." + "AAAA"

	if _, err := VerifyToken("secret", tampered); err == nil {
		t.Error("tampered token verified")
	}
}

func TestVerifyGarbage(t *testing.T) {
	if _, err := VerifyToken("secret", "not a token"); err == nil {
		t.Error("garbage token verified")
	}
}
