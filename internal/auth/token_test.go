package auth

import (
	"testing"
	"time"
)

// TestJWTIssuer_IssueAndParse は発行したトークンが検証を通ることを検証する。
func TestJWTIssuer_IssueAndParse(t *testing.T) {
	issuer := NewJWTIssuer("test-secret")

	token, err := issuer.Issue("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	userID, email, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if userID != "user-1" {
		t.Errorf("userID = %q, want user-1", userID)
	}
	if email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", email)
	}
}

// TestJWTIssuer_Parse_WrongSecret は署名鍵が異なるトークンが拒否されることを検証する。
func TestJWTIssuer_Parse_WrongSecret(t *testing.T) {
	token, err := NewJWTIssuer("secret-a").Issue("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, _, err := NewJWTIssuer("secret-b").Parse(token); err == nil {
		t.Error("expected error for token signed with a different secret")
	}
}

// TestJWTIssuer_Parse_Expired は期限切れトークンが拒否されることを検証する。
func TestJWTIssuer_Parse_Expired(t *testing.T) {
	issuer := NewJWTIssuer("test-secret")
	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issuedAt }

	token, err := issuer.Issue("user-1", "alice@example.com")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	// 有効期間内は通る
	issuer.now = func() time.Time { return issuedAt.Add(6 * 24 * time.Hour) }
	if _, _, err := issuer.Parse(token); err != nil {
		t.Fatalf("Parse returned error before expiry: %v", err)
	}

	issuer.now = func() time.Time { return issuedAt.Add(8 * 24 * time.Hour) }
	if _, _, err := issuer.Parse(token); err == nil {
		t.Error("expected error for expired token")
	}
}

// TestBcryptHasher はハッシュと照合の往復を検証する。
func TestBcryptHasher(t *testing.T) {
	hasher := NewBcryptHasher()

	hash, err := hasher.Hash("password123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if hash == "password123" {
		t.Fatal("expected hash to differ from plaintext")
	}

	if !hasher.Compare(hash, "password123") {
		t.Error("expected matching password to compare true")
	}
	if hasher.Compare(hash, "wrong-password") {
		t.Error("expected mismatched password to compare false")
	}
}
