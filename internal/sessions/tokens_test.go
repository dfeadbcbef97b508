package sessions

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenIssuerIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	token, err := issuer.Issue("session-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if token == "" {
		t.Fatal("Issue() returned empty token")
	}

	sessionID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sessionID != "session-1" {
		t.Errorf("Verify() session id = %q, want %q", sessionID, "session-1")
	}
}

func TestTokenIssuerVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), time.Hour)
	token, err := issuer.Issue("session-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other := NewTokenIssuer([]byte("secret-b"), time.Hour)
	if _, err := other.Verify(token); err != ErrInvalidResumeToken {
		t.Errorf("Verify() error = %v, want %v", err, ErrInvalidResumeToken)
	}
}

func TestTokenIssuerVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Hour)

	token, err := issuer.Issue("session-1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := issuer.Verify(token); err != ErrInvalidResumeToken {
		t.Errorf("Verify() error = %v, want %v", err, ErrInvalidResumeToken)
	}
}

func TestTokenIssuerVerifyRejectsUnexpectedSigningMethod(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	claims := ResumeClaims{
		SessionID: "session-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "session-1",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := issuer.Verify(signed); err != ErrInvalidResumeToken {
		t.Errorf("Verify() error = %v, want %v", err, ErrInvalidResumeToken)
	}
}

func TestNewTokenIssuerDefaultsTTL(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), 0)
	if issuer.ttl != 24*time.Hour {
		t.Errorf("default ttl = %v, want 24h", issuer.ttl)
	}
}
