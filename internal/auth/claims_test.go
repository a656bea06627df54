package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	user := &User{ID: "usr-001", Email: "jack@example.com"}
	secret := "test-secret-key-for-jwt-signing"

	token, err := GenerateAccessToken(user, secret, 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseAccessToken(token, secret)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}

	if claims.Subject != "usr-001" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "usr-001")
	}
	if claims.Email != "jack@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "jack@example.com")
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	user := &User{ID: "usr-001", Email: "jack@example.com"}

	token, err := GenerateAccessToken(user, "correct-secret", 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	_, err = ParseAccessToken(token, "wrong-secret")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseAccessToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	secret := "test-secret"

	// GenerateAccessToken refuses non-positive TTLs, so sign the expired
	// token directly.
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "usr-001",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-1 * time.Hour)),
		},
		Email: "jack@example.com",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	_, err = ParseAccessToken(signed, secret)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("ParseAccessToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestParseAccessToken_MissingSubject(t *testing.T) {
	secret := "test-secret"

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Email: "jack@example.com",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	_, err = ParseAccessToken(signed, secret)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseAccessToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseAccessToken_Garbage(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "xxxx.yyyy.zzzz"},
		{"single segment", "tokentoken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccessToken(tt.token, "any-secret")
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseAccessToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestGenerateRefreshToken(t *testing.T) {
	token1, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	// 32 bytes hex-encoded
	if len(token1) != 64 {
		t.Errorf("token length = %d, want 64", len(token1))
	}

	token2, err := GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	if token1 == token2 {
		t.Error("two refresh tokens should never collide")
	}
}

func TestHashToken_Deterministic(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Error("HashToken() should be deterministic")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Error("different tokens should hash differently")
	}
	if len(HashToken("abc")) != 64 {
		t.Errorf("hash length = %d, want 64", len(HashToken("abc")))
	}
}
