package auth

import (
	"testing"
	"time"
)

// ─── Password hashing (bcrypt — intentionally slow) ─────────────────

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashPassword("correct-horse-battery-staple", MinCost) //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple", MinCost)
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VerifyPassword("correct-horse-battery-staple", hash)
	}
}

// ─── Tokens (per-request hot path) ──────────────────────────────────

func BenchmarkGenerateAccessToken(b *testing.B) {
	user := &User{ID: "usr-bench", Email: "bench@example.com"}
	secret := "benchmark-secret-key-32-bytes-xx"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		GenerateAccessToken(user, secret, 15*time.Minute) //nolint:errcheck // benchmark
	}
}

func BenchmarkParseAccessToken(b *testing.B) {
	user := &User{ID: "usr-bench", Email: "bench@example.com"}
	secret := "benchmark-secret-key-32-bytes-xx"

	token, err := GenerateAccessToken(user, secret, 15*time.Minute)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseAccessToken(token, secret) //nolint:errcheck // benchmark
	}
}

func BenchmarkHashToken(b *testing.B) {
	for i := 0; i < b.N; i++ {
		HashToken("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	}
}
