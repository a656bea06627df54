package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// Bcrypt cost bounds. Anything below MinCost is rejected at config
// validation; DefaultCost matches the recommended interactive-login budget.
const (
	MinCost     = 10
	DefaultCost = 12
)

// specialChars is the character class counted as "special" by password
// policies.
const specialChars = `!@#$%^&*(),.?":{}|<>`

// HashPassword hashes a plaintext password with bcrypt at the given cost.
// The salt is generated per call, so two hashes of the same password differ.
func HashPassword(password string, cost int) (string, error) {
	if cost < MinCost {
		cost = DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a stored bcrypt hash.
// Comparison time does not depend on where the mismatch occurs. A malformed
// hash is treated as a mismatch, never an error.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Policy describes password composition requirements. A zero MinLength means
// no length requirement. Organizations may carry their own Policy, overriding
// the configured default for their members.
type Policy struct {
	MinLength           int  `json:"min_length" yaml:"min_length"`
	RequireUppercase    bool `json:"require_uppercase" yaml:"require_uppercase"`
	RequireLowercase    bool `json:"require_lowercase" yaml:"require_lowercase"`
	RequireNumbers      bool `json:"require_numbers" yaml:"require_numbers"`
	RequireSpecialChars bool `json:"require_special_chars" yaml:"require_special_chars"`
}

// DefaultPolicy is the policy applied outside any organization context.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:           8,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
	}
}

// ValidatePassword checks a password against a policy and returns every
// violated rule, not just the first, so callers can present a complete list.
// An empty slice means the password satisfies the policy.
func ValidatePassword(password string, policy Policy) []string {
	var violations []string

	if len(password) < policy.MinLength {
		violations = append(violations,
			fmt.Sprintf("password must be at least %d characters long", policy.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
		if strings.ContainsRune(specialChars, r) {
			hasSpecial = true
		}
	}

	if policy.RequireUppercase && !hasUpper {
		violations = append(violations, "password must contain at least one uppercase letter")
	}
	if policy.RequireLowercase && !hasLower {
		violations = append(violations, "password must contain at least one lowercase letter")
	}
	if policy.RequireNumbers && !hasDigit {
		violations = append(violations, "password must contain at least one number")
	}
	if policy.RequireSpecialChars && !hasSpecial {
		violations = append(violations, "password must contain at least one special character")
	}

	return violations
}
