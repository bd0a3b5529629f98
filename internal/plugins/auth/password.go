package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// hashPassword creates a salted bcrypt hash of the given password. bcrypt
// embeds the salt and cost in the output, so verification needs no
// separate salt storage.
func hashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// verifyPassword checks a plaintext password against a stored bcrypt hash.
// bcrypt's comparison runs the full key schedule regardless of where a
// mismatch occurs, so it does not leak timing information.
func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validatePasswordStrength enforces the password policy: at least 8
// characters with one uppercase letter, one lowercase letter, one digit,
// and one special character. The frontend checks this too, but the client
// is untrusted; this is the authoritative check.
// Returns an error message for the client, or "" when the password passes.
func validatePasswordStrength(password string) string {
	if len(password) < 8 {
		return "Password must be at least 8 characters long"
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
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return "Password must contain at least one uppercase letter"
	case !hasLower:
		return "Password must contain at least one lowercase letter"
	case !hasDigit:
		return "Password must contain at least one number"
	case !hasSpecial:
		return "Password must contain at least one special character"
	}

	return ""
}
