// Package auth implements the RoadWatch authentication core: admin login,
// server-side sessions, and the OTP-based password-recovery flow
// (verify-email -> request-otp -> verify-otp -> reset-password).
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// Admin represents an administrator account. The email address is the
// unique identity key throughout the auth core. Exactly one credential
// row exists per identity; rows are provisioned out of band (cmd/seedadmin)
// and never deleted by this package.
type Admin struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON responses.
	CreatedAt    time.Time `json:"created_at"`
}

// --- Request DTOs (bound from JSON requests) ---

// LoginRequest holds the credentials submitted by the login form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyEmailRequest starts a recovery flow (step 1).
type VerifyEmailRequest struct {
	Email string `json:"email"`
}

// RequestOTPRequest asks for a passcode to be emailed (step 2).
type RequestOTPRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest submits the emailed passcode (step 3).
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// ResetPasswordRequest submits the replacement password (step 4). Field
// names match the original frontend payload.
type ResetPasswordRequest struct {
	Email           string `json:"email"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// --- Session ---

// Session represents an authenticated admin session stored in Redis.
// The session token is the key, and this struct is the value (JSON-encoded).
// The client only ever holds the opaque token in a cookie.
type Session struct {
	AdminID   string    `json:"admin_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// --- OTP ---

// OTPRecord is the ephemeral per-identity passcode entry. At most one live
// record exists per identity; a new request overwrites the prior one. The
// record stays valid through ExpiresAt inclusive: it is expired only once
// the clock is strictly past that instant.
type OTPRecord struct {
	Email     string
	Code      string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// RequestsRemaining is how many more OTP requests the identity may
	// make in the current recovery attempt, after this one.
	RequestsRemaining int
}
