package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roadwatch/roadwatch/internal/apperror"
	"github.com/roadwatch/roadwatch/internal/mail"
)

// AuthService is the business logic contract for authentication and
// password recovery. Handlers call these methods -- they never touch the
// repository, ledger, or session store directly.
//
// The recovery flow walks VerifyEmail -> RequestOTP -> VerifyOTP ->
// ResetPassword. Each step validates its own preconditions, so a client
// that skips ahead simply fails that step's checks.
type AuthService interface {
	// Login authenticates by email and password. Unknown email and wrong
	// password are indistinguishable to the caller: both produce the same
	// generic 401. On success a session is established and its token
	// returned for the cookie.
	Login(ctx context.Context, input LoginRequest) (token string, admin *Admin, err error)

	// Logout destroys the session. Idempotent: an absent session is fine.
	Logout(ctx context.Context, token string) error

	// ValidateSession resolves a session token. Used by check-auth and the
	// RequireAuth middleware.
	ValidateSession(ctx context.Context, token string) (*Session, error)

	// VerifyEmail is recovery step 1: confirms the identity exists and
	// resets the OTP request counter and cooldown for a fresh attempt.
	VerifyEmail(ctx context.Context, email string) error

	// RequestOTP issues a passcode and emails it. Subject to the
	// per-identity quota and the unexpired-OTP cooldown.
	RequestOTP(ctx context.Context, email string) (*OTPDispatch, error)

	// VerifyOTP checks the emailed passcode. All failure modes collapse
	// into one generic error so callers cannot probe the ledger state.
	VerifyOTP(ctx context.Context, email, code string) error

	// ResetPassword replaces the stored credential. The confirmation
	// check runs before any hashing or store access. A successful reset
	// does NOT establish a session; the admin logs in again with the new
	// password.
	ResetPassword(ctx context.Context, email, newPassword, confirmPassword string) error
}

// OTPDispatch reports the outcome of a successful RequestOTP to the
// handler. The code itself never leaves the service layer.
type OTPDispatch struct {
	Email             string
	RequestsRemaining int
	ExpiresInSeconds  int
}

// authService composes the credential repository, OTP ledger, session
// store, and notification sender into the recovery state machine.
type authService struct {
	repo     AdminRepository
	ledger   OTPLedger
	sessions SessionStore
	sender   mail.Sender

	bcryptCost int
	otpTTL     time.Duration
}

// NewAuthService creates the auth service with its collaborators.
func NewAuthService(repo AdminRepository, ledger OTPLedger, sessions SessionStore, sender mail.Sender, bcryptCost int, otpTTL time.Duration) AuthService {
	return &authService{
		repo:       repo,
		ledger:     ledger,
		sessions:   sessions,
		sender:     sender,
		bcryptCost: bcryptCost,
		otpTTL:     otpTTL,
	}
}

// Login authenticates an admin and establishes a session.
func (s *authService) Login(ctx context.Context, input LoginRequest) (string, *Admin, error) {
	email := normalizeEmail(input.Email)

	admin, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			// Same message as a wrong password -- account existence must
			// not be discoverable through the login endpoint.
			return "", nil, apperror.NewUnauthorized("Invalid credentials")
		}
		return "", nil, apperror.NewDependencyFailure("Database error", fmt.Errorf("finding admin: %w", err))
	}

	if !verifyPassword(input.Password, admin.PasswordHash) {
		return "", nil, apperror.NewUnauthorized("Invalid credentials")
	}

	token, err := s.sessions.Establish(ctx, admin)
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("establishing session: %w", err))
	}

	slog.Info("admin logged in",
		slog.String("admin_id", admin.ID),
		slog.String("email", admin.Email),
	)

	return token, admin, nil
}

// Logout tears down the session.
func (s *authService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return apperror.NewDependencyFailure("Logout failed", err)
	}
	return nil
}

// ValidateSession resolves a session token to the authenticated identity.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, ErrSessionInvalid) {
			return nil, apperror.NewUnauthorized("session expired or invalid")
		}
		return nil, apperror.NewInternal(fmt.Errorf("validating session: %w", err))
	}
	return session, nil
}

// VerifyEmail starts a fresh recovery attempt for the identity.
func (s *authService) VerifyEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return apperror.NewDependencyFailure("Database error", fmt.Errorf("checking email: %w", err))
	}
	if !exists {
		return apperror.NewNotFound("Email not found")
	}

	// Restarting at step 1 resets both the request quota and the cooldown.
	if err := s.ledger.ResetFlow(ctx, email); err != nil {
		return apperror.NewInternal(fmt.Errorf("resetting recovery flow: %w", err))
	}

	return nil
}

// RequestOTP issues a code and dispatches it by email. The ledger record is
// written before the send and kept on delivery failure: the code exists but
// the user was never told it, so an immediate retry is allowed (the
// cooldown is only armed once delivery succeeds).
func (s *authService) RequestOTP(ctx context.Context, email string) (*OTPDispatch, error) {
	email = normalizeEmail(email)

	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return nil, apperror.NewDependencyFailure("Database error", fmt.Errorf("checking email: %w", err))
	}
	if !exists {
		return nil, apperror.NewNotFound("Email not found in admin records")
	}

	record, err := s.ledger.Issue(ctx, email)
	if err != nil {
		var cooldown *CooldownError
		if errors.As(err, &cooldown) {
			secs := int(cooldown.RetryAfter.Round(time.Second).Seconds())
			return nil, apperror.NewRateLimited(
				fmt.Sprintf("You can request a new OTP in %d seconds.", secs),
				map[string]any{"retry_after_seconds": secs},
			)
		}
		var limited *RateLimitError
		if errors.As(err, &limited) {
			return nil, apperror.NewRateLimited(
				"You have reached the maximum number of OTP requests",
				map[string]any{"remaining_requests": limited.Remaining},
			)
		}
		return nil, apperror.NewInternal(fmt.Errorf("issuing otp: %w", err))
	}

	// Delivery happens outside the ledger's per-identity lock; a slow mail
	// provider must not block other operations on this identity.
	subject := "Password Reset OTP"
	body := fmt.Sprintf("Your OTP for password reset is: %s. This OTP is valid for %d minutes.",
		record.Code, int(s.otpTTL.Minutes()))

	if err := s.sender.Send(ctx, email, subject, body); err != nil {
		slog.Error("otp email delivery failed",
			slog.String("email", email),
			slog.Any("error", err),
		)
		return nil, apperror.NewDependencyFailure("Error sending OTP email", err)
	}

	// Arm the resend cooldown now that the user actually received a code.
	if err := s.ledger.MarkSent(ctx, email); err != nil {
		slog.Warn("failed to arm otp cooldown",
			slog.String("email", email),
			slog.Any("error", err),
		)
	}

	slog.Info("otp dispatched",
		slog.String("email", email),
		slog.Int("requests_remaining", record.RequestsRemaining),
	)

	return &OTPDispatch{
		Email:             email,
		RequestsRemaining: record.RequestsRemaining,
		ExpiresInSeconds:  int(s.otpTTL.Seconds()),
	}, nil
}

// VerifyOTP checks the submitted code against the ledger.
func (s *authService) VerifyOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)

	err := s.ledger.Verify(ctx, email, code)
	switch {
	case err == nil:
		slog.Info("otp verified", slog.String("email", email))
		return nil
	case errors.Is(err, ErrOTPNotFound), errors.Is(err, ErrOTPExpired), errors.Is(err, ErrOTPMismatch):
		// One generic message for every failure mode; the real outcome is
		// only logged. Distinguishing them would let a caller probe
		// whether a code was ever issued.
		slog.Warn("otp verification failed",
			slog.String("email", email),
			slog.String("outcome", err.Error()),
		)
		return apperror.NewBadRequest("Invalid OTP")
	default:
		return apperror.NewInternal(fmt.Errorf("verifying otp: %w", err))
	}
}

// ResetPassword replaces the stored credential for the identity.
func (s *authService) ResetPassword(ctx context.Context, email, newPassword, confirmPassword string) error {
	email = normalizeEmail(email)

	// Confirmation check comes before hashing and before any store access,
	// so a mismatch provably leaves the credential untouched.
	if newPassword != confirmPassword {
		return apperror.NewValidation("New password and confirmation password do not match")
	}

	if msg := validatePasswordStrength(newPassword); msg != "" {
		return apperror.NewValidation(msg)
	}

	hash, err := hashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperror.NewInternal(err)
	}

	if err := s.repo.UpdatePassword(ctx, email, hash); err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewNotFound("Email not found")
		}
		return apperror.NewDependencyFailure("Database error", fmt.Errorf("updating password: %w", err))
	}

	slog.Info("password reset", slog.String("email", email))
	return nil
}

// normalizeEmail lowercases and trims an email so lookups and ledger keys
// agree regardless of how the client typed it.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
