package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/roadwatch/roadwatch/internal/apperror"
)

// --- Mock Repository ---

// mockAdminRepo implements AdminRepository for testing.
type mockAdminRepo struct {
	findByEmailFn    func(ctx context.Context, email string) (*Admin, error)
	emailExistsFn    func(ctx context.Context, email string) (bool, error)
	updatePasswordFn func(ctx context.Context, email, passwordHash string) error
}

func (m *mockAdminRepo) FindByEmail(ctx context.Context, email string) (*Admin, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("admin not found")
}

func (m *mockAdminRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, nil
}

func (m *mockAdminRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	if m.updatePasswordFn != nil {
		return m.updatePasswordFn(ctx, email, passwordHash)
	}
	return nil
}

// --- Mock OTP Ledger ---

// mockLedger implements OTPLedger for testing.
type mockLedger struct {
	issueFn     func(ctx context.Context, email string) (*OTPRecord, error)
	markSentFn  func(ctx context.Context, email string) error
	verifyFn    func(ctx context.Context, email, code string) error
	resetFlowFn func(ctx context.Context, email string) error

	markSentCount  int
	resetFlowCount int
}

func (m *mockLedger) Issue(ctx context.Context, email string) (*OTPRecord, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, email)
	}
	return &OTPRecord{Email: email, Code: "123456", RequestsRemaining: 2}, nil
}

func (m *mockLedger) MarkSent(ctx context.Context, email string) error {
	m.markSentCount++
	if m.markSentFn != nil {
		return m.markSentFn(ctx, email)
	}
	return nil
}

func (m *mockLedger) Verify(ctx context.Context, email, code string) error {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, email, code)
	}
	return ErrOTPNotFound
}

func (m *mockLedger) ResetFlow(ctx context.Context, email string) error {
	m.resetFlowCount++
	if m.resetFlowFn != nil {
		return m.resetFlowFn(ctx, email)
	}
	return nil
}

// --- Mock Session Store ---

// mockSessionStore implements SessionStore for testing.
type mockSessionStore struct {
	establishFn func(ctx context.Context, admin *Admin) (string, error)
	validateFn  func(ctx context.Context, token string) (*Session, error)
	destroyFn   func(ctx context.Context, token string) error
}

func (m *mockSessionStore) Establish(ctx context.Context, admin *Admin) (string, error) {
	if m.establishFn != nil {
		return m.establishFn(ctx, admin)
	}
	return "test-token", nil
}

func (m *mockSessionStore) Validate(ctx context.Context, token string) (*Session, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, token)
	}
	return nil, ErrSessionInvalid
}

func (m *mockSessionStore) Destroy(ctx context.Context, token string) error {
	if m.destroyFn != nil {
		return m.destroyFn(ctx, token)
	}
	return nil
}

// --- Mock Mail Sender ---

// mockSender implements mail.Sender for testing.
type mockSender struct {
	sendFn func(ctx context.Context, to, subject, body string) error
	// Capture fields for assertions.
	lastTo      string
	lastSubject string
	lastBody    string
	sendCount   int
}

func (m *mockSender) Send(ctx context.Context, to, subject, body string) error {
	m.lastTo = to
	m.lastSubject = subject
	m.lastBody = body
	m.sendCount++
	if m.sendFn != nil {
		return m.sendFn(ctx, to, subject, body)
	}
	return nil
}

// --- Test Helpers ---

type testDeps struct {
	repo     *mockAdminRepo
	ledger   *mockLedger
	sessions *mockSessionStore
	sender   *mockSender
}

// newTestAuthService wires the service with all-mock collaborators. bcrypt
// runs at min cost to keep the suite fast.
func newTestAuthService(deps testDeps) AuthService {
	if deps.repo == nil {
		deps.repo = &mockAdminRepo{}
	}
	if deps.ledger == nil {
		deps.ledger = &mockLedger{}
	}
	if deps.sessions == nil {
		deps.sessions = &mockSessionStore{}
	}
	if deps.sender == nil {
		deps.sender = &mockSender{}
	}
	return NewAuthService(deps.repo, deps.ledger, deps.sessions, deps.sender, 4, 5*time.Minute)
}

// assertAppError checks that err is an *apperror.AppError with the expected
// code and message.
func assertAppError(t *testing.T, err error, expectedCode int, expectedMessage string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
	if expectedMessage != "" && appErr.Message != expectedMessage {
		t.Errorf("expected message %q, got %q", expectedMessage, appErr.Message)
	}
}

func testAdmin(t *testing.T, password string) *Admin {
	t.Helper()
	hash, err := hashPassword(password, 4)
	if err != nil {
		t.Fatalf("hashing test password: %v", err)
	}
	return &Admin{ID: "a-1", Email: "admin@example.com", PasswordHash: hash}
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	admin := testAdmin(t, "Str0ng!pass")
	var establishedFor string
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			findByEmailFn: func(ctx context.Context, email string) (*Admin, error) {
				if email != "admin@example.com" {
					t.Errorf("expected normalized email, got %s", email)
				}
				return admin, nil
			},
		},
		sessions: &mockSessionStore{
			establishFn: func(ctx context.Context, a *Admin) (string, error) {
				establishedFor = a.ID
				return "session-token", nil
			},
		},
	})

	token, got, err := svc.Login(context.Background(), LoginRequest{
		Email:    "  Admin@Example.COM  ",
		Password: "Str0ng!pass",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "session-token" {
		t.Errorf("expected session token, got %q", token)
	}
	if got.ID != "a-1" || establishedFor != "a-1" {
		t.Errorf("expected session established for a-1, got %s / %s", got.ID, establishedFor)
	}
}

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	admin := testAdmin(t, "Str0ng!pass")
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			findByEmailFn: func(ctx context.Context, email string) (*Admin, error) {
				if email == "admin@example.com" {
					return admin, nil
				}
				return nil, apperror.NewNotFound("admin not found")
			},
		},
	})

	_, _, errUnknown := svc.Login(context.Background(), LoginRequest{
		Email: "nobody@example.com", Password: "whatever",
	})
	_, _, errWrongPass := svc.Login(context.Background(), LoginRequest{
		Email: "admin@example.com", Password: "not-the-password",
	})

	assertAppError(t, errUnknown, 401, "Invalid credentials")
	assertAppError(t, errWrongPass, 401, "Invalid credentials")
	if errUnknown.Error() != errWrongPass.Error() {
		t.Errorf("error text differs between unknown email and wrong password: %q vs %q",
			errUnknown.Error(), errWrongPass.Error())
	}
}

func TestLogin_RepoError(t *testing.T) {
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			findByEmailFn: func(ctx context.Context, email string) (*Admin, error) {
				return nil, errors.New("db connection lost")
			},
		},
	})

	_, _, err := svc.Login(context.Background(), LoginRequest{
		Email: "admin@example.com", Password: "Str0ng!pass",
	})
	assertAppError(t, err, 500, "Database error")
}

// --- Logout Tests ---

func TestLogout_EmptyTokenIsNoop(t *testing.T) {
	destroyed := false
	svc := newTestAuthService(testDeps{
		sessions: &mockSessionStore{
			destroyFn: func(ctx context.Context, token string) error {
				destroyed = true
				return nil
			},
		},
	})

	if err := svc.Logout(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if destroyed {
		t.Error("expected no store call for empty token")
	}
}

// --- VerifyEmail Tests ---

func TestVerifyEmail_ResetsRecoveryCounters(t *testing.T) {
	ledger := &mockLedger{}
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			emailExistsFn: func(ctx context.Context, email string) (bool, error) {
				return true, nil
			},
		},
		ledger: ledger,
	})

	if err := svc.VerifyEmail(context.Background(), "admin@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ledger.resetFlowCount != 1 {
		t.Errorf("expected ResetFlow once, got %d", ledger.resetFlowCount)
	}
}

func TestVerifyEmail_UnknownEmail(t *testing.T) {
	ledger := &mockLedger{}
	svc := newTestAuthService(testDeps{ledger: ledger})

	err := svc.VerifyEmail(context.Background(), "nobody@example.com")
	assertAppError(t, err, 404, "Email not found")
	if ledger.resetFlowCount != 0 {
		t.Error("expected no ResetFlow for unknown email")
	}
}

// --- RequestOTP Tests ---

func TestRequestOTP_Success(t *testing.T) {
	ledger := &mockLedger{
		issueFn: func(ctx context.Context, email string) (*OTPRecord, error) {
			return &OTPRecord{Email: email, Code: "424242", RequestsRemaining: 1}, nil
		},
	}
	sender := &mockSender{}
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			emailExistsFn: func(ctx context.Context, email string) (bool, error) {
				return true, nil
			},
		},
		ledger: ledger,
		sender: sender,
	})

	dispatch, err := svc.RequestOTP(context.Background(), "admin@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dispatch.RequestsRemaining != 1 {
		t.Errorf("expected 1 remaining, got %d", dispatch.RequestsRemaining)
	}
	if sender.sendCount != 1 || sender.lastTo != "admin@example.com" {
		t.Errorf("expected one email to admin@example.com, got %d to %s", sender.sendCount, sender.lastTo)
	}
	if !strings.Contains(sender.lastBody, "424242") {
		t.Errorf("expected code in email body, got %q", sender.lastBody)
	}
	if ledger.markSentCount != 1 {
		t.Errorf("expected MarkSent once after delivery, got %d", ledger.markSentCount)
	}
}

func TestRequestOTP_UnknownEmail(t *testing.T) {
	sender := &mockSender{}
	svc := newTestAuthService(testDeps{sender: sender})

	_, err := svc.RequestOTP(context.Background(), "nobody@example.com")
	assertAppError(t, err, 404, "Email not found in admin records")
	if sender.sendCount != 0 {
		t.Error("expected no email for unknown identity")
	}
}

func TestRequestOTP_QuotaExhausted(t *testing.T) {
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			emailExistsFn: func(ctx context.Context, email string) (bool, error) {
				return true, nil
			},
		},
		ledger: &mockLedger{
			issueFn: func(ctx context.Context, email string) (*OTPRecord, error) {
				return nil, &RateLimitError{Remaining: 0}
			},
		},
	})

	_, err := svc.RequestOTP(context.Background(), "admin@example.com")
	assertAppError(t, err, 400, "You have reached the maximum number of OTP requests")

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if got := appErr.Meta["remaining_requests"]; got != 0 {
		t.Errorf("expected remaining_requests 0 in meta, got %v", got)
	}
}

func TestRequestOTP_CooldownActive(t *testing.T) {
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			emailExistsFn: func(ctx context.Context, email string) (bool, error) {
				return true, nil
			},
		},
		ledger: &mockLedger{
			issueFn: func(ctx context.Context, email string) (*OTPRecord, error) {
				return nil, &CooldownError{RetryAfter: 93 * time.Second}
			},
		},
	})

	_, err := svc.RequestOTP(context.Background(), "admin@example.com")
	assertAppError(t, err, 400, "You can request a new OTP in 93 seconds.")

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if got := appErr.Meta["retry_after_seconds"]; got != 93 {
		t.Errorf("expected retry_after_seconds 93 in meta, got %v", got)
	}
}

func TestRequestOTP_DeliveryFailureKeepsCooldownUnarmed(t *testing.T) {
	ledger := &mockLedger{}
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			emailExistsFn: func(ctx context.Context, email string) (bool, error) {
				return true, nil
			},
		},
		ledger: ledger,
		sender: &mockSender{
			sendFn: func(ctx context.Context, to, subject, body string) error {
				return errors.New("smtp connection refused")
			},
		},
	})

	_, err := svc.RequestOTP(context.Background(), "admin@example.com")
	assertAppError(t, err, 500, "Error sending OTP email")
	if ledger.markSentCount != 0 {
		t.Error("expected MarkSent to be skipped when delivery fails")
	}
}

// --- VerifyOTP Tests ---

func TestVerifyOTP_Success(t *testing.T) {
	svc := newTestAuthService(testDeps{
		ledger: &mockLedger{
			verifyFn: func(ctx context.Context, email, code string) error {
				if email != "admin@example.com" || code != "424242" {
					t.Errorf("unexpected verify args: %s / %s", email, code)
				}
				return nil
			},
		},
	})

	if err := svc.VerifyOTP(context.Background(), "Admin@Example.com", "424242"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyOTP_FailuresCollapseToGenericMessage(t *testing.T) {
	// Not-found, expired, and mismatch must be indistinguishable to the
	// caller so the endpoint cannot be used to probe ledger state.
	for _, ledgerErr := range []error{ErrOTPNotFound, ErrOTPExpired, ErrOTPMismatch} {
		svc := newTestAuthService(testDeps{
			ledger: &mockLedger{
				verifyFn: func(ctx context.Context, email, code string) error {
					return ledgerErr
				},
			},
		})

		err := svc.VerifyOTP(context.Background(), "admin@example.com", "000000")
		assertAppError(t, err, 400, "Invalid OTP")
	}
}

func TestVerifyOTP_LedgerInfrastructureError(t *testing.T) {
	svc := newTestAuthService(testDeps{
		ledger: &mockLedger{
			verifyFn: func(ctx context.Context, email, code string) error {
				return errors.New("redis gone")
			},
		},
	})

	err := svc.VerifyOTP(context.Background(), "admin@example.com", "424242")
	assertAppError(t, err, 500, "")
}

// --- ResetPassword Tests ---

func TestResetPassword_Success(t *testing.T) {
	var storedHash string
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			updatePasswordFn: func(ctx context.Context, email, passwordHash string) error {
				if email != "admin@example.com" {
					t.Errorf("expected normalized email, got %s", email)
				}
				storedHash = passwordHash
				return nil
			},
		},
	})

	err := svc.ResetPassword(context.Background(), "admin@example.com", "N3w!Passw0rd", "N3w!Passw0rd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if storedHash == "" || storedHash == "N3w!Passw0rd" {
		t.Fatalf("expected a bcrypt hash to be stored, got %q", storedHash)
	}
	if !verifyPassword("N3w!Passw0rd", storedHash) {
		t.Error("stored hash does not verify the new password")
	}
}

func TestResetPassword_MismatchLeavesStoreUntouched(t *testing.T) {
	updated := false
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			updatePasswordFn: func(ctx context.Context, email, passwordHash string) error {
				updated = true
				return nil
			},
		},
	})

	err := svc.ResetPassword(context.Background(), "admin@example.com", "N3w!Passw0rd", "Different!1")
	assertAppError(t, err, 400, "New password and confirmation password do not match")
	if updated {
		t.Error("expected no store mutation on confirmation mismatch")
	}
}

func TestResetPassword_WeakPasswordRejected(t *testing.T) {
	updated := false
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			updatePasswordFn: func(ctx context.Context, email, passwordHash string) error {
				updated = true
				return nil
			},
		},
	})

	err := svc.ResetPassword(context.Background(), "admin@example.com", "weakpass", "weakpass")
	assertAppError(t, err, 400, "")
	if updated {
		t.Error("expected no store mutation for weak password")
	}
}

func TestResetPassword_UnknownEmail(t *testing.T) {
	svc := newTestAuthService(testDeps{
		repo: &mockAdminRepo{
			updatePasswordFn: func(ctx context.Context, email, passwordHash string) error {
				return apperror.NewNotFound("admin not found")
			},
		},
	})

	err := svc.ResetPassword(context.Background(), "nobody@example.com", "N3w!Passw0rd", "N3w!Passw0rd")
	assertAppError(t, err, 404, "Email not found")
}

// --- Full Recovery Flow ---

// TestRecoveryFlow_EndToEnd runs the whole recovery state machine against
// the real Redis-backed ledger (miniredis) with mocked repo and mail.
func TestRecoveryFlow_EndToEnd(t *testing.T) {
	client, _ := newTestRedis(t)
	ledger := NewOTPLedger(client, 5*time.Minute, 3)

	var storedHash string
	repo := &mockAdminRepo{
		emailExistsFn: func(ctx context.Context, email string) (bool, error) {
			return email == "admin@example.com", nil
		},
		updatePasswordFn: func(ctx context.Context, email, passwordHash string) error {
			storedHash = passwordHash
			return nil
		},
	}
	sender := &mockSender{}
	svc := NewAuthService(repo, ledger, &mockSessionStore{}, sender, 4, 5*time.Minute)
	ctx := context.Background()

	// Step 1: verify the email.
	if err := svc.VerifyEmail(ctx, "admin@example.com"); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}

	// Step 2: request the code; pull it out of the captured email body.
	dispatch, err := svc.RequestOTP(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("RequestOTP: %v", err)
	}
	if dispatch.RequestsRemaining != 2 {
		t.Fatalf("expected 2 requests remaining, got %d", dispatch.RequestsRemaining)
	}
	code := extractCode(t, sender.lastBody)

	// A second request while the delivered code is live hits the cooldown.
	_, err = svc.RequestOTP(ctx, "admin@example.com")
	assertAppError(t, err, 400, "")

	// Step 3: verify the code.
	if err := svc.VerifyOTP(ctx, "admin@example.com", code); err != nil {
		t.Fatalf("VerifyOTP: %v", err)
	}

	// The code is single-use.
	err = svc.VerifyOTP(ctx, "admin@example.com", code)
	assertAppError(t, err, 400, "Invalid OTP")

	// Step 4: reset the password.
	if err := svc.ResetPassword(ctx, "admin@example.com", "N3w!Passw0rd", "N3w!Passw0rd"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if !verifyPassword("N3w!Passw0rd", storedHash) {
		t.Error("stored hash does not verify the new password")
	}
}

// extractCode pulls the 6-digit code out of the OTP email body.
func extractCode(t *testing.T, body string) string {
	t.Helper()
	for i := 0; i+6 <= len(body); i++ {
		candidate := body[i : i+6]
		digits := true
		for _, r := range candidate {
			if r < '0' || r > '9' {
				digits = false
				break
			}
		}
		if digits {
			return candidate
		}
	}
	t.Fatalf("no 6-digit code found in body %q", body)
	return ""
}
