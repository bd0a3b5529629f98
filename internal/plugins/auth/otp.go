package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for the OTP ledger. All three keys are scoped per
// identity (email).
const (
	otpCodeKeyPrefix     = "otp:code:"
	otpRequestsKeyPrefix = "otp:requests:"
	otpCooldownKeyPrefix = "otp:cooldown:"
)

// Hash fields on the otp:code:<email> key.
const (
	otpFieldCode      = "code"
	otpFieldIssuedAt  = "issued_at"
	otpFieldExpiresAt = "expires_at"
)

// otpRecordRetention is how long an expired code record is kept around.
// Records outlive their logical 5-minute validity so that verification can
// distinguish "expired" from "never issued". The request counter shares
// this retention: an abandoned recovery attempt eventually resets itself.
const otpRecordRetention = 30 * time.Minute

// Verification outcomes. The ledger reports them distinctly; the service
// collapses them into one generic client message to avoid leaking which
// check failed.
var (
	// ErrOTPNotFound means no code record exists for the identity (never
	// issued, already consumed, or aged out).
	ErrOTPNotFound = errors.New("no otp issued")

	// ErrOTPExpired means the code exists but its validity window has passed.
	ErrOTPExpired = errors.New("otp expired")

	// ErrOTPMismatch means the submitted code differs from the stored one.
	// Only one code is live per identity, so any non-matching code is a
	// mismatch rather than a lookup miss.
	ErrOTPMismatch = errors.New("otp mismatch")
)

// RateLimitError is returned by Issue once the identity has used up its
// request quota for the current recovery attempt.
type RateLimitError struct {
	// Remaining is always 0 once the error is returned; carried so the
	// handler can surface it as machine-readable metadata.
	Remaining int
}

func (e *RateLimitError) Error() string {
	return "otp request quota exhausted"
}

// CooldownError is returned by Issue while a previously delivered,
// unexpired code is still outstanding.
type CooldownError struct {
	// RetryAfter is how long until a new code may be requested.
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("otp cooldown active, retry in %s", e.RetryAfter)
}

// OTPLedger is the ephemeral per-identity store of one-time passcodes and
// their request accounting. At most one live code exists per identity.
type OTPLedger interface {
	// Issue creates a fresh code for the identity, overwriting any prior
	// one. Fails with *RateLimitError or *CooldownError per the recovery
	// flow rules. Issue does NOT arm the resend cooldown -- that happens
	// in MarkSent, after delivery is confirmed, so a failed email leaves
	// the identity free to retry immediately.
	Issue(ctx context.Context, email string) (*OTPRecord, error)

	// MarkSent arms the cooldown for the identity's live code. Called only
	// after the notification sender confirmed delivery.
	MarkSent(ctx context.Context, email string) error

	// Verify checks a submitted code. On success the record and both
	// counters are cleared atomically, so the same code cannot be
	// replayed. Failure returns ErrOTPNotFound, ErrOTPExpired, or
	// ErrOTPMismatch.
	Verify(ctx context.Context, email, code string) error

	// ResetFlow clears the request counter and cooldown for the identity.
	// Invoked when the user explicitly restarts recovery at step 1.
	ResetFlow(ctx context.Context, email string) error
}

// redisOTPLedger implements OTPLedger on Redis. Updates for a single
// identity are serialized through a per-identity mutex so two concurrent
// Issue calls cannot both pass the quota check; operations on different
// identities never contend.
type redisOTPLedger struct {
	client      *redis.Client
	ttl         time.Duration
	maxRequests int
	locks       keyedMutex
	now         func() time.Time
}

// NewOTPLedger creates a Redis-backed OTP ledger. ttl is the code validity
// window (and cooldown length); maxRequests is the per-recovery-attempt
// quota.
func NewOTPLedger(client *redis.Client, ttl time.Duration, maxRequests int) OTPLedger {
	return &redisOTPLedger{
		client:      client,
		ttl:         ttl,
		maxRequests: maxRequests,
		now:         time.Now,
	}
}

// Issue generates and stores a new code for the identity.
func (l *redisOTPLedger) Issue(ctx context.Context, email string) (*OTPRecord, error) {
	unlock := l.locks.lock(email)
	defer unlock()

	// Cooldown first: a delivered, unexpired code blocks reissue.
	remaining, err := l.client.TTL(ctx, otpCooldownKeyPrefix+email).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ttl cooldown: %w", err)
	}
	if remaining > 0 {
		return nil, &CooldownError{RetryAfter: remaining}
	}

	// Quota: reject once maxRequests have already been made this attempt.
	count, err := l.client.Get(ctx, otpRequestsKeyPrefix+email).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get request count: %w", err)
	}
	if count >= l.maxRequests {
		return nil, &RateLimitError{Remaining: 0}
	}

	code, err := generateOTPCode()
	if err != nil {
		return nil, fmt.Errorf("generating otp code: %w", err)
	}

	now := l.now().UTC()
	expiresAt := now.Add(l.ttl)

	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, otpCodeKeyPrefix+email, map[string]any{
		otpFieldCode:      code,
		otpFieldIssuedAt:  strconv.FormatInt(now.Unix(), 10),
		otpFieldExpiresAt: strconv.FormatInt(expiresAt.Unix(), 10),
	})
	pipe.Expire(ctx, otpCodeKeyPrefix+email, otpRecordRetention)
	pipe.Incr(ctx, otpRequestsKeyPrefix+email)
	pipe.Expire(ctx, otpRequestsKeyPrefix+email, otpRecordRetention)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis store otp: %w", err)
	}

	return &OTPRecord{
		Email:             email,
		Code:              code,
		IssuedAt:          now,
		ExpiresAt:         expiresAt,
		RequestsRemaining: l.maxRequests - count - 1,
	}, nil
}

// MarkSent arms the resend cooldown for the remaining validity of the
// identity's live code.
func (l *redisOTPLedger) MarkSent(ctx context.Context, email string) error {
	expiresAt, err := l.client.HGet(ctx, otpCodeKeyPrefix+email, otpFieldExpiresAt).Result()
	if errors.Is(err, redis.Nil) {
		return ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("redis hget otp expiry: %w", err)
	}

	exp, err := parseUnix(expiresAt)
	if err != nil {
		return fmt.Errorf("parse expires_at: %w", err)
	}

	remaining := exp.Sub(l.now().UTC())
	if remaining <= 0 {
		// Code already past its validity; no cooldown to arm.
		return nil
	}

	if err := l.client.Set(ctx, otpCooldownKeyPrefix+email, "1", remaining).Err(); err != nil {
		return fmt.Errorf("redis set cooldown: %w", err)
	}
	return nil
}

// Verify checks the submitted code and clears the record on success.
func (l *redisOTPLedger) Verify(ctx context.Context, email, code string) error {
	unlock := l.locks.lock(email)
	defer unlock()

	values, err := l.client.HGetAll(ctx, otpCodeKeyPrefix+email).Result()
	if err != nil {
		return fmt.Errorf("redis hgetall otp: %w", err)
	}
	stored := values[otpFieldCode]
	if stored == "" {
		return ErrOTPNotFound
	}

	if stored != code {
		return ErrOTPMismatch
	}

	expiresAt, err := parseUnix(values[otpFieldExpiresAt])
	if err != nil {
		return fmt.Errorf("parse expires_at: %w", err)
	}

	// Strictly-after comparison: a code submitted at the exact expiry
	// instant is still valid.
	if l.now().UTC().After(expiresAt) {
		return ErrOTPExpired
	}

	// Single use: clear the record and both counters in one shot so the
	// same code cannot be replayed and the next recovery attempt starts
	// from a clean slate.
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, otpCodeKeyPrefix+email)
	pipe.Del(ctx, otpRequestsKeyPrefix+email)
	pipe.Del(ctx, otpCooldownKeyPrefix+email)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis clear otp: %w", err)
	}

	return nil
}

// ResetFlow clears the request counter and cooldown for a fresh recovery
// attempt. Any live code record stays put; it will be overwritten by the
// next Issue.
func (l *redisOTPLedger) ResetFlow(ctx context.Context, email string) error {
	pipe := l.client.TxPipeline()
	pipe.Del(ctx, otpRequestsKeyPrefix+email)
	pipe.Del(ctx, otpCooldownKeyPrefix+email)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis reset otp flow: %w", err)
	}
	return nil
}

// WithClock overrides the internal clock, used in tests.
func (l *redisOTPLedger) WithClock(clock func() time.Time) {
	if clock != nil {
		l.now = clock
	}
}

// generateOTPCode draws a uniformly random 6-digit code from crypto/rand.
// Range is [100000, 999999] so the code never has a leading zero.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+100000, 10), nil
}

// parseUnix converts a stored unix-seconds string back to a UTC time.
func parseUnix(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

// keyedMutex serializes operations per identity. Entries are never removed;
// the admin population is small and bounded, so the map cannot grow without
// limit.
type keyedMutex struct {
	locks sync.Map // string -> *sync.Mutex
}

// lock acquires the mutex for the given key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
