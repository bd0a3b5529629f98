package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionKeyPrefix is the Redis key prefix for session data.
const sessionKeyPrefix = "session:"

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// ErrSessionInvalid is returned by Validate for a missing, expired, or
// malformed session.
var ErrSessionInvalid = errors.New("session expired or invalid")

// SessionStore turns a validated credential check into a durable
// server-side "authenticated" marker. The client only holds the opaque
// token; everything else lives in Redis. Validation is a plain Redis read,
// so it is safe under many concurrent requests.
type SessionStore interface {
	// Establish creates a session for the admin and returns the token for
	// the cookie. A client presenting the new token implicitly abandons
	// any prior one; abandoned sessions age out via TTL.
	Establish(ctx context.Context, admin *Admin) (string, error)

	// Validate resolves a token to its session, or ErrSessionInvalid.
	Validate(ctx context.Context, token string) (*Session, error)

	// Destroy removes the session. Destroying an absent session is not an
	// error -- logout is idempotent.
	Destroy(ctx context.Context, token string) error
}

// redisSessionStore implements SessionStore on Redis with a fixed TTL.
type redisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionStore creates a Redis-backed session store with the given TTL.
func NewSessionStore(client *redis.Client, ttl time.Duration) SessionStore {
	return &redisSessionStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *redisSessionStore) Establish(ctx context.Context, admin *Admin) (string, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	session := Session{
		AdminID:   admin.ID,
		Email:     admin.Email,
		CreatedAt: s.now().UTC(),
	}

	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("marshaling session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKeyPrefix+token, data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("storing session in Redis: %w", err)
	}

	return token, nil
}

func (s *redisSessionStore) Validate(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}

	return &session, nil
}

func (s *redisSessionStore) Destroy(ctx context.Context, token string) error {
	// DEL on a missing key is a no-op, which gives us idempotent logout
	// for free.
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
