package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aurumfi/goldvault/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore implements domain.SessionStore, persisting per-wallet session
// state (KYC progress, loan-resume data) as JSON with a TTL so an abandoned
// session eventually evaporates on its own.
type SessionStore struct {
	rdb *redis.Client
}

// NewSessionStore creates a SessionStore backed by the given Client.
func NewSessionStore(c *Client) *SessionStore {
	return &SessionStore{rdb: c.Underlying()}
}

func sessionKey(wallet string) string {
	return "session:" + wallet
}

// Set stores the session under its wallet key with the given expiry.
func (ss *SessionStore) Set(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	if sess.Wallet == "" {
		return fmt.Errorf("redis: set session: %w", domain.ErrInvalidAddress)
	}
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: marshal session %s: %w", sess.Wallet, err)
	}
	if err := ss.rdb.Set(ctx, sessionKey(sess.Wallet), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set session %s: %w", sess.Wallet, err)
	}
	return nil
}

// Get retrieves the session for a wallet. It returns domain.ErrNotFound when
// no session exists or it has expired.
func (ss *SessionStore) Get(ctx context.Context, wallet string) (domain.Session, error) {
	data, err := ss.rdb.Get(ctx, sessionKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("redis: get session %s: %w", wallet, err)
	}

	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("redis: unmarshal session %s: %w", wallet, err)
	}
	return sess, nil
}

// Clear removes the session for a wallet. Clearing a missing session is not
// an error.
func (ss *SessionStore) Clear(ctx context.Context, wallet string) error {
	if err := ss.rdb.Del(ctx, sessionKey(wallet)).Err(); err != nil {
		return fmt.Errorf("redis: clear session %s: %w", wallet, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)
