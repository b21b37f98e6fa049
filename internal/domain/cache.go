package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache caches oracle prices so preview endpoints do not hit the RPC
// node on every keystroke. Get returns ErrNotFound on miss or expiry.
type PriceCache interface {
	Set(ctx context.Context, asset string, price *big.Int) error
	Get(ctx context.Context, asset string) (*big.Int, error)
}

// Session is durable client-side session state keyed by wallet: KYC progress
// and loan-resume data the front end needs to survive a page reload.
type Session struct {
	Wallet       string            `json:"wallet"`
	KYCStatus    string            `json:"kyc_status"`
	ResumeFlowID string            `json:"resume_flow_id,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SessionStore persists sessions with a per-entry expiry. It is injected
// into the service layer so tests can substitute an in-memory store.
// Get returns ErrNotFound for a missing or expired session.
type SessionStore interface {
	Set(ctx context.Context, sess Session, ttl time.Duration) error
	Get(ctx context.Context, wallet string) (Session, error)
	Clear(ctx context.Context, wallet string) error
}

// LockManager provides distributed locks. The service layer takes a
// per-wallet lock before starting a flow so two flows can never race the
// same position through the allowance check.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter enforces request-rate limits for the HTTP API.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
