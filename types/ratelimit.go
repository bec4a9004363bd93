package types

import (
	"context"
	"time"
)

// RequestAttributes carries the request facts rate-limit scopes partition on.
type RequestAttributes struct {
	IP       string
	APIKey   string
	Endpoint string
}

type RateLimitDecision struct {
	Allowed    bool          `json:"allowed"`
	Rule       string        `json:"rule"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetTime  time.Time     `json:"reset_time"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// RateLimiter evaluates configured rules in descending priority; the first
// rule that disallows a request short-circuits evaluation.
type RateLimiter interface {
	Check(ctx context.Context, attrs *RequestAttributes) *RateLimitDecision
}

type BucketState struct {
	Tokens    float64   `json:"tokens"`
	Level     float64   `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RateLimitStore holds per-key counting state. The Redis implementation is
// shared across instances; the memory implementation is the degraded-mode
// fallback where per-instance drift is accepted.
type RateLimitStore interface {
	IncrWindow(ctx context.Context, key string, expiry time.Duration) (int64, error)
	SlidingCount(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, oldest time.Time, err error)
	SlidingAdd(ctx context.Context, key string, now time.Time, window time.Duration) error
	GetBucket(ctx context.Context, key string) (*BucketState, error)
	SetBucket(ctx context.Context, key string, state *BucketState, expiry time.Duration) error
}
