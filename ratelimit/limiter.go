package ratelimit

import (
	"context"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

// Limiter evaluates configured rules in descending priority order. The first
// rule that rejects a request short-circuits evaluation; store failures fail
// open so a broken Redis never takes the API down.
type Limiter struct {
	logger types.Logger
	store  types.RateLimitStore
	rules  []*types.RateLimitRule
}

func NewLimiter(logger types.Logger, store types.RateLimitStore, rules []*types.RateLimitRule) *Limiter {
	sorted := make([]*types.RateLimitRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return &Limiter{
		logger: logger,
		store:  store,
		rules:  sorted,
	}
}

func (l *Limiter) Check(ctx context.Context, attrs *types.RequestAttributes) *types.RateLimitDecision {
	now := time.Now()
	var tightest *types.RateLimitDecision

	for _, rule := range l.rules {
		if !ruleApplies(rule, attrs) {
			continue
		}

		decision, err := l.evaluate(ctx, rule, attrs, now)
		if err != nil {
			l.logger.Warn("rate limit store failure, admitting request",
				zap.String("rule", rule.Name), zap.Error(err))
			continue
		}

		if !decision.Allowed {
			return decision
		}

		if tightest == nil || decision.Remaining < tightest.Remaining {
			tightest = decision
		}
	}

	if tightest != nil {
		return tightest
	}
	return &types.RateLimitDecision{Allowed: true}
}

func (l *Limiter) evaluate(ctx context.Context, rule *types.RateLimitRule, attrs *types.RequestAttributes, now time.Time) (*types.RateLimitDecision, error) {
	key := scopeKey(rule, attrs)

	switch rule.Algorithm {
	case "fixed_window":
		return l.fixedWindow(ctx, rule, key, now)
	case "sliding_window":
		return l.slidingWindow(ctx, rule, key, now)
	case "token_bucket":
		return l.tokenBucket(ctx, rule, key, now)
	case "leaky_bucket":
		return l.leakyBucket(ctx, rule, key, now)
	default:
		return nil, types.Errorf(types.ErrAlgorithmUnknown, "algorithm: %s", rule.Algorithm)
	}
}

// fixedWindow counts per discrete window index; the counter implicitly resets
// when the index changes because each index gets its own key.
func (l *Limiter) fixedWindow(ctx context.Context, rule *types.RateLimitRule, key string, now time.Time) (*types.RateLimitDecision, error) {
	window := windowDuration(rule)
	index := now.Unix() / int64(rule.WindowSeconds)
	windowKey := key + ":" + strconv.FormatInt(index, 10)

	count, err := l.store.IncrWindow(ctx, windowKey, window)
	if err != nil {
		return nil, err
	}

	resetTime := time.Unix((index+1)*int64(rule.WindowSeconds), 0)
	remaining := rule.Requests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if int(count) > rule.Requests {
		return &types.RateLimitDecision{
			Allowed:    false,
			Rule:       rule.Name,
			Limit:      rule.Requests,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: resetTime.Sub(now),
		}, nil
	}

	return &types.RateLimitDecision{
		Allowed:   true,
		Rule:      rule.Name,
		Limit:     rule.Requests,
		Remaining: remaining,
		ResetTime: resetTime,
	}, nil
}

// slidingWindow admits while the timestamp count inside the trailing window
// is below limit+burst.
func (l *Limiter) slidingWindow(ctx context.Context, rule *types.RateLimitRule, key string, now time.Time) (*types.RateLimitDecision, error) {
	window := windowDuration(rule)
	capacity := rule.Requests + rule.Burst

	count, oldest, err := l.store.SlidingCount(ctx, key, now, window)
	if err != nil {
		return nil, err
	}

	if int(count) >= capacity {
		resetTime := oldest.Add(window)
		retryAfter := resetTime.Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &types.RateLimitDecision{
			Allowed:    false,
			Rule:       rule.Name,
			Limit:      capacity,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
		}, nil
	}

	if err := l.store.SlidingAdd(ctx, key, now, window); err != nil {
		return nil, err
	}

	return &types.RateLimitDecision{
		Allowed:   true,
		Rule:      rule.Name,
		Limit:     capacity,
		Remaining: capacity - int(count) - 1,
		ResetTime: now.Add(window),
	}, nil
}

// tokenBucket refills continuously at limit/window per second up to
// limit+burst; each admitted request burns one token.
func (l *Limiter) tokenBucket(ctx context.Context, rule *types.RateLimitRule, key string, now time.Time) (*types.RateLimitDecision, error) {
	capacity := float64(rule.Requests + rule.Burst)
	refillRate := float64(rule.Requests) / float64(rule.WindowSeconds)

	state, err := l.store.GetBucket(ctx, key)
	if err != nil {
		return nil, err
	}

	tokens := capacity
	if state != nil {
		elapsed := now.Sub(state.UpdatedAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		tokens = state.Tokens + elapsed*refillRate
		if tokens > capacity {
			tokens = capacity
		}
	}

	expiry := 2 * windowDuration(rule)

	if tokens < 1 {
		if err := l.store.SetBucket(ctx, key, &types.BucketState{Tokens: tokens, UpdatedAt: now}, expiry); err != nil {
			return nil, err
		}
		retryAfter := time.Duration((1 - tokens) / refillRate * float64(time.Second))
		return &types.RateLimitDecision{
			Allowed:    false,
			Rule:       rule.Name,
			Limit:      rule.Requests + rule.Burst,
			Remaining:  0,
			ResetTime:  now.Add(retryAfter),
			RetryAfter: retryAfter,
		}, nil
	}

	tokens--
	if err := l.store.SetBucket(ctx, key, &types.BucketState{Tokens: tokens, UpdatedAt: now}, expiry); err != nil {
		return nil, err
	}

	return &types.RateLimitDecision{
		Allowed:   true,
		Rule:      rule.Name,
		Limit:     rule.Requests + rule.Burst,
		Remaining: int(tokens),
		ResetTime: now.Add(windowDuration(rule)),
	}, nil
}

// leakyBucket drains continuously at limit/window per second; admission adds
// one unit and is refused when that would push the level past capacity.
func (l *Limiter) leakyBucket(ctx context.Context, rule *types.RateLimitRule, key string, now time.Time) (*types.RateLimitDecision, error) {
	capacity := float64(rule.Requests + rule.Burst)
	drainRate := float64(rule.Requests) / float64(rule.WindowSeconds)

	state, err := l.store.GetBucket(ctx, key)
	if err != nil {
		return nil, err
	}

	level := 0.0
	if state != nil {
		elapsed := now.Sub(state.UpdatedAt).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		level = state.Level - elapsed*drainRate
		if level < 0 {
			level = 0
		}
	}

	expiry := 2 * windowDuration(rule)

	if level+1 > capacity {
		if err := l.store.SetBucket(ctx, key, &types.BucketState{Level: level, UpdatedAt: now}, expiry); err != nil {
			return nil, err
		}
		retryAfter := time.Duration((level - capacity + 1) / drainRate * float64(time.Second))
		return &types.RateLimitDecision{
			Allowed:    false,
			Rule:       rule.Name,
			Limit:      rule.Requests + rule.Burst,
			Remaining:  0,
			ResetTime:  now.Add(retryAfter),
			RetryAfter: retryAfter,
		}, nil
	}

	level++
	if err := l.store.SetBucket(ctx, key, &types.BucketState{Level: level, UpdatedAt: now}, expiry); err != nil {
		return nil, err
	}

	return &types.RateLimitDecision{
		Allowed:   true,
		Rule:      rule.Name,
		Limit:     rule.Requests + rule.Burst,
		Remaining: int(capacity - level),
		ResetTime: now.Add(windowDuration(rule)),
	}, nil
}

func ruleApplies(rule *types.RateLimitRule, attrs *types.RequestAttributes) bool {
	if len(rule.Endpoints) == 0 {
		return true
	}
	for _, endpoint := range rule.Endpoints {
		if endpoint == attrs.Endpoint {
			return true
		}
	}
	return false
}

// scopeKey partitions counting state per rule and scope subject.
func scopeKey(rule *types.RateLimitRule, attrs *types.RequestAttributes) string {
	prefix := "ratelimit:" + rule.Name

	switch rule.Scope {
	case "ip":
		return prefix + ":ip:" + attrs.IP
	case "api_key":
		if attrs.APIKey != "" {
			return prefix + ":key:" + attrs.APIKey
		}
		return prefix + ":ip:" + attrs.IP
	case "endpoint":
		return prefix + ":ep:" + attrs.Endpoint
	default:
		return prefix + ":global"
	}
}

func windowDuration(rule *types.RateLimitRule) time.Duration {
	return time.Duration(rule.WindowSeconds) * time.Second
}
