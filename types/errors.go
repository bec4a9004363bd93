package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrServerNotRunning     = errors.New("server not running")
	ErrServerAlreadyRunning = errors.New("server already running")
	ErrServerStartFailed    = errors.New("server start failed")
	ErrHandlerIsNil         = errors.New("handler is nil")
)

// Upstream failure taxonomy. Retry and fallback decisions match these
// variants structurally, never error text.
var (
	ErrRateLimited    = errors.New("upstream rate limited")
	ErrAuthentication = errors.New("upstream authentication failed")
	ErrNetwork        = errors.New("network error")
	ErrTimeout        = errors.New("request timeout")
	ErrInvalidData    = errors.New("invalid upstream data")
	ErrAPIUnavailable = errors.New("upstream api unavailable")
	ErrCircuitOpen    = errors.New("circuit breaker open")
	ErrSourceUnknown  = errors.New("source unknown")
	ErrNoSources      = errors.New("no capable sources")
)

var (
	ErrCacheKeyEmpty      = errors.New("cache key empty")
	ErrCacheValueInvalid  = errors.New("cache value not serializable")
	ErrCacheUnavailable   = errors.New("cache store unavailable")
	ErrCacheEntryNotFound = errors.New("cache entry not found")
	ErrCacheIsDisabled    = errors.New("cache is disabled")
)

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrStoreFailed       = errors.New("rate limit store failed")
	ErrRuleInvalid       = errors.New("rate limit rule invalid")
	ErrAlgorithmUnknown  = errors.New("rate limit algorithm unknown")
)

var (
	ErrMiddlewareNotFound = errors.New("middleware not found")
	ErrBodyTooLarge       = errors.New("body too large")
)

var (
	ErrHubNotRunning     = errors.New("live hub not running")
	ErrHubChannelInvalid = errors.New("live channel invalid")
	ErrHubPublishFailed  = errors.New("live publish failed")
	ErrWebhookNotFound   = errors.New("webhook not found")
	ErrWebhookURLInvalid = errors.New("webhook url invalid")
	ErrAlertsDisabled    = errors.New("alerts dispatcher is disabled")
	ErrRecordsDisabled   = errors.New("records archive is disabled")
	ErrRecordNotFound    = errors.New("record not found")
)

var (
	ErrCronJobExists         = errors.New("cron job exists")
	ErrCronJobNameIsEmpty    = errors.New("cron job name is empty")
	ErrCronExpressionInvalid = errors.New("cron expression invalid")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrMetricsIsDisabled  = errors.New("metrics manager is disabled")
)

var (
	ErrHealthIsNotRunning = errors.New("health manager is not running")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}

// Retryable reports whether a source attempt failed in a way worth retrying.
// Authentication and unknown-source failures are terminal for the attempt;
// malformed bodies are retried because a second attempt may return a clean
// payload, and they count as failures either way.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrAPIUnavailable),
		errors.Is(err, ErrInvalidData):
		return true
	default:
		return false
	}
}
