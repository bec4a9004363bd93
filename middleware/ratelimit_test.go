package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/gridironlabs/gridfeed/ratelimit"
	"github.com/gridironlabs/gridfeed/types"
)

func newRateLimitMiddleware(rules ...*types.RateLimitRule) *RateLimitMiddleware {
	limiter := ratelimit.NewLimiter(&nopLogger{}, ratelimit.NewMemoryStore(), rules)
	return NewRateLimitMiddleware(limiter, nil, &types.RateLimitConfig{Enabled: true, Weight: 50})
}

func TestRateLimitMiddlewareAllowsUnderLimit(t *testing.T) {
	mw := newRateLimitMiddleware(&types.RateLimitRule{
		Name:          "per-ip",
		Algorithm:     "fixed_window",
		Requests:      2,
		WindowSeconds: 60,
		Scope:         "ip",
	})

	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Real-IP", "1.2.3.4")
	ctx.Request.SetRequestURI("/api/v1/odds")

	called := false
	mw.Handle(&ctx, func(ctx *fasthttp.RequestCtx) { called = true }, nil)

	assert.True(t, called)
	assert.Equal(t, "2", string(ctx.Response.Header.Peek("X-RateLimit-Limit")))
	assert.Equal(t, "1", string(ctx.Response.Header.Peek("X-RateLimit-Remaining")))
	assert.NotEmpty(t, string(ctx.Response.Header.Peek("X-RateLimit-Reset")))
}

func TestRateLimitMiddlewareRejectsOverLimit(t *testing.T) {
	mw := newRateLimitMiddleware(&types.RateLimitRule{
		Name:          "per-ip",
		Algorithm:     "fixed_window",
		Requests:      1,
		WindowSeconds: 60,
		Scope:         "ip",
	})

	run := func() *fasthttp.RequestCtx {
		var ctx fasthttp.RequestCtx
		ctx.Request.Header.Set("X-Real-IP", "1.2.3.4")
		ctx.Request.SetRequestURI("/api/v1/odds")
		mw.Handle(&ctx, func(ctx *fasthttp.RequestCtx) {}, nil)
		return &ctx
	}

	first := run()
	require.NotEqual(t, fasthttp.StatusTooManyRequests, first.Response.StatusCode())

	second := run()
	assert.Equal(t, fasthttp.StatusTooManyRequests, second.Response.StatusCode())
	assert.Equal(t, "per-ip", string(second.Response.Header.Peek("X-RateLimit-Rule")))
	assert.NotEmpty(t, string(second.Response.Header.Peek("Retry-After")))
	assert.Contains(t, string(second.Response.Body()), "rate limit exceeded")
}

func TestRateLimitMiddlewarePartitionsByIP(t *testing.T) {
	mw := newRateLimitMiddleware(&types.RateLimitRule{
		Name:          "per-ip",
		Algorithm:     "fixed_window",
		Requests:      1,
		WindowSeconds: 60,
		Scope:         "ip",
	})

	run := func(ip string) int {
		var ctx fasthttp.RequestCtx
		ctx.Request.Header.Set("X-Real-IP", ip)
		ctx.Request.SetRequestURI("/api/v1/odds")
		mw.Handle(&ctx, func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) }, nil)
		return ctx.Response.StatusCode()
	}

	require.Equal(t, fasthttp.StatusOK, run("1.1.1.1"))
	require.Equal(t, fasthttp.StatusTooManyRequests, run("1.1.1.1"))
	assert.Equal(t, fasthttp.StatusOK, run("2.2.2.2"))
}
