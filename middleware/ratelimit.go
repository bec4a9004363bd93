package middleware

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/gridironlabs/gridfeed/types"
)

// RateLimitMiddleware rejects over-limit requests with 429 and the standard
// X-RateLimit-* headers. The decision itself comes from the limiter; this
// layer only extracts request attributes and renders the verdict.
type RateLimitMiddleware struct {
	limiter types.RateLimiter
	metrics types.MetricsManager
	weight  int
}

func NewRateLimitMiddleware(limiter types.RateLimiter, metrics types.MetricsManager, config *types.RateLimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		metrics: metrics,
		weight:  config.Weight,
	}
}

func (r *RateLimitMiddleware) Name() string { return "rate-limit" }
func (r *RateLimitMiddleware) Weight() int  { return r.weight }

func (r *RateLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	attrs := &types.RequestAttributes{
		IP:       ClientIP(ctx),
		APIKey:   string(ctx.Request.Header.Peek("X-API-Key")),
		Endpoint: string(ctx.Path()),
	}

	decision := r.limiter.Check(ctx, attrs)

	if decision.Rule != "" {
		ctx.Response.Header.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		ctx.Response.Header.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		ctx.Response.Header.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetTime.Unix(), 10))
	}

	if !decision.Allowed {
		if r.metrics != nil {
			r.metrics.Counter("rate_limit_rejections_total", map[string]string{
				"rule": decision.Rule,
			}).Inc()
		}

		retryAfter := int(decision.RetryAfter.Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}

		ctx.Response.Header.Set("X-RateLimit-Rule", decision.Rule)
		ctx.Response.Header.Set("Retry-After", strconv.Itoa(retryAfter))
		ctx.SetStatusCode(fasthttp.StatusTooManyRequests)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"rate limit exceeded"}`)
		return
	}

	next(ctx)
}
