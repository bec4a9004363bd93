package middleware

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const requestIDHeader = "X-Request-ID"

type LoggingMiddleware struct {
	logger  types.Logger
	metrics types.MetricsManager
	weight  int
}

func NewLoggingMiddleware(logger types.Logger, metrics types.MetricsManager, config *types.MiddlewareConfig) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger:  logger,
		metrics: metrics,
		weight:  config.Weight,
	}
}

func (l *LoggingMiddleware) Name() string { return "logging" }
func (l *LoggingMiddleware) Weight() int  { return l.weight }

func (l *LoggingMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	start := time.Now()

	requestID := string(ctx.Request.Header.Peek(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
		ctx.Request.Header.Set(requestIDHeader, requestID)
	}
	ctx.Response.Header.Set(requestIDHeader, requestID)

	next(ctx)

	duration := time.Since(start)
	status := ctx.Response.StatusCode()

	fields := []zap.Field{
		zap.String("method", string(ctx.Method())),
		zap.String("path", string(ctx.Path())),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.String("remote_addr", ClientIP(ctx)),
		zap.String("request_id", requestID),
	}

	switch {
	case status >= 500:
		l.logger.Error("request completed", fields...)
	case status >= 400:
		l.logger.Warn("request completed", fields...)
	default:
		l.logger.Info("request completed", fields...)
	}

	if l.metrics != nil {
		l.metrics.Histogram("http_request_duration_seconds",
			[]float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
			map[string]string{"method": string(ctx.Method())},
		).Observe(duration.Seconds())
	}
}

// ClientIP resolves the caller address, preferring proxy headers: first entry
// of X-Forwarded-For, then X-Real-IP, then the transport peer.
func ClientIP(ctx *fasthttp.RequestCtx) string {
	if forwarded := string(ctx.Request.Header.Peek("X-Forwarded-For")); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma > 0 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return strings.TrimSpace(forwarded)
	}

	if realIP := string(ctx.Request.Header.Peek("X-Real-IP")); realIP != "" {
		return realIP
	}

	return ctx.RemoteIP().String()
}
