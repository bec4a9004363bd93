package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gridironlabs/gridfeed/types"
)

type nopLogger struct{}

func (*nopLogger) Error(string, ...zap.Field)              {}
func (*nopLogger) Warn(string, ...zap.Field)               {}
func (*nopLogger) Info(string, ...zap.Field)               {}
func (*nopLogger) Debug(string, ...zap.Field)              {}
func (*nopLogger) Log(zapcore.Level, string, ...zap.Field) {}

type markerMiddleware struct {
	name   string
	weight int
	trace  *[]string
}

func (m *markerMiddleware) Name() string { return m.name }
func (m *markerMiddleware) Weight() int  { return m.weight }

func (m *markerMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	*m.trace = append(*m.trace, m.name)
	next(ctx)
}

func TestManagerExecutesInWeightOrder(t *testing.T) {
	manager := NewManager(&nopLogger{})
	var trace []string

	require.NoError(t, manager.Register(&markerMiddleware{name: "third", weight: 30, trace: &trace}))
	require.NoError(t, manager.Register(&markerMiddleware{name: "first", weight: 10, trace: &trace}))
	require.NoError(t, manager.Register(&markerMiddleware{name: "second", weight: 20, trace: &trace}))

	var ctx fasthttp.RequestCtx
	manager.Execute(&ctx, func(ctx *fasthttp.RequestCtx) {
		trace = append(trace, "handler")
	}, nil)

	assert.Equal(t, []string{"first", "second", "third", "handler"}, trace)
}

func TestManagerSkipsDisabledMiddlewares(t *testing.T) {
	manager := NewManager(&nopLogger{})
	var trace []string

	require.NoError(t, manager.Register(&markerMiddleware{name: "keep", weight: 10, trace: &trace}))
	require.NoError(t, manager.Register(&markerMiddleware{name: "skip", weight: 20, trace: &trace}))

	var ctx fasthttp.RequestCtx
	manager.Execute(&ctx, func(ctx *fasthttp.RequestCtx) {
		trace = append(trace, "handler")
	}, &types.RouteConfig{DisabledMiddlewares: []string{"skip"}})

	assert.Equal(t, []string{"keep", "handler"}, trace)
}

func TestManagerRejectsDuplicates(t *testing.T) {
	manager := NewManager(&nopLogger{})
	var trace []string

	require.NoError(t, manager.Register(&markerMiddleware{name: "dup", weight: 10, trace: &trace}))
	assert.Error(t, manager.Register(&markerMiddleware{name: "dup", weight: 20, trace: &trace}))
}

func TestRecoveryMiddlewareCatchesPanics(t *testing.T) {
	recovery := NewRecoveryMiddleware(&nopLogger{}, nil, &types.MiddlewareConfig{Weight: 10})

	var ctx fasthttp.RequestCtx
	recovery.Handle(&ctx, func(ctx *fasthttp.RequestCtx) {
		panic("boom")
	}, nil)

	assert.Equal(t, fasthttp.StatusInternalServerError, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "internal server error")
}

func TestBodyLimitMiddleware(t *testing.T) {
	limit := NewBodyLimitMiddleware(&types.BodyLimitConfig{Weight: 40, MaxSize: 10})

	var ctx fasthttp.RequestCtx
	ctx.Request.SetBodyString("this body is definitely longer than ten bytes")

	called := false
	limit.Handle(&ctx, func(ctx *fasthttp.RequestCtx) { called = true }, nil)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusRequestEntityTooLarge, ctx.Response.StatusCode())
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	ctx.Request.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "203.0.113.7", ClientIP(&ctx))

	ctx.Request.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.2", ClientIP(&ctx))

	ctx.Request.Header.Del("X-Real-IP")
	assert.Equal(t, "0.0.0.0", ClientIP(&ctx))
}
