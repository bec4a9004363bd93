package middleware

import (
	"runtime"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

type RecoveryMiddleware struct {
	logger  types.Logger
	metrics types.MetricsManager
	weight  int
}

func NewRecoveryMiddleware(logger types.Logger, metrics types.MetricsManager, config *types.MiddlewareConfig) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger:  logger,
		metrics: metrics,
		weight:  config.Weight,
	}
}

func (r *RecoveryMiddleware) Name() string { return "recovery" }
func (r *RecoveryMiddleware) Weight() int  { return r.weight }

func (r *RecoveryMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 8192)
			n := runtime.Stack(buf, false)

			r.logger.Error("recovered from panic",
				zap.Any("panic", rec),
				zap.ByteString("method", ctx.Method()),
				zap.ByteString("path", ctx.Path()),
				zap.String("stack", utils.BytesToString(buf[:n])))

			if r.metrics != nil {
				r.metrics.Counter("http_panics_total", map[string]string{
					"path": string(ctx.Path()),
				}).Inc()
			}

			ctx.Response.Reset()
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"internal server error"}`)
		}
	}()

	next(ctx)
}
