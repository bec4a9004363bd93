package middleware

import (
	"github.com/valyala/fasthttp"

	"github.com/gridironlabs/gridfeed/types"
)

const defaultMaxBodySize = 1 << 20

type BodyLimitMiddleware struct {
	config  *types.BodyLimitConfig
	maxSize int
}

func NewBodyLimitMiddleware(config *types.BodyLimitConfig) *BodyLimitMiddleware {
	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = defaultMaxBodySize
	}

	return &BodyLimitMiddleware{
		config:  config,
		maxSize: maxSize,
	}
}

func (b *BodyLimitMiddleware) Name() string { return "body-limit" }
func (b *BodyLimitMiddleware) Weight() int  { return b.config.Weight }

func (b *BodyLimitMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	if len(ctx.Request.Body()) > b.maxSize {
		ctx.SetStatusCode(fasthttp.StatusRequestEntityTooLarge)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"error":"request body too large"}`)
		return
	}

	next(ctx)
}
