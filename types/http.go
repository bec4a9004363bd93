package types

import (
	"time"

	"github.com/valyala/fasthttp"
)

type HTTPServer interface {
	LifecycleManager
}

type HTTPRouter interface {
	Add(method, path string, handler fasthttp.RequestHandler, config *RouteConfig)
	Handler() fasthttp.RequestHandler
}

type RouteConfig struct {
	Timeout             time.Duration
	DisabledMiddlewares []string
}

type MiddlewareManager interface {
	Register(middleware Middleware) error
	Execute(ctx *fasthttp.RequestCtx, handler fasthttp.RequestHandler, config *RouteConfig)
}

type Middleware interface {
	Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, config *RouteConfig)
	Name() string
	Weight() int
}
