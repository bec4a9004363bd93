package server

import (
	"strings"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/gridironlabs/gridfeed/types"
)

type route struct {
	method   string
	pattern  string
	segments []string
	dynamic  bool
	handler  fasthttp.RequestHandler
	config   *types.RouteConfig
}

// Router dispatches requests through the middleware chain. Static paths are
// matched by map lookup; patterns with {param} segments fall back to a linear
// scan and expose captures via ctx.UserValue.
type Router struct {
	logger      types.Logger
	middlewares types.MiddlewareManager
	static      map[string]*route
	dynamic     []*route
	mu          sync.RWMutex
}

func NewRouter(logger types.Logger, middlewares types.MiddlewareManager) *Router {
	return &Router{
		logger:      logger,
		middlewares: middlewares,
		static:      make(map[string]*route),
	}
}

func (r *Router) Add(method, path string, handler fasthttp.RequestHandler, config *types.RouteConfig) {
	entry := &route{
		method:  method,
		pattern: path,
		handler: handler,
		config:  config,
		dynamic: strings.Contains(path, "{"),
	}

	if config != nil && config.Timeout > 0 {
		entry.handler = fasthttp.TimeoutWithCodeHandler(handler, config.Timeout,
			`{"error":"request timed out"}`, fasthttp.StatusGatewayTimeout)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.dynamic {
		entry.segments = splitPath(path)
		r.dynamic = append(r.dynamic, entry)
		return
	}
	r.static[method+" "+path] = entry
}

func (r *Router) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := string(ctx.Path())

		r.mu.RLock()
		entry := r.static[method+" "+path]
		if entry == nil {
			entry = r.matchDynamic(ctx, method, path)
		}
		r.mu.RUnlock()

		if entry == nil {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetContentType("application/json")
			ctx.SetBodyString(`{"error":"not found"}`)
			return
		}

		r.middlewares.Execute(ctx, entry.handler, entry.config)
	}
}

func (r *Router) matchDynamic(ctx *fasthttp.RequestCtx, method, path string) *route {
	segments := splitPath(path)

	for _, entry := range r.dynamic {
		if entry.method != method || len(entry.segments) != len(segments) {
			continue
		}
		if bindParams(ctx, entry.segments, segments) {
			return entry
		}
	}
	return nil
}

func bindParams(ctx *fasthttp.RequestCtx, pattern, actual []string) bool {
	type capture struct{ name, value string }
	var captures []capture

	for i, segment := range pattern {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			captures = append(captures, capture{segment[1 : len(segment)-1], actual[i]})
			continue
		}
		if segment != actual[i] {
			return false
		}
	}

	for _, c := range captures {
		ctx.SetUserValue(c.name, c.value)
	}
	return true
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}
