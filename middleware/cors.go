package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/gridironlabs/gridfeed/types"
)

type CORSMiddleware struct {
	config         *types.CORSConfig
	allowedOrigins map[string]bool
	allowAll       bool
	methods        string
	headers        string
}

func NewCORSMiddleware(config *types.CORSConfig) *CORSMiddleware {
	methods := config.AllowedMethods
	if len(methods) == 0 {
		methods = []string{fasthttp.MethodGet, fasthttp.MethodPost, fasthttp.MethodPut, fasthttp.MethodDelete, fasthttp.MethodOptions}
	}

	headers := config.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-API-Key", "X-Request-ID"}
	}

	allowedOrigins := make(map[string]bool, len(config.AllowedOrigins))
	allowAll := len(config.AllowedOrigins) == 0
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowedOrigins[origin] = true
	}

	return &CORSMiddleware{
		config:         config,
		allowedOrigins: allowedOrigins,
		allowAll:       allowAll,
		methods:        strings.Join(methods, ", "),
		headers:        strings.Join(headers, ", "),
	}
}

func (c *CORSMiddleware) Name() string { return "cors" }
func (c *CORSMiddleware) Weight() int  { return c.config.Weight }

func (c *CORSMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	origin := string(ctx.Request.Header.Peek("Origin"))

	if origin != "" && (c.allowAll || c.allowedOrigins[origin]) {
		allowed := origin
		if c.allowAll {
			allowed = "*"
		}
		ctx.Response.Header.Set("Access-Control-Allow-Origin", allowed)
		ctx.Response.Header.Set("Access-Control-Allow-Methods", c.methods)
		ctx.Response.Header.Set("Access-Control-Allow-Headers", c.headers)
	}

	if string(ctx.Method()) == fasthttp.MethodOptions {
		ctx.SetStatusCode(fasthttp.StatusNoContent)
		return
	}

	next(ctx)
}
