package middleware

import (
	"bytes"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const defaultCompressMinSize = 1024

// CompressionMiddleware compresses responses with brotli when the client
// accepts it, falling back to gzip. Small bodies pass through untouched.
type CompressionMiddleware struct {
	logger  types.Logger
	config  *types.CompressionConfig
	level   int
	minSize int
}

func NewCompressionMiddleware(logger types.Logger, config *types.CompressionConfig) *CompressionMiddleware {
	level := config.Level
	if level <= 0 || level > brotli.BestCompression {
		level = brotli.DefaultCompression
	}

	minSize := config.MinSize
	if minSize <= 0 {
		minSize = defaultCompressMinSize
	}

	return &CompressionMiddleware{
		logger:  logger,
		config:  config,
		level:   level,
		minSize: minSize,
	}
}

func (c *CompressionMiddleware) Name() string { return "compression" }
func (c *CompressionMiddleware) Weight() int  { return c.config.Weight }

func (c *CompressionMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler, _ *types.RouteConfig) {
	next(ctx)

	body := ctx.Response.Body()
	if len(body) < c.minSize {
		return
	}
	if len(ctx.Response.Header.ContentEncoding()) > 0 {
		return
	}

	acceptEncoding := string(ctx.Request.Header.Peek("Accept-Encoding"))

	switch {
	case strings.Contains(acceptEncoding, "br"):
		var buf bytes.Buffer
		writer := brotli.NewWriterLevel(&buf, c.level)
		if _, err := writer.Write(body); err != nil {
			c.logger.Error("brotli compression failed", zap.Error(err))
			return
		}
		if err := writer.Close(); err != nil {
			c.logger.Error("brotli compression failed", zap.Error(err))
			return
		}

		ctx.Response.SetBody(buf.Bytes())
		ctx.Response.Header.SetContentEncoding("br")

	case strings.Contains(acceptEncoding, "gzip"):
		compressed := fasthttp.AppendGzipBytes(nil, body)
		ctx.Response.SetBody(compressed)
		ctx.Response.Header.SetContentEncoding("gzip")
	}
}
