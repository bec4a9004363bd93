package client

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

const defaultSourceTimeout = 30 * time.Second

// SourceClient performs a single classified request against an upstream
// provider. Retries and circuit gating live in the fetch layer; this client
// reports exactly one attempt and maps every failure onto the upstream error
// taxonomy so callers never inspect messages or status codes.
type SourceClient struct {
	ctx    context.Context
	logger types.Logger
	client *fasthttp.Client
}

func NewSourceClient(ctx context.Context, logger types.Logger) *SourceClient {
	return &SourceClient{
		ctx:    ctx,
		logger: logger,
		client: &fasthttp.Client{
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 90 * time.Second,
		},
	}
}

// Call fetches endpoint from the source and decodes the JSON body. The error
// is always one of the upstream sentinel errors.
func (c *SourceClient) Call(ctx context.Context, source *types.SourceConfig, endpoint string, params map[string]string) (interface{}, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(buildURL(source.BaseURL, endpoint, params))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if source.APIKey != "" {
		header := source.APIKeyHeader
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, source.APIKey)
	}

	timeout := source.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, types.Errorf(types.ErrTimeout, "source %s: context deadline exceeded", source.Name)
	}

	if err := c.client.DoTimeout(req, resp, timeout); err != nil {
		return nil, classifyTransportError(source.Name, err)
	}

	if err := classifyStatus(source.Name, resp.StatusCode()); err != nil {
		return nil, err
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, types.Errorf(types.ErrInvalidData, "source %s returned an empty body", source.Name)
	}

	var data interface{}
	if err := utils.Unmarshal(body, &data); err != nil {
		c.logger.Debug("malformed response body",
			zap.String("source", source.Name),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return nil, types.Errorf(types.ErrInvalidData, "source %s returned malformed JSON", source.Name)
	}

	return data, nil
}

func buildURL(baseURL, endpoint string, params map[string]string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSuffix(baseURL, "/"))
	if !strings.HasPrefix(endpoint, "/") {
		sb.WriteByte('/')
	}
	sb.WriteString(endpoint)

	if len(params) == 0 {
		return sb.String()
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	for _, key := range keys {
		args.Set(key, params[key])
	}

	sb.WriteByte('?')
	sb.Write(args.QueryString())
	return sb.String()
}

func classifyTransportError(source string, err error) error {
	if types.IsError(err, fasthttp.ErrTimeout) || types.IsError(err, fasthttp.ErrDialTimeout) ||
		types.IsError(err, fasthttp.ErrTLSHandshakeTimeout) {
		return types.Errorf(types.ErrTimeout, "source %s: %v", source, err)
	}
	return types.Errorf(types.ErrNetwork, "source %s: %v", source, err)
}

func classifyStatus(source string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == fasthttp.StatusTooManyRequests:
		return types.Errorf(types.ErrRateLimited, "source %s responded 429", source)
	case status == fasthttp.StatusUnauthorized || status == fasthttp.StatusForbidden:
		return types.Errorf(types.ErrAuthentication, "source %s responded %d", source, status)
	case status == fasthttp.StatusRequestTimeout:
		return types.Errorf(types.ErrTimeout, "source %s responded 408", source)
	default:
		// 5xx and anything else unexpected count against availability.
		return types.Errorf(types.ErrAPIUnavailable, "source %s responded %d", source, status)
	}
}
