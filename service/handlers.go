package service

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

var knownDataTypes = map[string]struct{}{
	types.DataTypeOdds:     {},
	types.DataTypeScores:   {},
	types.DataTypeStats:    {},
	types.DataTypeNews:     {},
	types.DataTypeInjuries: {},
}

func (s *Service) registerRoutes() {
	if s.metrics != nil {
		s.metrics.RegisterRoutes(s.httpRouter)
	}
	s.health.RegisterRoutes(s.httpRouter)

	apiConfig := &types.RouteConfig{Timeout: 60 * time.Second}
	s.httpRouter.Add(fasthttp.MethodGet, "/api/v1/{dataType}", s.handleFetch, apiConfig)

	adminConfig := &types.RouteConfig{
		Timeout:             15 * time.Second,
		DisabledMiddlewares: []string{"rate-limit"},
	}
	s.httpRouter.Add(fasthttp.MethodGet, "/admin/sources", s.handleSources, adminConfig)
	s.httpRouter.Add(fasthttp.MethodGet, "/admin/performance", s.handlePerformance, adminConfig)
	s.httpRouter.Add(fasthttp.MethodPost, "/admin/invalidate", s.handleInvalidate, adminConfig)

	if s.alerts != nil {
		s.httpRouter.Add(fasthttp.MethodPost, "/admin/webhooks", s.handleCreateWebhook, adminConfig)
		s.httpRouter.Add(fasthttp.MethodGet, "/admin/webhooks", s.handleListWebhooks, adminConfig)
		s.httpRouter.Add(fasthttp.MethodDelete, "/admin/webhooks/{id}", s.handleDeleteWebhook, adminConfig)
	}

	if s.records != nil {
		s.httpRouter.Add(fasthttp.MethodGet, "/admin/records/fetches", s.handleRecentFetches, adminConfig)
		s.httpRouter.Add(fasthttp.MethodGet, "/admin/records/snapshots", s.handleRecentSnapshots, adminConfig)
	}
}

// handleFetch serves GET /api/v1/{dataType}. Query parameters pass through to
// the upstream source; "endpoint" overrides the default per-type path.
func (s *Service) handleFetch(ctx *fasthttp.RequestCtx) {
	dataType, _ := ctx.UserValue("dataType").(string)
	if _, known := knownDataTypes[dataType]; !known {
		s.writeError(ctx, fasthttp.StatusBadRequest, "unknown data type: "+dataType)
		return
	}

	params := make(map[string]string)
	ctx.QueryArgs().VisitAll(func(key, value []byte) {
		params[string(key)] = string(value)
	})

	endpoint := "/" + dataType
	if override, ok := params["endpoint"]; ok {
		endpoint = override
		delete(params, "endpoint")
	}

	result := s.orchestrator.Fetch(ctx, dataType, endpoint, params)

	status := fasthttp.StatusOK
	if result.Data == nil {
		status = fasthttp.StatusServiceUnavailable
	}
	s.writeJSON(ctx, status, result)
}

func (s *Service) handleSources(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"sources": s.tracker.Snapshot(),
	})
}

func (s *Service) handlePerformance(ctx *fasthttp.RequestCtx) {
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"cache":          s.monitor.Stats(),
		"recommendation": s.monitor.FallbackRecommendation(),
	})
}

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

func (s *Service) handleInvalidate(ctx *fasthttp.RequestCtx) {
	var req invalidateRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil || req.Pattern == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "pattern is required")
		return
	}

	count, err := s.cache.InvalidatePattern(ctx, req.Pattern)
	if err != nil {
		s.logger.Error("cache invalidation failed",
			zap.String("pattern", req.Pattern), zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "invalidation failed")
		return
	}

	s.logger.Info("cache invalidated",
		zap.String("pattern", req.Pattern), zap.Int("count", count))
	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"pattern":     req.Pattern,
		"invalidated": count,
	})
}

type webhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

func (s *Service) handleCreateWebhook(ctx *fasthttp.RequestCtx) {
	var req webhookRequest
	if err := utils.Unmarshal(ctx.PostBody(), &req); err != nil || req.URL == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "url is required")
		return
	}

	subscription, err := s.alerts.Register(ctx, req.URL, req.Events)
	if err != nil {
		if types.IsError(err, types.ErrWebhookURLInvalid) {
			s.writeError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}
		s.writeError(ctx, fasthttp.StatusInternalServerError, "failed to register webhook")
		return
	}

	s.writeJSON(ctx, fasthttp.StatusCreated, subscription)
}

func (s *Service) handleListWebhooks(ctx *fasthttp.RequestCtx) {
	subscriptions, err := s.alerts.List(ctx)
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "failed to list webhooks")
		return
	}

	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"webhooks": subscriptions,
		"total":    len(subscriptions),
	})
}

func (s *Service) handleDeleteWebhook(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if id == "" {
		s.writeError(ctx, fasthttp.StatusBadRequest, "webhook id is required")
		return
	}

	if err := s.alerts.Unregister(ctx, id); err != nil {
		if types.IsError(err, types.ErrWebhookNotFound) {
			s.writeError(ctx, fasthttp.StatusNotFound, "webhook not found")
			return
		}
		s.writeError(ctx, fasthttp.StatusInternalServerError, "failed to delete webhook")
		return
	}

	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{"deleted": id})
}

func (s *Service) handleRecentFetches(ctx *fasthttp.RequestCtx) {
	fetches, err := s.records.RecentFetches(ctx, queryLimit(ctx))
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "failed to read fetch records")
		return
	}

	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"fetches": fetches,
		"total":   len(fetches),
	})
}

func (s *Service) handleRecentSnapshots(ctx *fasthttp.RequestCtx) {
	source := string(ctx.QueryArgs().Peek("source"))

	snapshots, err := s.records.RecentSnapshots(ctx, source, queryLimit(ctx))
	if err != nil {
		s.writeError(ctx, fasthttp.StatusInternalServerError, "failed to read health snapshots")
		return
	}

	s.writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"total":     len(snapshots),
	})
}

func queryLimit(ctx *fasthttp.RequestCtx) int {
	raw := string(ctx.QueryArgs().Peek("limit"))
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func (s *Service) writeJSON(ctx *fasthttp.RequestCtx, status int, data interface{}) {
	body, err := utils.Marshal(data)
	if err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
		s.writeError(ctx, fasthttp.StatusInternalServerError, "internal server error")
		return
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func (s *Service) writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")

	body, _ := utils.Marshal(map[string]string{"error": message})
	ctx.SetBody(body)
}
