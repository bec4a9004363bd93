package service

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/alerts"
	"github.com/gridironlabs/gridfeed/cache"
	"github.com/gridironlabs/gridfeed/client"
	"github.com/gridironlabs/gridfeed/config"
	"github.com/gridironlabs/gridfeed/cron"
	"github.com/gridironlabs/gridfeed/fetch"
	"github.com/gridironlabs/gridfeed/health"
	"github.com/gridironlabs/gridfeed/live"
	"github.com/gridironlabs/gridfeed/logger"
	"github.com/gridironlabs/gridfeed/metrics"
	"github.com/gridironlabs/gridfeed/middleware"
	"github.com/gridironlabs/gridfeed/ratelimit"
	"github.com/gridironlabs/gridfeed/records"
	"github.com/gridironlabs/gridfeed/server"
	"github.com/gridironlabs/gridfeed/sources"
	"github.com/gridironlabs/gridfeed/types"
)

// Service wires every component together and owns their start/stop order.
// Optional subsystems (metrics, live hub, alerts, records, cron) stay nil
// when disabled in config; everything downstream guards on nil.
type Service struct {
	ctx    context.Context
	cancel context.CancelFunc

	config  types.ConfigManager
	logger  types.Logger
	metrics types.MetricsManager

	cache   *cache.InstrumentedStore
	monitor *cache.HealthMonitor

	tracker      *sources.Tracker
	sourceRouter *sources.Router
	caller       *client.SourceClient
	executor     *fetch.Executor
	orchestrator *fetch.Orchestrator

	limiter     types.RateLimiter
	middlewares *middleware.Manager
	httpRouter  *server.Router
	httpServer  *server.HTTPServer
	health      *health.Manager

	liveHub   *live.Hub
	alerts    *alerts.Dispatcher
	records   *records.Manager
	scheduler *cron.Scheduler

	rateLimitRedis *redis.Client
}

func New(ctx context.Context, configPath string) (*Service, error) {
	serviceCtx, cancel := context.WithCancel(ctx)

	svc := &Service{ctx: serviceCtx, cancel: cancel}
	if err := svc.build(configPath); err != nil {
		cancel()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build(configPath string) error {
	configManager, err := config.NewManager(configPath)
	if err != nil {
		return err
	}
	s.config = configManager
	cfg := configManager.GetConfig()

	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return types.WrapError(err, "failed to build logger")
	}
	s.logger = log

	metricsManager, err := metrics.NewManager(s.ctx, log, cfg.Metrics)
	switch {
	case err == nil:
		s.metrics = metricsManager
	case types.IsError(err, types.ErrMetricsIsDisabled):
		log.Info("metrics disabled")
	default:
		return err
	}

	retention := cfg.Fetch.StaleRetention
	store, monitor, err := cache.NewCacheStore(s.ctx, log, cfg.Cache, retention, s.metrics)
	if err != nil {
		return err
	}
	s.cache = store
	s.monitor = monitor

	s.tracker = sources.NewTracker(log, cfg.Sources)
	s.sourceRouter = sources.NewRouter(cfg.Sources, s.tracker)
	s.caller = client.NewSourceClient(s.ctx, log)
	s.executor = fetch.NewExecutor(log, s.tracker)

	if cfg.Alerts != nil && cfg.Alerts.Enabled {
		dispatcher, err := alerts.NewDispatcher(log, s.metrics, cfg.Alerts)
		if err != nil {
			return err
		}
		s.alerts = dispatcher
		s.tracker.AddSink(dispatcher)
	}

	if cfg.Records != nil && cfg.Records.Enabled {
		recordsManager, err := records.NewManager(log, cfg.Records)
		if err != nil {
			return err
		}
		s.records = recordsManager
	}

	if cfg.Live != nil && cfg.Live.Enabled {
		s.liveHub = live.NewHub(log, cfg.Live)
	}

	opts := fetch.OrchestratorOptions{
		Logger:    log,
		Config:    cfg.Fetch,
		Namespace: cfg.Cache.Namespace,
		Cache:     s.cache,
		Monitor:   s.monitor,
		Router:    s.sourceRouter,
		Executor:  s.executor,
		Caller:    s.caller,
		Metrics:   s.metrics,
	}
	if s.records != nil {
		opts.Records = s.records
	}
	if s.liveHub != nil {
		opts.Live = s.liveHub
	}
	s.orchestrator = fetch.NewOrchestrator(opts)

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		limiterStore, err := s.buildRateLimitStore(cfg)
		if err != nil {
			return err
		}
		s.limiter = ratelimit.NewLimiter(log, limiterStore, cfg.RateLimit.Rules)
	}

	s.middlewares = middleware.NewManager(log)
	if err := s.registerMiddlewares(cfg); err != nil {
		return err
	}

	s.httpRouter = server.NewRouter(log, s.middlewares)

	s.health = health.NewManager(s.ctx, configManager, log)
	s.registerHealthCheckers()

	s.registerRoutes()

	httpServer, err := server.NewHTTPServer(log, cfg.Server.HTTP, s.httpRouter, cfg.Name)
	if err != nil {
		return err
	}
	s.httpServer = httpServer

	if cfg.Cron != nil && cfg.Cron.Enabled {
		s.scheduler = cron.NewScheduler(s.ctx, log, s.metrics, cfg.Cron)
		if err := s.registerJobs(); err != nil {
			return err
		}
	}

	return nil
}

// Rate limit state lives in Redis when configured so limits hold across
// instances; the client is separate from the cache client because a cache
// flush must not reset limiter state. The redis store is wrapped so a redis
// outage degrades counting to per-instance memory instead of failing open.
func (s *Service) buildRateLimitStore(cfg *types.ServiceConfig) (types.RateLimitStore, error) {
	if cfg.RateLimit.Store != "redis" {
		return ratelimit.NewMemoryStore(), nil
	}

	redisConfig := cfg.Cache.Redis
	if redisConfig == nil {
		return nil, types.NewErrorf("rate limit store is redis but no redis config present")
	}

	s.rateLimitRedis = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", redisConfig.Host, redisConfig.Port),
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	return ratelimit.NewFallbackStore(s.logger, ratelimit.NewRedisStore(s.rateLimitRedis)), nil
}

func (s *Service) registerMiddlewares(cfg *types.ServiceConfig) error {
	middlewares := cfg.Middlewares
	if middlewares == nil || !middlewares.Enabled {
		return nil
	}

	if mc := middlewares.Recovery; mc != nil && mc.Enabled {
		if err := s.middlewares.Register(middleware.NewRecoveryMiddleware(s.logger, s.metrics, mc)); err != nil {
			return err
		}
	}
	if mc := middlewares.Logging; mc != nil && mc.Enabled {
		if err := s.middlewares.Register(middleware.NewLoggingMiddleware(s.logger, s.metrics, mc)); err != nil {
			return err
		}
	}
	if mc := middlewares.CORS; mc != nil && mc.Enabled {
		if err := s.middlewares.Register(middleware.NewCORSMiddleware(mc)); err != nil {
			return err
		}
	}
	if mc := middlewares.BodyLimit; mc != nil && mc.Enabled {
		if err := s.middlewares.Register(middleware.NewBodyLimitMiddleware(mc)); err != nil {
			return err
		}
	}
	if mc := middlewares.Compression; mc != nil && mc.Enabled {
		if err := s.middlewares.Register(middleware.NewCompressionMiddleware(s.logger, mc)); err != nil {
			return err
		}
	}
	if s.limiter != nil {
		if err := s.middlewares.Register(middleware.NewRateLimitMiddleware(s.limiter, s.metrics, cfg.RateLimit)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) registerHealthCheckers() {
	s.health.RegisterChecker("cache", func(ctx context.Context) types.HealthCheck {
		if s.monitor.IsHealthy() {
			return types.HealthCheck{Status: types.StatusHealthy}
		}
		recommendation := s.monitor.FallbackRecommendation()
		return types.HealthCheck{
			Status:  types.StatusUnhealthy,
			Message: recommendation.Reason,
			Details: map[string]interface{}{"strategy": recommendation.Strategy},
		}
	})

	s.health.RegisterChecker("sources", func(ctx context.Context) types.HealthCheck {
		snapshot := s.tracker.Snapshot()
		offline := 0
		for _, state := range snapshot {
			if state.Health == types.SourceOffline {
				offline++
			}
		}

		check := types.HealthCheck{
			Status: types.StatusHealthy,
			Details: map[string]interface{}{
				"total":   len(snapshot),
				"offline": offline,
			},
		}
		if len(snapshot) > 0 && offline == len(snapshot) {
			check.Status = types.StatusUnhealthy
			check.Message = "all sources offline"
		}
		return check
	})

	if s.liveHub != nil {
		s.health.RegisterChecker("live", func(ctx context.Context) types.HealthCheck {
			if !s.liveHub.IsRunning() {
				return types.HealthCheck{Status: types.StatusUnhealthy, Message: "hub not running"}
			}
			return types.HealthCheck{
				Status:  types.StatusHealthy,
				Details: map[string]interface{}{"subscribers": s.liveHub.SubscriberCount()},
			}
		})
	}
}

func (s *Service) registerJobs() error {
	if err := s.scheduler.AddJob("cache-sweep", "@every 1m", func(ctx context.Context) error {
		s.cache.Sweep()
		return nil
	}); err != nil {
		return err
	}

	if err := s.scheduler.AddJob("cache-probe", "@every 30s", func(ctx context.Context) error {
		s.cache.ProbePrimary(ctx)
		return nil
	}); err != nil {
		return err
	}

	if s.records != nil {
		if err := s.scheduler.AddJob("records-prune", "@hourly", func(ctx context.Context) error {
			_, err := s.records.Prune(ctx)
			return err
		}); err != nil {
			return err
		}

		if err := s.scheduler.AddJob("health-snapshot", "@every 5m", func(ctx context.Context) error {
			return s.records.RecordSnapshot(ctx, s.tracker.Snapshot())
		}); err != nil {
			return err
		}
	}

	return nil
}

// Start brings subsystems up inner-first: stores and side channels before the
// scheduler that drives them, the HTTP server last so no request arrives
// before its dependencies are serving.
func (s *Service) Start() error {
	type component struct {
		name string
		impl types.LifecycleManager
	}

	components := []component{{"cache", s.cache}}
	if s.metrics != nil {
		components = append([]component{{"metrics", s.metrics}}, components...)
	}
	if s.alerts != nil {
		components = append(components, component{"alerts", s.alerts})
	}
	if s.records != nil {
		components = append(components, component{"records", s.records})
	}
	if s.liveHub != nil {
		components = append(components, component{"live", s.liveHub})
	}
	components = append(components, component{"health", s.health})
	if s.scheduler != nil {
		components = append(components, component{"cron", s.scheduler})
	}
	components = append(components, component{"http", s.httpServer})

	for _, c := range components {
		if err := c.impl.Start(); err != nil {
			s.logger.Error("component failed to start", zap.String("component", c.name), zap.Error(err))
			_ = s.Stop()
			return types.WrapError(err, "failed to start "+c.name)
		}
		s.logger.Debug("component started", zap.String("component", c.name))
	}

	s.logger.Info("service started",
		zap.String("name", s.config.GetConfig().Name),
		zap.String("version", s.config.GetConfig().Version))
	return nil
}

func (s *Service) Stop() error {
	var components []types.LifecycleManager
	components = append(components, s.httpServer)
	if s.scheduler != nil {
		components = append(components, s.scheduler)
	}
	components = append(components, s.health)
	if s.liveHub != nil {
		components = append(components, s.liveHub)
	}
	if s.records != nil {
		components = append(components, s.records)
	}
	if s.alerts != nil {
		components = append(components, s.alerts)
	}
	components = append(components, s.cache)
	if s.metrics != nil {
		components = append(components, s.metrics)
	}

	var firstErr error
	for _, c := range components {
		if !c.IsRunning() {
			continue
		}
		if err := c.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.rateLimitRedis != nil {
		if err := s.rateLimitRedis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.cancel()
	s.logger.Info("service stopped")
	return firstErr
}

func (s *Service) IsRunning() bool {
	return s.httpServer != nil && s.httpServer.IsRunning()
}
