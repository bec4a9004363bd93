package cron

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
)

const defaultJobTimeout = 5 * time.Minute

// Scheduler runs periodic maintenance jobs (cache sweeps, record pruning,
// health snapshots) on cron expressions. Every job run gets its own timeout
// context and panics are contained by the cron recovery chain.
type Scheduler struct {
	ctx        context.Context
	cancel     context.CancelFunc
	logger     types.Logger
	metrics    types.MetricsManager
	cron       *cron.Cron
	timezone   *time.Location
	entries    map[string]cron.EntryID
	mu         sync.RWMutex
	state      int32
	jobTimeout time.Duration
}

func NewScheduler(ctx context.Context, logger types.Logger, metrics types.MetricsManager, config *types.CronConfig) *Scheduler {
	timezone := time.UTC
	if config != nil && config.Timezone != "" {
		if loc, err := time.LoadLocation(config.Timezone); err == nil {
			timezone = loc
		} else {
			logger.Warn("invalid cron timezone, using UTC",
				zap.String("timezone", config.Timezone), zap.Error(err))
		}
	}

	schedulerCtx, cancel := context.WithCancel(ctx)

	return &Scheduler{
		ctx:      schedulerCtx,
		cancel:   cancel,
		logger:   logger,
		metrics:  metrics,
		timezone: timezone,
		cron: cron.New(
			cron.WithLocation(timezone),
			cron.WithChain(cron.Recover(cron.DiscardLogger)),
		),
		entries:    make(map[string]cron.EntryID),
		jobTimeout: defaultJobTimeout,
	}
}

func (s *Scheduler) Start() error {
	if !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started", zap.String("timezone", s.timezone.String()))
	return nil
}

func (s *Scheduler) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.state, 1, 0) {
		return types.ErrServerNotRunning
	}

	s.cancel()
	<-s.cron.Stop().Done()

	s.logger.Info("cron scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return atomic.LoadInt32(&s.state) == 1
}

func (s *Scheduler) AddJob(name, spec string, job types.CronJob) error {
	if name == "" {
		return types.ErrCronJobNameIsEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return types.Errorf(types.ErrCronJobExists, "%s", name)
	}

	entryID, err := s.cron.AddFunc(spec, s.wrap(name, job))
	if err != nil {
		return types.Errorf(types.ErrCronExpressionInvalid, "%s: %v", spec, err)
	}

	s.entries[name] = entryID
	s.logger.Debug("cron job added", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) RemoveJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.entries[name]
	if !exists {
		return types.NewErrorf("cron job %s not found", name)
	}

	s.cron.Remove(entryID)
	delete(s.entries, name)
	return nil
}

func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) wrap(name string, job types.CronJob) func() {
	return func() {
		start := time.Now()

		ctx, cancel := context.WithTimeout(s.ctx, s.jobTimeout)
		defer cancel()

		err := job(ctx)
		duration := time.Since(start)

		result := "success"
		if err != nil {
			result = "error"
			s.logger.Error("cron job failed",
				zap.String("job", name),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			s.logger.Debug("cron job completed",
				zap.String("job", name),
				zap.Duration("duration", duration))
		}

		if s.metrics != nil {
			s.metrics.Counter("cron_job_runs_total", map[string]string{
				"job":    name,
				"result": result,
			}).Inc()
		}
	}
}
