package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"gitlab.com/nevasik7/alerting/logger"

	"dexindexer/internal/config"
)

// Jobs are the periodic tasks; a nil job or an empty spec leaves it unscheduled
type Jobs struct {
	WindowTick     func(ctx context.Context)
	WindowSnapshot func(ctx context.Context) error
	StatsReport    func(ctx context.Context)
}

// Scheduler runs Jobs on cron specs with a seconds field
type Scheduler struct {
	log  logger.Logger
	cron *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

func New(log logger.Logger, cfg *config.SchedulerConfig, jobs Jobs) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("config is required to the scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		log: log,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}

	entries := []struct {
		name string
		spec string
		run  func()
	}{
		{"window_tick", cfg.WindowTick, wrap(jobs.WindowTick, ctx)},
		{"window_snapshot", cfg.WindowSnapshot, s.wrapErr("window_snapshot", jobs.WindowSnapshot)},
		{"stats_report", cfg.StatsReport, wrap(jobs.StatsReport, ctx)},
	}

	for _, e := range entries {
		if e.spec == "" || e.run == nil {
			continue
		}
		if _, err := s.cron.AddFunc(e.spec, e.run); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to schedule %s %q: %w", e.name, e.spec, err)
		}
		log.Infof("Scheduled %s at %q", e.name, e.spec)
	}

	return s, nil
}

func wrap(job func(ctx context.Context), ctx context.Context) func() {
	if job == nil {
		return nil
	}
	return func() { job(ctx) }
}

func (s *Scheduler) wrapErr(name string, job func(ctx context.Context) error) func() {
	if job == nil {
		return nil
	}
	return func() {
		if err := job(s.ctx); err != nil {
			s.log.Errorf("Job %s failed: %v", name, err)
		}
	}
}

// Len is the number of scheduled jobs
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them or ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
