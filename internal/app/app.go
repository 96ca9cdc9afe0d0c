package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Consumer feeds raw events into the indexer until Close
type Consumer interface {
	Start(ctx context.Context) error
	Close() error
}

// Scheduler runs periodic maintenance jobs
type Scheduler interface {
	Start()
	Stop(ctx context.Context) error
}

type App struct {
	log       logger.Logger
	httpSrv   HTTPServer
	consumer  Consumer  // optional
	scheduler Scheduler // optional

	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error
	once   sync.Once
}

func New(lg logger.Logger, httpSrv HTTPServer, consumer Consumer, scheduler Scheduler) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		log:       lg,
		httpSrv:   httpSrv,
		consumer:  consumer,
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
		errCh:     make(chan error, 1),
	}
}

// Start brings up the HTTP server, then the scheduler, then the event consumer
func (a *App) Start() error {
	a.log.Debug("App started begin...")

	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Errorf("Start HTTP server is error=%v", err)
				a.fail(fmt.Errorf("http server: %w", err))
			}
		}()
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	if a.consumer != nil {
		if err := a.consumer.Start(a.ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	}

	a.log.Info("App started")
	return nil
}

// Errors reports the first fatal runtime error of a background component
func (a *App) Errors() <-chan error {
	return a.errCh
}

func (a *App) fail(err error) {
	a.once.Do(func() { a.errCh <- err })
}

// Shutdown stops intake first so in-flight events finish before the server goes away
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")
	a.cancel()

	var errs []error
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer: %w", err))
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: %w", err))
		}
	}
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	a.log.Info("App stopped")
	return nil
}
