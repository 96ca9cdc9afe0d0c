package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"dexindexer/internal/config"
)

const (
	buildTimeout           = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Run assembles the container, starts it, waits for a signal or a fatal error and stops
func Run(cfg *config.Config) error {
	ctxBuild, cancelBuild := context.WithTimeout(context.Background(), buildTimeout)
	defer cancelBuild()

	container, cleanup, err := Build(ctxBuild, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err = container.Start(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
	case runErr = <-container.app.Errors():
	}

	timeout := cfg.App.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = container.Stop(shutdownCtx); err != nil {
		return err
	}
	return runErr
}
