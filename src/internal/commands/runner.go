package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maksimkurb/pbrsync/src/internal/log"
)

// RestartableRunner runs a function again after it fails, with exponential
// backoff, until the context is cancelled.
type RestartableRunner struct {
	name           string
	runFunc        func(ctx context.Context) error
	mu             sync.RWMutex
	lastError      error
	restartCount   int
	maxRestarts    int           // 0 means unlimited
	restartBackoff time.Duration // Initial backoff duration
	maxBackoff     time.Duration // Maximum backoff duration
}

// RunnerConfig contains configuration for RestartableRunner.
type RunnerConfig struct {
	Name           string
	MaxRestarts    int           // 0 = unlimited restarts
	RestartBackoff time.Duration // Initial backoff (default: 1s)
	MaxBackoff     time.Duration // Max backoff (default: 30s)
}

// NewRestartableRunner creates a new restartable runner.
func NewRestartableRunner(cfg RunnerConfig, runFunc func(ctx context.Context) error) *RestartableRunner {
	if cfg.RestartBackoff == 0 {
		cfg.RestartBackoff = 1 * time.Second
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	return &RestartableRunner{
		name:           cfg.Name,
		runFunc:        runFunc,
		maxRestarts:    cfg.MaxRestarts,
		restartBackoff: cfg.RestartBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// LastError returns the last error that occurred.
func (r *RestartableRunner) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// RestartCount returns the number of restarts that have occurred.
func (r *RestartableRunner) RestartCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.restartCount
}

// Run blocks until ctx is cancelled, the function returns nil, or the
// restart limit is reached. Only the last case is reported as an error.
func (r *RestartableRunner) Run(ctx context.Context) error {
	backoff := r.restartBackoff

	for {
		if ctx.Err() != nil {
			log.Debugf("%s: context cancelled, stopping", r.name)
			return nil
		}

		// Run the function with panic recovery
		err := r.runWithRecovery(ctx)

		r.mu.Lock()
		r.lastError = err
		r.mu.Unlock()

		if err == nil {
			log.Debugf("%s: exited cleanly", r.name)
			return nil
		}

		// Check if context is done (intentional shutdown)
		if ctx.Err() != nil {
			log.Debugf("%s: context cancelled during run, stopping", r.name)
			return nil
		}

		r.mu.Lock()
		r.restartCount++
		restartCount := r.restartCount
		r.mu.Unlock()

		if r.maxRestarts > 0 && restartCount >= r.maxRestarts {
			log.Errorf("%s: max restarts (%d) reached, giving up. Last error: %v", r.name, r.maxRestarts, err)
			return fmt.Errorf("%s: %w", r.name, err)
		}

		log.Errorf("%s: failed with error: %v. Restarting in %v (restart #%d)", r.name, err, backoff, restartCount)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		// Increase backoff for next restart (exponential backoff)
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// runWithRecovery runs the function and recovers from panics.
func (r *RestartableRunner) runWithRecovery(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return r.runFunc(ctx)
}
