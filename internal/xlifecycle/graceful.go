// Package xlifecycle manages graceful shutdown of registered components,
// bounded by a deadline.
package xlifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/fieldforge/orchestrator/internal/xlog"
)

// GracefulShutdown starts registered shutdown functions in reverse
// registration order and runs them concurrently, with a deadline; the
// order in which they finish is not defined.
type GracefulShutdown struct {
	mu        sync.Mutex
	fns       []func() error
	timeout   time.Duration
	logger    *xlog.Logger
}

// New creates a GracefulShutdown with the given deadline.
func New(timeout time.Duration, logger *xlog.Logger) *GracefulShutdown {
	if logger == nil {
		logger = xlog.Default("shutdown")
	}
	return &GracefulShutdown{
		fns:     make([]func() error, 0),
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a shutdown function. Functions are started in reverse
// registration order but run concurrently.
func (g *GracefulShutdown) Register(fn func() error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fns = append(g.fns, fn)
}

// Shutdown executes all registered shutdown functions or returns once the
// deadline expires, whichever comes first.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.logger.Info("starting graceful shutdown", xlog.Int("components", len(g.fns)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	errCh := make(chan error, len(g.fns))
	var wg sync.WaitGroup

	for i := len(g.fns) - 1; i >= 0; i-- {
		wg.Add(1)
		fn := g.fns[i]
		idx := i
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				g.logger.Error("shutdown function failed", xlog.Int("index", idx), xlog.Err(err))
				errCh <- err
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("graceful shutdown complete")
		select {
		case err := <-errCh:
			return err
		default:
			return nil
		}
	case <-shutdownCtx.Done():
		g.logger.Warn("graceful shutdown timed out")
		return shutdownCtx.Err()
	}
}
