// internal/bot/shutdown.go
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CloseFunc allows using a function as an io.Closer.
type CloseFunc func() error

func (f CloseFunc) Close() error {
	return f()
}

type namedService struct {
	name   string
	closer io.Closer
}

// ShutdownHandler closes registered services in reverse registration order.
type ShutdownHandler struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.Mutex
	services []namedService
}

// NewShutdownHandler creates a handler. A zero timeout means 30s.
func NewShutdownHandler(logger *zap.Logger, timeout time.Duration) *ShutdownHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownHandler{logger: logger.Named("shutdown"), timeout: timeout}
}

// Add registers a service for shutdown.
func (sh *ShutdownHandler) Add(name string, closer io.Closer) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.services = append(sh.services, namedService{name: name, closer: closer})
	sh.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

// AddFunc registers a shutdown function.
func (sh *ShutdownHandler) AddFunc(name string, fn func() error) {
	sh.Add(name, CloseFunc(fn))
}

// Shutdown closes every service, last registered first. A service that does
// not return before the deadline is abandoned and reported.
func (sh *ShutdownHandler) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sh.timeout)
	defer cancel()

	sh.mu.Lock()
	services := make([]namedService, len(sh.services))
	copy(services, sh.services)
	sh.services = nil
	sh.mu.Unlock()

	sh.logger.Info("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		done := make(chan error, 1)
		go func() { done <- svc.closer.Close() }()

		select {
		case err := <-done:
			if err != nil {
				sh.logger.Error("Failed to shutdown service", zap.String("service", svc.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", svc.name, err))
				continue
			}
			sh.logger.Info("Service shutdown complete", zap.String("service", svc.name))
		case <-ctx.Done():
			sh.logger.Error("Shutdown timeout for service", zap.String("service", svc.name))
			errs = append(errs, fmt.Errorf("%s: shutdown timeout", svc.name))
			return errors.Join(errs...)
		}
	}

	if len(errs) > 0 {
		sh.logger.Error("Shutdown completed with errors", zap.Int("error_count", len(errs)))
	} else {
		sh.logger.Info("Graceful shutdown completed successfully")
	}
	return errors.Join(errs...)
}
