// internal/bot/runner.go
package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running component stopped by cancelling its context.
type Service interface {
	Run(ctx context.Context) error
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context) error

func (f ServiceFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type namedRunner struct {
	name string
	svc  Service
}

// Runner supervises services. The first failure cancels the others.
type Runner struct {
	logger   *zap.Logger
	services []namedRunner
}

// NewRunner creates an empty runner.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{logger: logger.Named("runner")}
}

// Add registers a service under name.
func (r *Runner) Add(name string, svc Service) {
	r.services = append(r.services, namedRunner{name: name, svc: svc})
}

// Run starts every service and blocks until all return. Cancellation of ctx
// is a clean stop.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.services {
		g.Go(func() error {
			r.logger.Info("Service started", zap.String("service", s.name))
			err := s.svc.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("Service stopped with error", zap.String("service", s.name), zap.Error(err))
				return fmt.Errorf("%s: %w", s.name, err)
			}
			r.logger.Info("Service stopped", zap.String("service", s.name))
			return nil
		})
	}
	return g.Wait()
}
