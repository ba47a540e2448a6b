package newsletter

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires the weekly newsletter run on a cron expression.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	spec    string
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler. spec is a standard cron expression;
// the default sends Monday mornings at 09:00 UTC.
func NewScheduler(service *Service, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = "0 9 * * 1"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service: service,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.logger.Info("starting scheduled newsletter run")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.service.ProcessAll(ctx); err != nil {
			s.logger.Error("scheduled newsletter run failed", "error", err)
			return
		}
		s.logger.Info("scheduled newsletter run finished")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("newsletter scheduler started", "spec", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("newsletter scheduler stopped")
}
