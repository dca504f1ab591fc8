package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/gazette/pkg/observability"
)

// DefaultGaugeSchedule refreshes the subscription gauge every five minutes
const DefaultGaugeSchedule = "*/5 * * * *"

// Scheduler runs periodic billing jobs
type Scheduler struct {
	cron    *cron.Cron
	service *Service
	logger  *observability.Logger
	timeout time.Duration
}

// NewScheduler schedules the tier gauge refresh on spec
func NewScheduler(service *Service, spec string, logger *observability.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultGaugeSchedule
	}
	s := &Scheduler{
		cron:    cron.New(),
		service: service,
		logger:  logger,
		timeout: 30 * time.Second,
	}
	if _, err := s.cron.AddFunc(spec, s.refresh); err != nil {
		return nil, fmt.Errorf("failed to schedule tier gauge refresh: %w", err)
	}
	return s, nil
}

func (s *Scheduler) refresh() {
	defer observability.RecoverPanic(s.logger, "tier gauge refresh")
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.service.RefreshTierGauge(ctx); err != nil {
		s.logger.WithError(err).Warn("tier gauge refresh failed")
	}
}

// Start refreshes once immediately, then runs the schedule
func (s *Scheduler) Start() {
	s.refresh()
	s.cron.Start()
	s.logger.Info("billing scheduler started")
}

// Stop halts the schedule and waits for a running job
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
