package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSchedule purges the result cache once an hour.
const DefaultSchedule = "@every 1h"

// Purger drops memoized results.
type Purger interface {
	PurgeCache(ctx context.Context) error
}

// Scheduler runs the cache purge job on a cron schedule, bounding how stale
// a memoized result can get.
type Scheduler struct {
	purger   Purger
	schedule string
	timeout  time.Duration
	logger   logrus.FieldLogger
	cron     *cron.Cron
}

func NewScheduler(purger Purger, schedule string, logger logrus.FieldLogger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		purger:   purger,
		schedule: schedule,
		timeout:  30 * time.Second,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start the scheduler
func (s *Scheduler) Start() error {
	if s.purger == nil {
		return errors.New("scheduler: nil purger")
	}
	if _, err := s.cron.AddFunc(s.schedule, s.purge); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("schedule", s.schedule).Info("Cache purge scheduled")
	return nil
}

// purge clears the result cache once.
func (s *Scheduler) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.purger.PurgeCache(ctx); err != nil {
		s.logger.WithError(err).Error("Failed to purge cache")
		return
	}
	s.logger.Debug("Cache purged")
}

// Stop the scheduler and wait for a running purge to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
