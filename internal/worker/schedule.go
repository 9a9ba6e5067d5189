package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler fires RunToday on a cron expression evaluated in the reminder
// location, so "0 7 * * *" means 07:00 where the reference clock lives.
type Scheduler struct {
	trigger Trigger
	cron    *cron.Cron
	logger  *slog.Logger
}

// NewScheduler parses expr (standard 5-field syntax or descriptors such as
// "@daily") and binds it to trigger.
func NewScheduler(trigger Trigger, expr string, loc *time.Location, logger *slog.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		trigger: trigger,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cron.DiscardLogger)),
		),
		logger: logger,
	}
	if _, err := s.cron.AddFunc(expr, s.tick); err != nil {
		return nil, fmt.Errorf("worker: invalid schedule %q: %w", expr, err)
	}
	return s, nil
}

// Start launches the cron loop and blocks until ctx is cancelled, then waits
// for an in-flight run to finish. Call it in a goroutine from main:
//
//	go scheduler.Start(ctx)
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.logger.Info("worker: schedule started", "next_run", entries[0].Next)
	}

	<-ctx.Done()
	s.logger.Info("worker: schedule stopping")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) tick() {
	// Scheduled passes are not tied to any request; they run to completion.
	s.trigger.RunToday(context.Background())
}
