// Package scheduler runs housekeeping jobs on cron expressions.
//
// RagePipe uses it to prune old entries from the rage event journal.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneCron runs the journal pruning job daily at 03:17.
const DefaultPruneCron = "17 3 * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, now: time.Now}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Pruner deletes journal entries older than a cutoff.
type Pruner interface {
	PruneRageEvents(cutoff time.Time) (int64, error)
}

// PruneTask returns a task that removes journal entries older than retention.
func (s *Scheduler) PruneTask(p Pruner, retention time.Duration) func() {
	return func() {
		cutoff := s.now().Add(-retention)
		n, err := p.PruneRageEvents(cutoff)
		if err != nil {
			slog.Error("Scheduler.PruneTask: pruning failed", "cutoff", cutoff, "error", err)
			return
		}
		slog.Info("Scheduler.PruneTask: journal pruned", "cutoff", cutoff, "removed", n)
	}
}

// SchedulePrune registers the pruning task on expr. A non-positive retention
// disables pruning.
func (s *Scheduler) SchedulePrune(expr string, p Pruner, retention time.Duration) error {
	if retention <= 0 {
		slog.Info("Scheduler.SchedulePrune: retention disabled, journal will not be pruned")
		return nil
	}
	if err := s.AddJob(expr, s.PruneTask(p, retention)); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", expr, err)
	}
	slog.Info("Scheduler.SchedulePrune: journal pruning scheduled", "cron", expr, "retention", retention)
	return nil
}
