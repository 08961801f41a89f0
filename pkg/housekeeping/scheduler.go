// Package housekeeping runs periodic maintenance jobs of the webhook service on cron schedules.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wastorga/sim/pkg/persistence"
)

// Job is one maintenance task. Spec is a standard five-field cron expression or a descriptor like "@every 1m".
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
	cron   *cron.Cron
	ids    map[string]cron.EntryID
	mutex  sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		logger: logger.With("module", "housekeeping"),
		ids:    make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Validate() error {
	seen := make(map[string]bool, len(s.jobs))

	for _, job := range s.jobs {
		if job.Name == "" {
			return errors.New("housekeeping job name is required")
		}

		if seen[job.Name] {
			return fmt.Errorf("duplicate housekeeping job %s", job.Name)
		}

		seen[job.Name] = true

		if job.Run == nil {
			return fmt.Errorf("housekeeping job %s has no run function", job.Name)
		}

		if _, err := cron.ParseStandard(job.Spec); err != nil {
			return fmt.Errorf("invalid cron expression '%s' for job %s: %w", job.Spec, job.Name, err)
		}
	}

	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	for _, job := range s.jobs {
		entryID, err := s.cron.AddFunc(job.Spec, func() { s.runJob(job) })
		if err != nil {
			return fmt.Errorf("failed to add cron job %s: %w", job.Name, err)
		}

		s.mutex.Lock()
		s.ids[job.Name] = entryID
		s.mutex.Unlock()

		s.logger.Info("Scheduled housekeeping job", "job", job.Name, "cron", job.Spec, "entry_id", entryID)
	}

	s.cron.Start()

	return nil
}

func (s *Scheduler) runJob(job Job) {
	started := time.Now()

	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("Housekeeping job failed", "job", job.Name, "error", err)

		return
	}

	s.logger.Debug("Housekeeping job finished", "job", job.Name, "duration", time.Since(started))
}

// Next returns the next activation of the named job, or the zero time when it is not scheduled.
func (s *Scheduler) Next(name string) time.Time {
	s.mutex.RLock()
	id, ok := s.ids[name]
	s.mutex.RUnlock()

	if !ok || s.cron == nil {
		return time.Time{}
	}

	return s.cron.Entry(id).Next
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	s.mutex.Lock()
	s.ids = make(map[string]cron.EntryID)
	s.mutex.Unlock()
}

// Pruner drops expired rate-limit windows.
type Pruner interface {
	Prune() int
}

// PruneRateWindows drops in-memory rate-limit windows whose period has ended.
func PruneRateWindows(store Pruner, logger *slog.Logger) Job {
	return Job{
		Name: "prune-rate-windows",
		Spec: "@every 1m",
		Run: func(_ context.Context) error {
			if removed := store.Prune(); removed > 0 {
				logger.Debug("Pruned rate limit windows", "removed", removed)
			}

			return nil
		},
	}
}

// PruneDeliveries removes delivery records older than retention, once a day.
func PruneDeliveries(repo persistence.DeliveryRepository, retention time.Duration, logger *slog.Logger) Job {
	return Job{
		Name: "prune-deliveries",
		Spec: "@daily",
		Run: func(ctx context.Context) error {
			removed, err := repo.PruneBefore(ctx, time.Now().Add(-retention))
			if err != nil {
				return fmt.Errorf("failed to prune delivery records: %w", err)
			}

			logger.Info("Pruned delivery records", "removed", removed, "retention", retention)

			return nil
		},
	}
}
