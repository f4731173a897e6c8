/*
scheduler.go - Background job scheduler

PURPOSE:
  Runs the periodic batch jobs of the lending engine next to the HTTP
  server: association rule mining, due-tomorrow reminders and inventory
  reconciliation. Each job can also be triggered once from the admin API
  or the libctl CLI.

DESIGN:
  - One goroutine per job, each with its own ticker
  - Jobs run once immediately on start, then every Interval
  - A job with Interval 0 is not scheduled
  - Failures are logged and the job waits for its next tick

USAGE:
  s := NewScheduler(log)
  s.Add(Job{Name: "mine", Interval: 24 * time.Hour, Run: ...})
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - handlers.go: MineRules, SendDueNotices, Reconcile (manual triggers)
  - cmd/server/main.go: StandardJobs wiring
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/recommend"
)

// Job is one periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs on tickers until stopped.
type Scheduler struct {
	log  zerolog.Logger
	jobs []Job

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Add registers a job. Jobs added after Start are picked up on the next Start.
func (s *Scheduler) Add(j Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, j)
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	for _, j := range s.jobs {
		if j.Interval <= 0 {
			s.log.Info().Str("job", j.Name).Msg("job disabled, not scheduling")
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, j)
		s.log.Info().Str("job", j.Name).Dur("interval", j.Interval).Msg("job scheduled")
	}
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("scheduler stopped")
}

// RunNow runs the named job once in the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	var job *Job
	for i := range s.jobs {
		if s.jobs[i].Name == name {
			job = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()

	if job == nil {
		return false
	}
	s.runOnce(ctx, *job)
	return true
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()

	// Run immediately on start
	s.runOnce(ctx, j)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, j)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", j.Name).Interface("panic", r).Msg("job panicked")
		}
	}()

	if err := j.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Error().Err(err).Str("job", j.Name).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", j.Name).Dur("duration", time.Since(start)).Msg("job completed")
}

// =============================================================================
// STANDARD JOBS
// =============================================================================

// Intervals for StandardJobs. Zero disables a job.
type Intervals struct {
	Mining    time.Duration
	DueNotice time.Duration
	Reconcile time.Duration
}

// StandardJobs returns the engine's batch jobs.
func StandardJobs(loans *lending.LoanService, recs *recommend.Engine, iv Intervals) []Job {
	return []Job{
		{
			Name:     "mine-rules",
			Interval: iv.Mining,
			Run: func(ctx context.Context) error {
				_, err := recs.Run(ctx)
				return err
			},
		},
		{
			Name:     "due-notices",
			Interval: iv.DueNotice,
			Run: func(ctx context.Context) error {
				_, err := loans.SendDueReminders(ctx)
				return err
			},
		},
		{
			Name:     "reconcile",
			Interval: iv.Reconcile,
			Run: func(ctx context.Context) error {
				_, err := loans.ReconcileAll(ctx)
				return err
			},
		},
	}
}
