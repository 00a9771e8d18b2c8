// Package scheduler runs the sweeper passes on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/adhocore/gronx/pkg/tasker"
	"go.uber.org/zap"

	"github.com/and161185/docflow/internal/clock"
)

// DefaultSchedule runs a pass at the top of every hour.
const DefaultSchedule = "@hourly"

// Job is a named function fired on a cron expression.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler collects jobs and runs them with a gronx tasker.
type Scheduler struct {
	log   *zap.Logger
	clock clock.Clock
	tz    string
	jobs  []Job
}

// New returns an empty scheduler evaluating expressions in tz ("" means UTC).
func New(log *zap.Logger, clk clock.Clock, tz string) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	if tz == "" {
		tz = "UTC"
	}
	return &Scheduler{log: log.With(zap.String("component", "scheduler")), clock: clk, tz: tz}
}

// Add registers a job. expr is a cron expression or a gronx tag such as @hourly.
func (s *Scheduler) Add(name, expr string, run func(ctx context.Context) error) error {
	if name == "" || run == nil {
		return fmt.Errorf("scheduler: job needs a name and a func")
	}
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("scheduler: job %q: invalid schedule %q", name, expr)
	}
	for _, j := range s.jobs {
		if j.Name == name {
			return fmt.Errorf("scheduler: duplicate job %q", name)
		}
	}
	s.jobs = append(s.jobs, Job{Name: name, Schedule: expr, Run: run})
	return nil
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []Job {
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// NextRun reports when the named job fires next.
func (s *Scheduler) NextRun(name string) (time.Time, error) {
	for _, j := range s.jobs {
		if j.Name == name {
			return gronx.NextTickAfter(j.Schedule, s.clock.Now(), false)
		}
	}
	return time.Time{}, fmt.Errorf("scheduler: unknown job %q", name)
}

// RunNow fires the named job once, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for _, j := range s.jobs {
		if j.Name == name {
			_, err := s.wrap(j)(ctx)
			return err
		}
	}
	return fmt.Errorf("scheduler: unknown job %q", name)
}

// Run blocks until ctx is cancelled. Jobs never overlap with themselves.
func (s *Scheduler) Run(ctx context.Context) {
	taskr := tasker.New(tasker.Option{Tz: s.tz}).WithContext(ctx)

	notConcurrent := false
	for _, j := range s.jobs {
		taskr.Task(j.Schedule, s.wrap(j), notConcurrent)
		if next, err := s.NextRun(j.Name); err == nil {
			s.log.Info("job scheduled", zap.String("job", j.Name), zap.String("schedule", j.Schedule), zap.Time("next", next))
		}
	}
	taskr.Run()
	s.log.Info("scheduler stopped")
}

// wrap adapts a job to the tasker signature, converting errors and panics into an exit code.
func (s *Scheduler) wrap(j Job) func(ctx context.Context) (int, error) {
	return func(ctx context.Context) (code int, err error) {
		log := s.log.With(zap.String("job", j.Name))
		began := time.Now()
		defer func() {
			if r := recover(); r != nil {
				code, err = 1, fmt.Errorf("job %q panicked: %v", j.Name, r)
				log.Error("job panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()

		if err := j.Run(ctx); err != nil {
			log.Warn("job failed", zap.Duration("took", time.Since(began)), zap.Error(err))
			return 1, err
		}
		log.Debug("job done", zap.Duration("took", time.Since(began)))
		return 0, nil
	}
}
