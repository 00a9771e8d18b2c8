package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/lifecycle"
	"github.com/and161185/docflow/internal/model"
)

// Pass names.
const (
	PassReminder = "reminder"
	PassExpiry   = "expiry"
)

// Report summarizes one sweeper pass.
type Report struct {
	Pass      string
	StartedAt time.Time
	Scanned   int
	Changed   int
	Unchanged int
	Failed    int
}

// SweepService defines the two time-based batch passes. Both are idempotent and re-derive
// every action from persisted state, so a failed case is simply retried on the next run.
type SweepService interface {
	// RunReminderPass raises escalation levels that are due.
	RunReminderPass(ctx context.Context) (Report, error)
	// RunExpiryPass expires cases past the SLA.
	RunExpiryPass(ctx context.Context) (Report, error)
}

type SweepServiceImpl struct{ base }

var _ SweepService = (*SweepServiceImpl)(nil)

// NewSweepService constructs SweepService.
func NewSweepService(d Deps) *SweepServiceImpl {
	return &SweepServiceImpl{base: newBase(d, "sweep")}
}

// RunReminderPass visits OPEN, IN_PROGRESS and SUBMITTED cases.
func (s *SweepServiceImpl) RunReminderPass(ctx context.Context) (Report, error) {
	f := model.CaseFilter{Statuses: []model.Status{model.StatusOpen, model.StatusInProgress, model.StatusSubmitted}}
	return s.run(ctx, PassReminder, f, lifecycle.Escalate)
}

// RunExpiryPass visits every case that is not COMPLETED; already expired ones are skipped.
func (s *SweepServiceImpl) RunExpiryPass(ctx context.Context) (Report, error) {
	f := model.CaseFilter{Statuses: []model.Status{
		model.StatusOpen, model.StatusInProgress, model.StatusSubmitted, model.StatusExpired,
	}}
	return s.run(ctx, PassExpiry, f, func(c *model.Case, now time.Time) (*model.Case, lifecycle.Change, error) {
		if !lifecycle.ExpiryDue(c, now) {
			return c, lifecycle.Change{Noop: true}, nil
		}
		return lifecycle.Expire(c, now)
	})
}

// run applies tr to every scanned case with a single pass time. Errors are per case: they are
// logged and counted, never abort the scan, and are not retried within the pass.
func (s *SweepServiceImpl) run(ctx context.Context, pass string, f model.CaseFilter, tr transition) (Report, error) {
	now := s.clock.Now()
	began := time.Now()
	rep := Report{Pass: pass, StartedAt: now}
	log := s.log.With(zap.String("pass", pass))

	for c, err := range s.cases.Scan(ctx, f) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return s.finish(log, rep, began), ctxErr
		}
		if err != nil {
			rep.Failed++
			log.Warn("scan failed", zap.Error(err))
			continue
		}
		rep.Scanned++

		next, ch, err := tr(c, now)
		if err != nil {
			rep.Failed++
			log.Warn("transition failed", zap.String("case_id", c.ID.String()), zap.Error(err))
			continue
		}
		if ch.Noop {
			rep.Unchanged++
			continue
		}
		if err := s.commit(ctx, next, c.Ver, model.SystemActor, ch, now); err != nil {
			rep.Failed++
			if errors.Is(err, errs.ErrVersionConflict) {
				s.metrics.Conflict(pass)
			}
			log.Warn("write failed, retry next run", zap.String("case_id", c.ID.String()), zap.Error(err))
			continue
		}
		rep.Changed++
	}
	return s.finish(log, rep, began), nil
}

func (s *SweepServiceImpl) finish(log *zap.Logger, rep Report, began time.Time) Report {
	s.metrics.SweepResult(rep.Pass, "changed", rep.Changed)
	s.metrics.SweepResult(rep.Pass, "unchanged", rep.Unchanged)
	s.metrics.SweepResult(rep.Pass, "failed", rep.Failed)
	s.metrics.SweepDuration(rep.Pass, time.Since(began))
	log.Info("pass finished",
		zap.Int("scanned", rep.Scanned),
		zap.Int("changed", rep.Changed),
		zap.Int("failed", rep.Failed))
	return rep
}
