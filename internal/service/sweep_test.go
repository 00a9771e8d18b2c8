package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

func TestSweep_ReminderBoundaryAndIdempotence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t)

	e.clk.Set(t0.Add(23*time.Hour + 59*time.Minute))
	rep, err := e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Pass: PassReminder, StartedAt: e.clk.Now(), Scanned: 1, Unchanged: 1}, rep)

	e.clk.Set(t0.Add(24 * time.Hour))
	rep, err = e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Changed)

	rep, err = e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rep.Changed)

	got, err := e.caseSvc.Get(ctx, owner1, c.ID)
	require.NoError(t, err)
	require.Equal(t, model.EscalationFirst, got.EscalationLevel)

	acts := e.emitter.actions()
	require.Equal(t, model.ActionEscalationRaised, acts[len(acts)-1])
	require.Equal(t, model.SystemActor.ID, e.emitter.events[len(acts)-1].ActorID)
}

func TestSweep_SecondLevelFromAcknowledgement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t)

	e.clk.Set(t0.Add(24 * time.Hour))
	_, err := e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	_, err = e.caseSvc.ConfirmEscalation(ctx, owner1, c.ID)
	require.NoError(t, err)
	ackAt := e.clk.Now()

	e.clk.Advance(time.Hour)
	_, err = e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)

	e.clk.Set(ackAt.Add(policy.SecondReminderAfter - time.Second))
	_, err = e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	got, _ := e.caseSvc.Get(ctx, owner1, c.ID)
	require.Equal(t, model.EscalationFirst, got.EscalationLevel)

	e.clk.Set(ackAt.Add(policy.SecondReminderAfter))
	_, err = e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	got, _ = e.caseSvc.Get(ctx, owner1, c.ID)
	require.Equal(t, model.EscalationSecond, got.EscalationLevel)
}

func TestSweep_ExpiryBoundaryCompletedAndReopen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.create(t)

	done := e.create(t)
	for _, k := range policy.RequiredDocumentKinds() {
		e.upload(t, done.AccessToken, k)
	}
	_, err := e.submitSvc.Submit(ctx, done.AccessToken, "ip")
	require.NoError(t, err)
	_, err = e.caseSvc.Review(ctx, owner1, done.ID, model.ReviewDecision{Approve: true})
	require.NoError(t, err)

	e.clk.Set(t0.Add(policy.SLAExpiry - time.Second))
	rep, err := e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Scanned, "completed cases are not scanned")
	require.Equal(t, 0, rep.Changed)

	e.clk.Set(t0.Add(policy.SLAExpiry))
	rep, err = e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Changed)

	rep, err = e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Pass: PassExpiry, StartedAt: e.clk.Now(), Scanned: 1, Unchanged: 1}, rep)

	exp, _ := e.caseSvc.Get(ctx, owner1, c.ID)
	require.Equal(t, model.StatusExpired, exp.Status())
	require.Equal(t, t0.Add(policy.SLAExpiry), *exp.ExpiredAt())

	e.clk.Set(t0.Add(1000 * time.Hour))
	_, err = e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	still, _ := e.caseSvc.Get(ctx, owner1, done.ID)
	require.Equal(t, model.StatusCompleted, still.Status())

	reopened, err := e.caseSvc.Reopen(ctx, owner1, c.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusOpen, reopened.Status())
	require.Nil(t, reopened.ExpiredAt())
	require.Equal(t, model.EscalationNone, reopened.EscalationLevel)

	rep, err = e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, rep.Changed, "reopen restarts the SLA window")
}

func TestSweep_PartialFailureDoesNotAbort(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a, b, c := e.create(t), e.create(t), e.create(t)
	e.cases.failIDs[b.ID] = errors.New("storage unavailable")

	e.clk.Set(t0.Add(policy.SLAExpiry + time.Hour))
	rep, err := e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, rep.Scanned)
	require.Equal(t, 2, rep.Changed)
	require.Equal(t, 1, rep.Failed)

	for _, id := range []*model.Case{a, c} {
		got, _ := e.caseSvc.Get(ctx, owner1, id.ID)
		require.Equal(t, model.StatusExpired, got.Status())
	}

	// healed on the next tick
	delete(e.cases.failIDs, b.ID)
	rep, err = e.sweepSvc.RunExpiryPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Changed)
	got, _ := e.caseSvc.Get(ctx, owner1, b.ID)
	require.Equal(t, model.StatusExpired, got.Status())
}

func TestSweep_ConflictCountsAsFailedWithoutRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.create(t)

	e.clk.Set(t0.Add(policy.FirstReminderAfter))
	e.cases.conflicts = 1
	rep, err := e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Failed)
	require.Equal(t, 0, rep.Changed)

	rep, err = e.sweepSvc.RunReminderPass(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, rep.Changed)
}

func TestSweep_StopsOnCancelledContext(t *testing.T) {
	e := newEnv(t)
	e.create(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.sweepSvc.RunReminderPass(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
