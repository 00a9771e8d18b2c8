// Package service contains the application services: owner case operations, submitter access
// and the sweeper passes. Every mutation is a read-validate-write cycle committed with a
// version check and audited after commit.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/blobstore"
	"github.com/and161185/docflow/internal/clock"
	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/lifecycle"
	"github.com/and161185/docflow/internal/metrics"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/repository"
)

// Conflict retry parameters for actor-triggered mutations.
const (
	conflictAttempts = 3
	conflictDelay    = 10 * time.Millisecond
)

// AuditEmitter accepts events after commit. *audit.Emitter implements it.
type AuditEmitter interface {
	Emit(e audit.Event)
}

// Deps are the collaborators shared by all services.
type Deps struct {
	Cases   repository.CaseRepository
	Staff   repository.StaffRepository
	Blobs   blobstore.Store
	Audit   AuditEmitter
	Clock   clock.Clock
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

type base struct {
	cases   repository.CaseRepository
	staff   repository.StaffRepository
	blobs   blobstore.Store
	audit   AuditEmitter
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics
}

func newBase(d Deps, name string) base {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := d.Clock
	if clk == nil {
		clk = clock.New()
	}
	return base{
		cases:   d.Cases,
		staff:   d.Staff,
		blobs:   d.Blobs,
		audit:   d.Audit,
		clock:   clk,
		log:     log.With(zap.String("service", name)),
		metrics: d.Metrics,
	}
}

// transition is a pure lifecycle step bound to its arguments.
type transition func(c *model.Case, now time.Time) (*model.Case, lifecycle.Change, error)

// loader reads the current persisted state of the target case.
type loader func(ctx context.Context) (*model.Case, error)

func (b *base) byID(id uuid.UUID) loader {
	return func(ctx context.Context) (*model.Case, error) {
		if id == uuid.Nil {
			return nil, errs.ErrBadRequest
		}
		return b.cases.Get(ctx, id)
	}
}

// mutate runs load, authorize, transition and a version-checked write, re-running the whole
// cycle on a version conflict. A Noop change returns the current case without writing.
func (b *base) mutate(
	ctx context.Context, op string, actor model.Actor, load loader, authorize func(*model.Case) error, tr transition,
) (*model.Case, lifecycle.Change, error) {
	var (
		out *model.Case
		ch  lifecycle.Change
	)
	err := retry.Do(
		func() error {
			cur, err := load(ctx)
			if err != nil {
				return err
			}
			if authorize != nil {
				if err := authorize(cur); err != nil {
					return err
				}
			}
			now := b.clock.Now()
			next, change, err := tr(cur, now)
			if err != nil {
				return err
			}
			if change.Noop {
				out, ch = cur, change
				return nil
			}
			if err := b.commit(ctx, next, cur.Ver, actor, change, now); err != nil {
				if errors.Is(err, errs.ErrVersionConflict) {
					b.metrics.Conflict(op)
					b.log.Debug("version conflict, retrying", zap.String("op", op), zap.String("case_id", cur.ID.String()))
				}
				return err
			}
			out, ch = next, change
			return nil
		},
		retry.Attempts(conflictAttempts),
		retry.Delay(conflictDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool { return errors.Is(err, errs.ErrVersionConflict) }),
	)
	if err != nil {
		return nil, lifecycle.Change{}, err
	}
	return out, ch, nil
}

// caseLocks serializes commit plus emission per case within this process. Events of one case
// therefore reach the emitter in commit order; across processes sinks order by CaseVer.
type caseLocks [64]sync.Mutex

func (l *caseLocks) of(id uuid.UUID) *sync.Mutex { return &l[int(id[len(id)-1])%len(l)] }

var commitOrder caseLocks

// commit writes next with a version check and, on success, emits its event before another
// writer of the same case can commit.
func (b *base) commit(
	ctx context.Context, next *model.Case, baseVer int64, actor model.Actor, ch lifecycle.Change, now time.Time,
) error {
	mu := commitOrder.of(next.ID)
	mu.Lock()
	defer mu.Unlock()

	ver, err := b.cases.Put(ctx, next, baseVer)
	if err != nil {
		return err
	}
	next.Ver = ver
	b.emit(next, actor, ch, now)
	return nil
}

// emit hands the event of a committed change to the audit emitter.
func (b *base) emit(c *model.Case, actor model.Actor, ch lifecycle.Change, at time.Time) {
	b.metrics.Transition(string(ch.Action))
	if b.audit == nil {
		return
	}
	b.audit.Emit(audit.FromCase(c, actor, ch.Action, ch.Meta, at))
}

// authorizeStaff allows supervisors everywhere and owners on their own cases.
func authorizeStaff(actor model.Actor) func(*model.Case) error {
	return func(c *model.Case) error {
		switch {
		case actor.Role == model.RoleSupervisor:
			return nil
		case actor.Role == model.RoleOwner && c.OwnerID == actor.ID:
			return nil
		default:
			return errs.ErrForbidden
		}
	}
}

func requireStaff(actor model.Actor) error {
	if actor.ID == "" || !actor.IsStaff() {
		return errs.ErrForbidden
	}
	return nil
}
