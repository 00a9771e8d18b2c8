package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/blobstore"
	"github.com/and161185/docflow/internal/crypto"
	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/lifecycle"
	"github.com/and161185/docflow/internal/model"
)

// CaseService defines the owner-facing case operations.
type CaseService interface {
	// Create opens a new case and returns it with its access token populated.
	Create(ctx context.Context, actor model.Actor, in model.NewCase) (*model.Case, error)
	// Get returns a case the actor may see.
	Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Case, error)
	// List returns the actor's cases, or all cases for a supervisor.
	List(ctx context.Context, actor model.Actor, statuses []model.Status) ([]*model.Case, error)
	// UpdateNotes replaces the free-text notes.
	UpdateNotes(ctx context.Context, actor model.Actor, id uuid.UUID, notes string) (*model.Case, error)
	// SetStatus is the manual status edit.
	SetStatus(ctx context.Context, actor model.Actor, id uuid.UUID, target model.Status) (*model.Case, error)
	// Review approves or rejects a submitted case.
	Review(ctx context.Context, actor model.Actor, id uuid.UUID, d model.ReviewDecision) (*model.Case, error)
	// Reopen moves an expired case back to OPEN.
	Reopen(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Case, error)
	// Reassign hands a case to another owner.
	Reassign(ctx context.Context, actor model.Actor, id uuid.UUID, newOwnerID string) (*model.Case, error)
	// ConfirmEscalation acknowledges the current reminder level.
	ConfirmEscalation(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Case, error)
	// Delete removes a case and its documents.
	Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error
}

type CaseServiceImpl struct {
	base
	digester *crypto.Digester
}

var _ CaseService = (*CaseServiceImpl)(nil)

// NewCaseService constructs CaseService. digester turns fresh access tokens into lookup keys.
func NewCaseService(d Deps, digester *crypto.Digester) *CaseServiceImpl {
	return &CaseServiceImpl{base: newBase(d, "cases"), digester: digester}
}

// Create validates the owner against the staff directory and stores a fresh OPEN case.
// Only the token digest is persisted; the raw token is returned once on the result.
func (s *CaseServiceImpl) Create(ctx context.Context, actor model.Actor, in model.NewCase) (*model.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	owner := in.OwnerID
	if owner == "" {
		owner = actor.ID
	}
	if owner != actor.ID && actor.Role != model.RoleSupervisor {
		return nil, errs.ErrForbidden
	}
	if err := s.checkOwner(ctx, owner); err != nil {
		return nil, err
	}

	token, err := crypto.NewAccessToken()
	if err != nil {
		return nil, err
	}
	digest, err := s.digester.Digest(token)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	c, ch, err := lifecycle.New(id, owner, digest, in.Notes, now)
	if err != nil {
		return nil, err
	}
	if err := s.cases.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}
	c.Ver = 1
	s.emit(c, actor, ch, now)
	s.log.Info("case created", zap.String("case_id", id.String()), zap.String("owner_id", owner))

	c.AccessToken = token
	return c, nil
}

// checkOwner verifies that id is an active staff member who may own cases.
func (s *CaseServiceImpl) checkOwner(ctx context.Context, id string) error {
	m, err := s.staff.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("%w: unknown owner %q", errs.ErrBadRequest, id)
		}
		return err
	}
	if !m.CanOwnCases() {
		return fmt.Errorf("%w: %q cannot own cases", errs.ErrBadRequest, id)
	}
	return nil
}

// Get loads a case and checks access.
func (s *CaseServiceImpl) Get(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	c, err := s.byID(id)(ctx)
	if err != nil {
		return nil, err
	}
	if err := authorizeStaff(actor)(c); err != nil {
		return nil, err
	}
	return c, nil
}

// List scans the actor's cases, optionally narrowed by status.
func (s *CaseServiceImpl) List(ctx context.Context, actor model.Actor, statuses []model.Status) ([]*model.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", errs.ErrBadRequest, st)
		}
	}
	f := model.CaseFilter{Statuses: statuses}
	if actor.Role != model.RoleSupervisor {
		f.OwnerID = actor.ID
	}
	out := []*model.Case{}
	for c, err := range s.cases.Scan(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CaseServiceImpl) staffMutate(ctx context.Context, op string, actor model.Actor, id uuid.UUID, tr transition) (*model.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	c, _, err := s.mutate(ctx, op, actor, s.byID(id), authorizeStaff(actor), tr)
	return c, err
}

// UpdateNotes replaces the notes in any status.
func (s *CaseServiceImpl) UpdateNotes(ctx context.Context, actor model.Actor, id uuid.UUID, notes string) (*model.Case, error) {
	return s.staffMutate(ctx, "update_notes", actor, id, func(c *model.Case, now time.Time) (*model.Case, lifecycle.Change, error) {
		return lifecycle.UpdateNotes(c, notes, now)
	})
}

// SetStatus applies the manual status edit.
func (s *CaseServiceImpl) SetStatus(ctx context.Context, actor model.Actor, id uuid.UUID, target model.Status) (*model.Case, error) {
	return s.staffMutate(ctx, "set_status", actor, id, func(c *model.Case, now time.Time) (*model.Case, lifecycle.Change, error) {
		return lifecycle.SetStatus(c, actor.ID, target, now)
	})
}

// Review records the approve or reject decision.
func (s *CaseServiceImpl) Review(ctx context.Context, actor model.Actor, id uuid.UUID, d model.ReviewDecision) (*model.Case, error) {
	return s.staffMutate(ctx, "review", actor, id, func(c *model.Case, now time.Time) (*model.Case, lifecycle.Change, error) {
		return lifecycle.Review(c, actor.ID, d, now)
	})
}

// Reopen moves an expired case back to OPEN.
func (s *CaseServiceImpl) Reopen(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Case, error) {
	return s.staffMutate(ctx, "reopen", actor, id, lifecycle.Reopen)
}

// Reassign validates the new owner and hands the case over.
func (s *CaseServiceImpl) Reassign(ctx context.Context, actor model.Actor, id uuid.UUID, newOwnerID string) (*model.Case, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.checkOwner(ctx, newOwnerID); err != nil {
		return nil, err
	}
	return s.staffMutate(ctx, "reassign", actor, id, func(c *model.Case, now time.Time) (*model.Case, lifecycle.Change, error) {
		return lifecycle.Reassign(c, newOwnerID, now)
	})
}

// ConfirmEscalation acknowledges the reminder.
func (s *CaseServiceImpl) ConfirmEscalation(ctx context.Context, actor model.Actor, id uuid.UUID) (*model.Case, error) {
	return s.staffMutate(ctx, "confirm_escalation", actor, id, lifecycle.ConfirmEscalation)
}

// Delete removes the record with a version check, then deletes its blobs best-effort.
func (s *CaseServiceImpl) Delete(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	var deleted *model.Case
	err := retry.Do(
		func() error {
			c, err := s.byID(id)(ctx)
			if err != nil {
				return err
			}
			if err := authorizeStaff(actor)(c); err != nil {
				return err
			}
			if err := s.cases.Delete(ctx, c.ID, c.Ver); err != nil {
				if errors.Is(err, errs.ErrVersionConflict) {
					s.metrics.Conflict("delete")
				}
				return err
			}
			deleted = c
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
		return err
	}

	for _, d := range deleted.Documents {
		blobstore.BestEffortDelete(ctx, s.blobs, s.log, d.BlobPath)
	}
	now := s.clock.Now()
	s.metrics.Transition(string(model.ActionCaseDeleted))
	if s.audit != nil {
		tomb := deleted.Clone()
		tomb.Ver++
		s.audit.Emit(audit.FromCase(tomb, actor, model.ActionCaseDeleted, map[string]any{
			"status":    string(deleted.Status()),
			"documents": len(deleted.Documents),
		}, now))
	}
	s.log.Info("case deleted", zap.String("case_id", id.String()), zap.String("actor_id", actor.ID))
	return nil
}
