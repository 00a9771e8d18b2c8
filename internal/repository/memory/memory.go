// Package memory provides in-process repository implementations for development and tests.
package memory

import (
	"bytes"
	"context"
	"iter"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/repository"
)

var (
	_ repository.CaseRepository  = (*CaseRepo)(nil)
	_ repository.AuditRepository = (*AuditRepo)(nil)
	_ repository.StaffRepository = (*StaffRepo)(nil)
)

// CaseRepo keeps cases in a map guarded by a mutex. Stored values are deep copies.
type CaseRepo struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]*model.Case
}

// NewCaseRepo returns an empty case store.
func NewCaseRepo() *CaseRepo { return &CaseRepo{cases: map[uuid.UUID]*model.Case{}} }

// Create stores c at version 1.
func (r *CaseRepo) Create(_ context.Context, c *model.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[c.ID]; ok {
		return errs.ErrAlreadyExists
	}
	for _, other := range r.cases {
		if bytes.Equal(other.TokenDigest, c.TokenDigest) {
			return errs.ErrAlreadyExists
		}
	}
	cp := c.Clone()
	cp.AccessToken = ""
	cp.Ver = 1
	r.cases[c.ID] = cp
	return nil
}

// Get returns a copy of the case.
func (r *CaseRepo) Get(_ context.Context, id uuid.UUID) (*model.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return c.Clone(), nil
}

// GetByTokenDigest returns a copy of the case holding digest.
func (r *CaseRepo) GetByTokenDigest(_ context.Context, digest []byte) (*model.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.cases {
		if bytes.Equal(c.TokenDigest, digest) {
			return c.Clone(), nil
		}
	}
	return nil, errs.ErrNotFound
}

// Put replaces the case if the stored version is baseVer.
func (r *CaseRepo) Put(_ context.Context, c *model.Case, baseVer int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.cases[c.ID]
	if !ok {
		return 0, errs.ErrNotFound
	}
	if cur.Ver != baseVer {
		return 0, errs.ErrVersionConflict
	}
	cp := c.Clone()
	cp.AccessToken = ""
	cp.TokenDigest = cur.TokenDigest
	cp.Ver = baseVer + 1
	r.cases[c.ID] = cp
	return cp.Ver, nil
}

// Scan yields copies of matching cases ordered by id, taken from a snapshot.
func (r *CaseRepo) Scan(ctx context.Context, f model.CaseFilter) iter.Seq2[*model.Case, error] {
	return func(yield func(*model.Case, error) bool) {
		r.mu.RLock()
		snap := make([]*model.Case, 0, len(r.cases))
		for _, c := range r.cases {
			if f.Matches(c) {
				snap = append(snap, c.Clone())
			}
		}
		r.mu.RUnlock()
		sort.Slice(snap, func(i, j int) bool {
			return bytes.Compare(snap[i].ID.Bytes(), snap[j].ID.Bytes()) < 0
		})
		for _, c := range snap {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(c, nil) {
				return
			}
		}
	}
}

// Delete removes the case if the stored version is baseVer.
func (r *CaseRepo) Delete(_ context.Context, id uuid.UUID, baseVer int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.cases[id]
	if !ok {
		return errs.ErrNotFound
	}
	if cur.Ver != baseVer {
		return errs.ErrVersionConflict
	}
	delete(r.cases, id)
	return nil
}

// AuditRepo is an append-only slice of events.
type AuditRepo struct {
	mu     sync.Mutex
	events []audit.Event
}

// NewAuditRepo returns an empty audit log.
func NewAuditRepo() *AuditRepo { return &AuditRepo{} }

// Append stores e.
func (r *AuditRepo) Append(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// ListByCase returns the events of a case ordered by case version.
func (r *AuditRepo) ListByCase(_ context.Context, caseID uuid.UUID) ([]audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []audit.Event
	for _, e := range r.events {
		if e.CaseID == caseID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CaseVer < out[j].CaseVer })
	return out, nil
}

// All returns every stored event in append order.
func (r *AuditRepo) All() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// StaffRepo is a map-backed staff directory.
type StaffRepo struct {
	mu    sync.RWMutex
	staff map[string]model.StaffMember
}

// NewStaffRepo returns a directory seeded with members.
func NewStaffRepo(members ...model.StaffMember) *StaffRepo {
	r := &StaffRepo{staff: map[string]model.StaffMember{}}
	for _, m := range members {
		r.staff[m.ID] = m
	}
	return r
}

// GetByID returns the member with id.
func (r *StaffRepo) GetByID(_ context.Context, id string) (*model.StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.staff[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &m, nil
}

// Upsert stores s.
func (r *StaffRepo) Upsert(_ context.Context, s *model.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staff[s.ID] = *s
	return nil
}
