package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocloud.dev/blob/memblob"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/blobstore"
	"github.com/and161185/docflow/internal/clock"
	"github.com/and161185/docflow/internal/crypto"
	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/limiter"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/repository"
	"github.com/and161185/docflow/internal/repository/memory"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	owner1     = model.Actor{ID: "owner-1", Role: model.RoleOwner, IP: "10.0.0.1"}
	owner2     = model.Actor{ID: "owner-2", Role: model.RoleOwner}
	supervisor = model.Actor{ID: "sup-1", Role: model.RoleSupervisor}
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingEmitter) Emit(e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) actions() []model.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Action, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

// flakyCases wraps a case repository and fails chosen Put calls.
type flakyCases struct {
	repository.CaseRepository

	mu        sync.Mutex
	conflicts int                 // next N Puts return a version conflict
	failIDs   map[uuid.UUID]error // Puts for these ids always fail
	beforePut func(c *model.Case) // runs before every Put
}

var _ repository.CaseRepository = (*flakyCases)(nil)

func (f *flakyCases) Put(ctx context.Context, c *model.Case, baseVer int64) (int64, error) {
	f.mu.Lock()
	hook := f.beforePut
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return 0, errs.ErrVersionConflict
	}
	err := f.failIDs[c.ID]
	f.mu.Unlock()
	if hook != nil {
		hook(c)
	}
	if err != nil {
		return 0, err
	}
	return f.CaseRepository.Put(ctx, c, baseVer)
}

type env struct {
	clk     *clock.Mock
	cases   *flakyCases
	staff   *memory.StaffRepo
	blobs   *blobstore.Bucket
	emitter *recordingEmitter
	lim     *limiter.Memory

	caseSvc   *CaseServiceImpl
	submitSvc *SubmissionServiceImpl
	sweepSvc  *SweepServiceImpl
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewMock(t0)
	e := &env{
		clk:   clk,
		cases: &flakyCases{CaseRepository: memory.NewCaseRepo(), failIDs: map[uuid.UUID]error{}},
		staff: memory.NewStaffRepo(
			model.StaffMember{ID: "owner-1", Role: model.RoleOwner, Active: true},
			model.StaffMember{ID: "owner-2", Role: model.RoleOwner, Active: true},
			model.StaffMember{ID: "retired", Role: model.RoleOwner, Active: false},
			model.StaffMember{ID: "sup-1", Role: model.RoleSupervisor, Active: true},
		),
		blobs:   blobstore.New(memblob.OpenBucket(nil), nil),
		emitter: &recordingEmitter{},
		lim:     limiter.NewMemory(clk, limiter.DefaultWindow, 3, limiter.DefaultBlockFor),
	}
	t.Cleanup(func() { _ = e.blobs.Close() })

	digester, err := crypto.NewDigester(make([]byte, 32))
	require.NoError(t, err)
	d := Deps{
		Cases: e.cases, Staff: e.staff, Blobs: e.blobs, Audit: e.emitter,
		Clock: clk, Log: zaptest.NewLogger(t),
	}
	e.caseSvc = NewCaseService(d, digester)
	e.submitSvc = NewSubmissionService(d, digester, e.lim)
	e.sweepSvc = NewSweepService(d)
	return e
}

func (e *env) create(t *testing.T) *model.Case {
	t.Helper()
	c, err := e.caseSvc.Create(context.Background(), owner1, model.NewCase{Notes: "new client"})
	require.NoError(t, err)
	require.NotEmpty(t, c.AccessToken)
	return c
}

func (e *env) upload(t *testing.T, token string, kind model.DocumentKind) *model.Case {
	t.Helper()
	c, err := e.submitSvc.Upload(context.Background(), token, "192.0.2.1", Upload{Kind: kind, ContentType: "image/png", Content: []byte("img-" + kind)})
	require.NoError(t, err)
	return c
}

func (e *env) blobExists(t *testing.T, key string) bool {
	t.Helper()
	_, err := e.blobs.Get(context.Background(), key)
	return err == nil
}
