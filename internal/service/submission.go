package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/docflow/internal/blobstore"
	"github.com/and161185/docflow/internal/crypto"
	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/lifecycle"
	"github.com/and161185/docflow/internal/limiter"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

// MaxDocumentSize bounds a single uploaded artifact.
const MaxDocumentSize = 10 << 20

// Upload is one document the submitter sends for a slot.
type Upload struct {
	Kind        model.DocumentKind
	ContentType string
	Content     []byte
}

// SubmissionService defines the operations reachable with a case access token.
type SubmissionService interface {
	// Open resolves the token to its case.
	Open(ctx context.Context, token, ip string) (*model.Case, error)
	// Upload stores a document and fills its slot.
	Upload(ctx context.Context, token, ip string, up Upload) (*model.Case, error)
	// Submit hands the complete document set to the owner for review.
	Submit(ctx context.Context, token, ip string) (*model.Case, error)
}

type SubmissionServiceImpl struct {
	base
	digester *crypto.Digester
	lim      limiter.Limiter
}

var _ SubmissionService = (*SubmissionServiceImpl)(nil)

// NewSubmissionService constructs SubmissionService.
func NewSubmissionService(d Deps, digester *crypto.Digester, lim limiter.Limiter) *SubmissionServiceImpl {
	return &SubmissionServiceImpl{base: newBase(d, "submission"), digester: digester, lim: lim}
}

func submitterActor(c *model.Case, ip string) model.Actor {
	return model.Actor{ID: "submitter:" + c.ID.String(), Role: model.RoleSubmitter, IP: ip}
}

// Open applies lookup throttling per address, then resolves the token.
func (s *SubmissionServiceImpl) Open(ctx context.Context, token, ip string) (*model.Case, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, ipHash)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.metrics.TokenDenied("blocked")
		return nil, errs.ErrRateLimited
	}

	var c *model.Case
	digest, err := s.digester.Digest(token)
	if err == nil {
		c, err = s.cases.GetByTokenDigest(ctx, digest)
	}
	if err != nil {
		if !errors.Is(err, crypto.ErrMalformedToken) && !errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		s.metrics.TokenDenied("unknown")
		if blocked, _, ferr := s.lim.Failure(ctx, ipHash); ferr == nil && blocked {
			s.log.Warn("token lookups blocked", zap.String("ip", ip))
			return nil, errs.ErrRateLimited
		}
		return nil, errs.ErrNotFound
	}

	// best-effort
	_ = s.lim.Success(ctx, ipHash)
	return c, nil
}

// Upload writes the blob first, then records it on the case. A failed transition deletes the
// new blob; a committed one deletes the blob it replaced.
func (s *SubmissionServiceImpl) Upload(ctx context.Context, token, ip string, up Upload) (*model.Case, error) {
	if !policy.IsRequired(up.Kind) {
		return nil, errs.State(errs.ReasonUnknownDocumentKind, "%q", up.Kind)
	}
	if len(up.Content) == 0 || len(up.Content) > MaxDocumentSize {
		return nil, errs.ErrBadRequest
	}
	c, err := s.Open(ctx, token, ip)
	if err != nil {
		return nil, err
	}
	switch c.Phase.(type) {
	case model.Expired:
		return nil, errs.State(errs.ReasonAlreadyExpired, "upload rejected")
	case model.Completed:
		return nil, errs.State(errs.ReasonAlreadyApproved, "upload rejected")
	}

	key := blobstore.Key(c.ID, up.Kind)
	doc, err := s.blobs.Put(ctx, key, up.Content, up.ContentType)
	if err != nil {
		return nil, err
	}

	next, ch, err := s.mutate(ctx, "upload", submitterActor(c, ip), s.byID(c.ID), nil,
		func(cur *model.Case, now time.Time) (*model.Case, lifecycle.Change, error) {
			return lifecycle.RecordUpload(cur, up.Kind, doc, now)
		})
	if err != nil {
		blobstore.BestEffortDelete(ctx, s.blobs, s.log, key)
		return nil, err
	}
	blobstore.BestEffortDelete(ctx, s.blobs, s.log, ch.ReplacedBlob())
	return next, nil
}

// Submit moves the case to SUBMITTED.
func (s *SubmissionServiceImpl) Submit(ctx context.Context, token, ip string) (*model.Case, error) {
	c, err := s.Open(ctx, token, ip)
	if err != nil {
		return nil, err
	}
	next, _, err := s.mutate(ctx, "submit", submitterActor(c, ip), s.byID(c.ID), nil, lifecycle.Submit)
	return next, err
}
