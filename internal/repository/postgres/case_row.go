package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/model"
)

const caseCols = `id, owner_id, token_digest, status, review_status, rejected_slots, completion_percent,
escalation_level, last_escalation_confirmed_at, documents, notes, created_at, updated_at,
reopened_at, expired_at, reviewed_at, reviewed_by, review_comment, approved, ver`

// caseRow is the flat column form of a case.
type caseRow struct {
	ID                uuid.UUID
	OwnerID           string
	TokenDigest       []byte
	Status            string
	ReviewStatus      string
	RejectedSlots     []string
	CompletionPercent int
	EscalationLevel   int
	ConfirmedAt       *time.Time
	Documents         []byte
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ReopenedAt        *time.Time
	ExpiredAt         *time.Time
	ReviewedAt        *time.Time
	ReviewedBy        *string
	ReviewComment     *string
	Approved          bool
	Ver               int64
}

func (r *caseRow) dest() []any {
	return []any{
		&r.ID, &r.OwnerID, &r.TokenDigest, &r.Status, &r.ReviewStatus, &r.RejectedSlots, &r.CompletionPercent,
		&r.EscalationLevel, &r.ConfirmedAt, &r.Documents, &r.Notes, &r.CreatedAt, &r.UpdatedAt,
		&r.ReopenedAt, &r.ExpiredAt, &r.ReviewedAt, &r.ReviewedBy, &r.ReviewComment, &r.Approved, &r.Ver,
	}
}

func rowFromCase(c *model.Case) (caseRow, error) {
	docs, err := json.Marshal(c.Documents)
	if err != nil {
		return caseRow{}, fmt.Errorf("marshal documents: %w", err)
	}
	rec := model.FlattenPhase(c.Phase)
	r := caseRow{
		ID:                c.ID,
		OwnerID:           c.OwnerID,
		TokenDigest:       c.TokenDigest,
		Status:            string(rec.Status),
		ReviewStatus:      string(rec.ReviewStatus),
		RejectedSlots:     make([]string, 0, len(rec.RejectedSlots)),
		CompletionPercent: c.CompletionPercent,
		EscalationLevel:   int(c.EscalationLevel),
		ConfirmedAt:       c.LastEscalationConfirmedAt,
		Documents:         docs,
		Notes:             c.Notes,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		ReopenedAt:        c.ReopenedAt,
		ExpiredAt:         rec.ExpiredAt,
		Ver:               c.Ver,
	}
	for _, k := range rec.RejectedSlots {
		r.RejectedSlots = append(r.RejectedSlots, string(k))
	}
	if lr := c.LastReview; lr != nil {
		at, by, comment := lr.At, lr.By, lr.Comment
		r.ReviewedAt, r.ReviewedBy, r.ReviewComment = &at, &by, &comment
		r.Approved = lr.Approved
	}
	return r, nil
}

func (r *caseRow) toModel() (*model.Case, error) {
	c := &model.Case{
		ID:                        r.ID,
		OwnerID:                   r.OwnerID,
		TokenDigest:               r.TokenDigest,
		Documents:                 map[model.DocumentKind]model.Document{},
		CompletionPercent:         r.CompletionPercent,
		EscalationLevel:           model.EscalationLevel(r.EscalationLevel),
		LastEscalationConfirmedAt: utcPtr(r.ConfirmedAt),
		Notes:                     r.Notes,
		CreatedAt:                 r.CreatedAt.UTC(),
		UpdatedAt:                 r.UpdatedAt.UTC(),
		ReopenedAt:                utcPtr(r.ReopenedAt),
		Ver:                       r.Ver,
	}
	if len(r.Documents) > 0 {
		if err := json.Unmarshal(r.Documents, &c.Documents); err != nil {
			return nil, fmt.Errorf("case %s: unmarshal documents: %w", r.ID, err)
		}
	}
	if r.ReviewedAt != nil {
		c.LastReview = &model.Review{At: r.ReviewedAt.UTC(), Approved: r.Approved}
		if r.ReviewedBy != nil {
			c.LastReview.By = *r.ReviewedBy
		}
		if r.ReviewComment != nil {
			c.LastReview.Comment = *r.ReviewComment
		}
	}
	rec := model.PhaseRecord{
		Status:       model.Status(r.Status),
		ReviewStatus: model.ReviewStatus(r.ReviewStatus),
		ExpiredAt:    utcPtr(r.ExpiredAt),
	}
	for _, s := range r.RejectedSlots {
		rec.RejectedSlots = append(rec.RejectedSlots, model.DocumentKind(s))
	}
	phase, err := model.RestorePhase(rec, c.LastReview)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", r.ID, err)
	}
	c.Phase = phase
	return c, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
