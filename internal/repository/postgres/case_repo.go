package postgres

import (
	"context"
	"errors"
	"iter"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
)

// DefaultScanPage is the number of rows fetched per Scan round trip.
const DefaultScanPage = 500

// CaseRepo implements CaseRepository using PostgreSQL.
type CaseRepo struct {
	db       *DB
	pageSize int
}

// NewCaseRepo constructs a case repository.
func NewCaseRepo(db *DB) *CaseRepo { return &CaseRepo{db: db, pageSize: DefaultScanPage} }

// WithPageSize overrides the Scan page size.
func (r *CaseRepo) WithPageSize(n int) *CaseRepo {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// Create inserts a new case row at version 1.
func (r *CaseRepo) Create(ctx context.Context, c *model.Case) error {
	row, err := rowFromCase(c)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO cases (id, owner_id, token_digest, status, review_status, rejected_slots, completion_percent,
escalation_level, last_escalation_confirmed_at, documents, notes, created_at, updated_at,
reopened_at, expired_at, reviewed_at, reviewed_by, review_comment, approved, ver)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,1)`
	_, err = r.db.Pool.Exec(ctx, q,
		row.ID, row.OwnerID, row.TokenDigest, row.Status, row.ReviewStatus, row.RejectedSlots, row.CompletionPercent,
		row.EscalationLevel, row.ConfirmedAt, row.Documents, row.Notes, row.CreatedAt, row.UpdatedAt,
		row.ReopenedAt, row.ExpiredAt, row.ReviewedAt, row.ReviewedBy, row.ReviewComment, row.Approved)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a case by ID.
func (r *CaseRepo) Get(ctx context.Context, id uuid.UUID) (*model.Case, error) {
	return r.one(ctx, `SELECT `+caseCols+` FROM cases WHERE id=$1`, id)
}

// GetByTokenDigest selects a case by the digest of its access token.
func (r *CaseRepo) GetByTokenDigest(ctx context.Context, digest []byte) (*model.Case, error) {
	return r.one(ctx, `SELECT `+caseCols+` FROM cases WHERE token_digest=$1`, digest)
}

func (r *CaseRepo) one(ctx context.Context, q string, arg any) (*model.Case, error) {
	var row caseRow
	if err := r.db.Pool.QueryRow(ctx, q, arg).Scan(row.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return row.toModel()
}

// Put writes the case if the stored version equals baseVer and returns the incremented version.
func (r *CaseRepo) Put(ctx context.Context, c *model.Case, baseVer int64) (int64, error) {
	row, err := rowFromCase(c)
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE cases SET owner_id=$3, status=$4, review_status=$5, rejected_slots=$6, completion_percent=$7,
escalation_level=$8, last_escalation_confirmed_at=$9, documents=$10, notes=$11, updated_at=$12,
reopened_at=$13, expired_at=$14, reviewed_at=$15, reviewed_by=$16, review_comment=$17, approved=$18,
ver=ver+1
WHERE id=$1 AND ver=$2
RETURNING ver`
	var newVer int64
	err = r.db.Pool.QueryRow(ctx, q,
		row.ID, baseVer, row.OwnerID, row.Status, row.ReviewStatus, row.RejectedSlots, row.CompletionPercent,
		row.EscalationLevel, row.ConfirmedAt, row.Documents, row.Notes, row.UpdatedAt,
		row.ReopenedAt, row.ExpiredAt, row.ReviewedAt, row.ReviewedBy, row.ReviewComment, row.Approved,
	).Scan(&newVer)
	switch {
	case err == nil:
		return newVer, nil
	case errors.Is(err, pgx.ErrNoRows):
		var exists bool
		if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cases WHERE id=$1)`, c.ID).Scan(&exists); err != nil {
			return 0, err
		}
		if !exists {
			return 0, errs.ErrNotFound
		}
		return 0, errs.ErrVersionConflict
	default:
		return 0, err
	}
}

// Scan pages through matching cases ordered by id. No connection is held while the caller
// processes a yielded case, so the caller may write to the same table.
func (r *CaseRepo) Scan(ctx context.Context, f model.CaseFilter) iter.Seq2[*model.Case, error] {
	return func(yield func(*model.Case, error) bool) {
		var statuses []string
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		const q = `SELECT ` + caseCols + ` FROM cases
WHERE id > $1 AND ($2::text[] IS NULL OR status = ANY($2)) AND ($3 = '' OR owner_id = $3)
ORDER BY id
LIMIT $4`
		after := uuid.Nil
		for {
			page, err := r.page(ctx, q, after, statuses, f.OwnerID)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, row := range page {
				c, err := row.toModel()
				if !yield(c, err) {
					return
				}
			}
			if len(page) < r.pageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func (r *CaseRepo) page(ctx context.Context, q string, after uuid.UUID, statuses []string, owner string) ([]caseRow, error) {
	rows, err := r.db.Pool.Query(ctx, q, after, statuses, owner, r.pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]caseRow, 0, r.pageSize)
	for rows.Next() {
		var row caseRow
		if err = rows.Scan(row.dest()...); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Delete removes a case after checking its version.
func (r *CaseRepo) Delete(ctx context.Context, id uuid.UUID, baseVer int64) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT ver FROM cases WHERE id=$1 FOR UPDATE`
	const del = `DELETE FROM cases WHERE id=$1`

	var curVer int64
	if err = tx.QueryRow(ctx, sel, id).Scan(&curVer); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		return err
	}
	if curVer != baseVer {
		return errs.ErrVersionConflict
	}
	_, err = tx.Exec(ctx, del, id)
	return err
}
