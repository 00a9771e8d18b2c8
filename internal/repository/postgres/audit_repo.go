package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/model"
)

// AuditRepo implements AuditRepository using PostgreSQL.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

// Append inserts one event row.
func (r *AuditRepo) Append(ctx context.Context, e audit.Event) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	const q = `
INSERT INTO audit_events (id, case_id, case_ver, actor_id, action, ip, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.db.Pool.Exec(ctx, q, e.ID, e.CaseID, e.CaseVer, e.ActorID, string(e.Action), e.IP, meta, e.Timestamp)
	if isUniqueViolation(err) {
		return nil // redelivered event
	}
	return err
}

// ListByCase returns the events of a case in commit order.
func (r *AuditRepo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]audit.Event, error) {
	const q = `
SELECT id, case_id, case_ver, actor_id, action, ip, metadata, created_at
FROM audit_events WHERE case_id=$1
ORDER BY case_ver ASC, created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e      audit.Event
			action string
			meta   []byte
		)
		if err = rows.Scan(&e.ID, &e.CaseID, &e.CaseVer, &e.ActorID, &action, &e.IP, &meta, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Action = model.Action(action)
		if len(meta) > 0 {
			if err = json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit %s: unmarshal metadata: %w", e.ID, err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
