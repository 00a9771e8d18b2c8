package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
)

// StaffRepo implements StaffRepository using PostgreSQL.
type StaffRepo struct{ db *DB }

// NewStaffRepo constructs a staff repository.
func NewStaffRepo(db *DB) *StaffRepo { return &StaffRepo{db: db} }

// GetByID selects a staff member by ID.
func (r *StaffRepo) GetByID(ctx context.Context, id string) (*model.StaffMember, error) {
	const q = `SELECT id, display_name, role, active, created_at FROM staff WHERE id=$1`
	var (
		s    model.StaffMember
		role string
	)
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&s.ID, &s.DisplayName, &role, &s.Active, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	s.Role = model.Role(role)
	return &s, nil
}

// Upsert inserts a staff member or updates name, role and active flag.
func (r *StaffRepo) Upsert(ctx context.Context, s *model.StaffMember) error {
	const q = `
INSERT INTO staff (id, display_name, role, active)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET display_name=EXCLUDED.display_name, role=EXCLUDED.role, active=EXCLUDED.active`
	_, err := r.db.Pool.Exec(ctx, q, s.ID, s.DisplayName, string(s.Role), s.Active)
	return err
}
