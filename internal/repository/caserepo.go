// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"iter"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/model"
)

// CaseRepository provides versioned access to case records.
type CaseRepository interface {
	// Create inserts a new case at version 1.
	Create(ctx context.Context, c *model.Case) error

	// Get loads a case by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.Case, error)

	// GetByTokenDigest loads a case by the keyed digest of its access token.
	GetByTokenDigest(ctx context.Context, digest []byte) (*model.Case, error)

	// Put replaces the case if its stored version still equals baseVer and returns the new version.
	Put(ctx context.Context, c *model.Case, baseVer int64) (int64, error)

	// Scan yields cases matching the filter. A record that cannot be decoded is yielded as an
	// error and iteration continues; a failed query is yielded as an error and ends iteration.
	Scan(ctx context.Context, f model.CaseFilter) iter.Seq2[*model.Case, error]

	// Delete removes the case with base version check.
	Delete(ctx context.Context, id uuid.UUID, baseVer int64) error
}

// AuditRepository is the append-only audit log. Every implementation is an audit.Sink.
type AuditRepository interface {
	// Append stores one event.
	Append(ctx context.Context, e audit.Event) error
	// ListByCase returns the events of a case ordered by case version.
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]audit.Event, error)
}

// StaffRepository is the staff directory.
type StaffRepository interface {
	// GetByID loads a staff member.
	GetByID(ctx context.Context, id string) (*model.StaffMember, error)
	// Upsert creates or updates a staff member.
	Upsert(ctx context.Context, s *model.StaffMember) error
}
