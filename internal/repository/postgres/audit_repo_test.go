package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docflow/internal/audit"
	"github.com/and161185/docflow/internal/model"
)

func TestAuditRepo_AppendAndList(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuditRepo(db)
	ctx := context.Background()

	ts := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	e := audit.Event{
		ID: uuid.Must(uuid.NewV4()), CaseID: uuid.Must(uuid.NewV4()), CaseVer: 3,
		ActorID: "owner-1", Action: model.ActionCaseRejected, IP: "10.0.0.9",
		Metadata: map[string]any{"slots": []string{"ID"}}, Timestamp: ts,
	}

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs(e.ID, e.CaseID, int64(3), "owner-1", "CASE_REJECTED", "10.0.0.9", []byte(`{"slots":["ID"]}`), ts).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Append(ctx, e))

	mock.ExpectExec(`INSERT INTO audit_events`).
		WithArgs(anyArgs(8)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.NoError(t, r.Append(ctx, e))

	mock.ExpectQuery(`SELECT (.+) FROM audit_events WHERE case_id=\$1 ORDER BY case_ver ASC`).
		WithArgs(e.CaseID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "case_id", "case_ver", "actor_id", "action", "ip", "metadata", "created_at"}).
			AddRow(e.ID, e.CaseID, int64(3), "owner-1", "CASE_REJECTED", "10.0.0.9", []byte(`{"slots":["ID"]}`), ts))
	got, err := r.ListByCase(ctx, e.CaseID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.ActionCaseRejected, got[0].Action)
	require.Equal(t, []any{"ID"}, got[0].Metadata["slots"])
	require.NoError(t, mock.ExpectationsWereMet())
}
