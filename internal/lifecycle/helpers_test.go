package lifecycle

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newCase(t *testing.T) *model.Case {
	t.Helper()
	c, ch, err := New(uuid.Must(uuid.NewV4()), "owner-1", []byte("digest"), "", t0)
	require.NoError(t, err)
	require.Equal(t, model.ActionCaseCreated, ch.Action)
	return c
}

func upload(t *testing.T, c *model.Case, kind model.DocumentKind, at time.Time) *model.Case {
	t.Helper()
	next, _, err := RecordUpload(c, kind, model.Document{BlobPath: "cases/" + string(kind) + "/" + at.Format(time.RFC3339Nano)}, at)
	require.NoError(t, err)
	return next
}

func uploadAll(t *testing.T, c *model.Case, at time.Time) *model.Case {
	t.Helper()
	for _, k := range policy.RequiredDocumentKinds() {
		c = upload(t, c, k, at)
	}
	return c
}

func submitted(t *testing.T) *model.Case {
	t.Helper()
	c := uploadAll(t, newCase(t), t0.Add(time.Hour))
	c, _, err := Submit(c, t0.Add(2*time.Hour))
	require.NoError(t, err)
	return c
}

func requireReason(t *testing.T, err error, want errs.Reason) {
	t.Helper()
	require.ErrorIs(t, err, errs.ErrInvalidState)
	var se *errs.StateError
	require.ErrorAs(t, err, &se)
	require.Equal(t, want, se.Reason)
}
