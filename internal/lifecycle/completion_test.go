package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

func TestPercent_RoundHalfUp(t *testing.T) {
	cases := []struct{ filled, total, want int }{
		{0, 4, 0}, {1, 4, 25}, {2, 4, 50}, {3, 4, 75}, {4, 4, 100},
		{1, 3, 33}, {2, 3, 67}, {1, 8, 13}, {1, 200, 1}, {1, 201, 0},
		{0, 0, 0}, {3, -1, 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Percent(tc.filled, tc.total), "%d/%d", tc.filled, tc.total)
	}
}

func TestRecordUpload_ProgressesCompletion(t *testing.T) {
	c := newCase(t)
	require.Equal(t, 0, c.CompletionPercent)
	require.False(t, IsComplete(c))

	for i, k := range policy.RequiredDocumentKinds() {
		var ch Change
		var err error
		c, ch, err = RecordUpload(c, k, model.Document{BlobPath: "p/" + string(k)}, t0.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, model.ActionDocumentUploaded, ch.Action)
		require.Equal(t, 25*(i+1), c.CompletionPercent)
	}
	require.True(t, IsComplete(c))
	require.Empty(t, Missing(c))
	require.Equal(t, model.StatusOpen, c.Status())
}

func TestRecordUpload_ReplaceReportsPriorBlob(t *testing.T) {
	c := upload(t, newCase(t), policy.DocIdentity, t0.Add(time.Minute))
	prior := c.Documents[policy.DocIdentity].BlobPath

	next, ch, err := RecordUpload(c, policy.DocIdentity, model.Document{BlobPath: "new"}, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, prior, ch.ReplacedBlob())
	require.Equal(t, "new", next.Documents[policy.DocIdentity].BlobPath)
	require.Equal(t, t0.Add(2*time.Minute), next.Documents[policy.DocIdentity].UploadedAt)
	require.Equal(t, 25, next.CompletionPercent)
	// input untouched
	require.Equal(t, prior, c.Documents[policy.DocIdentity].BlobPath)
}

func TestRecordUpload_Guards(t *testing.T) {
	_, _, err := RecordUpload(newCase(t), "SELFIE", model.Document{BlobPath: "x"}, t0)
	requireReason(t, err, errs.ReasonUnknownDocumentKind)

	done, _, err := Review(submitted(t), "owner-1", model.ReviewDecision{Approve: true}, t0.Add(3*time.Hour))
	require.NoError(t, err)
	_, _, err = RecordUpload(done, policy.DocIdentity, model.Document{BlobPath: "x"}, t0.Add(4*time.Hour))
	requireReason(t, err, errs.ReasonAlreadyApproved)

	expired, _, err := Expire(newCase(t), t0.Add(policy.SLAExpiry))
	require.NoError(t, err)
	_, _, err = RecordUpload(expired, policy.DocIdentity, model.Document{BlobPath: "x"}, t0.Add(policy.SLAExpiry+time.Hour))
	requireReason(t, err, errs.ReasonAlreadyExpired)
}
