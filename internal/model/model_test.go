package model

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/docflow/internal/policy"
)

func TestPhase_FlattenRestoreRoundTrip(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	review := &Review{By: "owner-1", At: at, Comment: "fix ID"}

	cases := []struct {
		name  string
		phase Phase
		last  *Review
	}{
		{"open", Open{}, nil},
		{"in progress", InProgress{}, nil},
		{"submitted", Submitted{}, nil},
		{"rejected", Rejected{Slots: []DocumentKind{policy.DocIdentity}, Comment: "fix ID", At: at}, review},
		{"completed", Completed{}, &Review{By: "owner-1", At: at, Approved: true}},
		{"expired", Expired{At: at}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := FlattenPhase(tc.phase)
			got, err := RestorePhase(rec, tc.last)
			require.NoError(t, err)
			require.Equal(t, tc.phase, got)
		})
	}
}

func TestRestorePhase_RejectsIllegalCombinations(t *testing.T) {
	at := time.Now()
	bad := []PhaseRecord{
		{Status: StatusCompleted, ReviewStatus: ReviewPending},
		{Status: StatusOpen, ReviewStatus: ReviewApproved},
		{Status: StatusInProgress, ReviewStatus: ReviewRejected},
		{Status: StatusExpired, ReviewStatus: ReviewPending},
		{Status: StatusSubmitted, ReviewStatus: ReviewRejected, ExpiredAt: &at},
		{Status: "ARCHIVED", ReviewStatus: ReviewPending},
	}
	for _, rec := range bad {
		_, err := RestorePhase(rec, nil)
		require.Error(t, err, "%+v", rec)
	}
}

func TestCase_DerivedAccessorsAndClone(t *testing.T) {
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	c := &Case{
		ID:        uuid.Must(uuid.NewV4()),
		Phase:     Rejected{Slots: []DocumentKind{policy.DocIdentity}, Comment: "x", At: at},
		Documents: map[DocumentKind]Document{policy.DocIdentity: {BlobPath: "a", UploadedAt: at}},
		CreatedAt: at,
	}
	require.Equal(t, StatusInProgress, c.Status())
	require.Equal(t, ReviewRejected, c.ReviewStatus())
	require.Equal(t, []DocumentKind{policy.DocIdentity}, c.RejectedSlots())
	require.Nil(t, c.ExpiredAt())
	require.Equal(t, at, c.ClockStart())

	cl := c.Clone()
	cl.Documents[policy.DocBankStatement] = Document{BlobPath: "b"}
	cl.Phase.(Rejected).Slots[0] = policy.DocBankStatement
	require.Len(t, c.Documents, 1)
	require.Equal(t, policy.DocIdentity, c.RejectedSlots()[0])

	reopened := at.Add(200 * time.Hour)
	c.ReopenedAt = &reopened
	require.Equal(t, reopened, c.ClockStart())
}

func TestCaseFilter_Matches(t *testing.T) {
	c := &Case{OwnerID: "o1", Phase: Submitted{}}
	require.True(t, CaseFilter{}.Matches(c))
	require.True(t, CaseFilter{Statuses: []Status{StatusOpen, StatusSubmitted}}.Matches(c))
	require.False(t, CaseFilter{Statuses: []Status{StatusExpired}}.Matches(c))
	require.False(t, CaseFilter{OwnerID: "o2"}.Matches(c))
}

func TestStatusAndRoleHelpers(t *testing.T) {
	require.True(t, StatusExpired.Terminal())
	require.False(t, StatusSubmitted.Terminal())
	require.False(t, Status("ARCHIVED").Valid())
	require.True(t, Actor{Role: RoleSupervisor}.IsStaff())
	require.False(t, Actor{Role: RoleSubmitter}.IsStaff())
	require.True(t, StaffMember{Role: RoleOwner, Active: true}.CanOwnCases())
	require.False(t, StaffMember{Role: RoleOwner, Active: false}.CanOwnCases())
}
