// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/policy"
)

// Status is the externally visible case status.
type Status string

// Case statuses.
const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusSubmitted, StatusCompleted, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no actor or reminder may act on a case in this status.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusExpired }

// ReviewStatus is the review sub-state derived from the phase.
type ReviewStatus string

// Review statuses.
const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// DocumentKind identifies a required document slot.
type DocumentKind = policy.DocumentKind

// Document is the current artifact of one slot.
type Document struct {
	BlobPath    string    `json:"blob_path"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Review is the last review decision recorded on a case.
type Review struct {
	By       string
	At       time.Time
	Comment  string
	Approved bool
}

// EscalationLevel is the reminder stage: 0 none, 1 first, 2 second.
type EscalationLevel int

// Escalation levels.
const (
	EscalationNone   EscalationLevel = 0
	EscalationFirst  EscalationLevel = 1
	EscalationSecond EscalationLevel = 2
)

// Case is one document-collection workflow instance.
type Case struct {
	ID          uuid.UUID
	OwnerID     string
	TokenDigest []byte // keyed digest of the access token; the raw token is never stored
	AccessToken string // populated only on the value returned by case creation

	Phase     Phase
	Documents map[DocumentKind]Document
	// CompletionPercent is derived and recomputed on every document mutation.
	CompletionPercent int

	EscalationLevel           EscalationLevel
	LastEscalationConfirmedAt *time.Time

	LastReview *Review
	Notes      string

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ReopenedAt *time.Time

	Ver int64 // optimistic concurrency version, 1 after creation
}

// Status returns the status implied by the phase.
func (c *Case) Status() Status { return c.Phase.Status() }

// ReviewStatus returns the review status implied by the phase.
func (c *Case) ReviewStatus() ReviewStatus { return c.Phase.ReviewStatus() }

// RejectedSlots returns the slots awaiting re-upload, empty unless rejected.
func (c *Case) RejectedSlots() []DocumentKind {
	if r, ok := c.Phase.(Rejected); ok {
		return append([]DocumentKind(nil), r.Slots...)
	}
	return nil
}

// ExpiredAt returns the expiry time, nil unless expired.
func (c *Case) ExpiredAt() *time.Time {
	if e, ok := c.Phase.(Expired); ok {
		at := e.At
		return &at
	}
	return nil
}

// ClockStart is the instant SLA expiry and the first reminder are measured from.
func (c *Case) ClockStart() time.Time {
	if c.ReopenedAt != nil {
		return *c.ReopenedAt
	}
	return c.CreatedAt
}

// Clone returns a deep copy.
func (c *Case) Clone() *Case {
	out := *c
	out.TokenDigest = append([]byte(nil), c.TokenDigest...)
	out.Phase = clonePhase(c.Phase)
	out.Documents = make(map[DocumentKind]Document, len(c.Documents))
	for k, v := range c.Documents {
		out.Documents[k] = v
	}
	out.LastEscalationConfirmedAt = cloneTime(c.LastEscalationConfirmedAt)
	out.ReopenedAt = cloneTime(c.ReopenedAt)
	if c.LastReview != nil {
		r := *c.LastReview
		out.LastReview = &r
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CaseFilter narrows a scan. Empty fields match everything.
type CaseFilter struct {
	Statuses []Status
	OwnerID  string
}

// Matches reports whether c passes the filter.
func (f CaseFilter) Matches(c *Case) bool {
	if f.OwnerID != "" && c.OwnerID != f.OwnerID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	st := c.Status()
	for _, s := range f.Statuses {
		if s == st {
			return true
		}
	}
	return false
}

// NewCase is the owner's creation intent.
type NewCase struct {
	OwnerID string // optional; defaults to the creating actor
	Notes   string
}

// ReviewDecision is the owner's accept/reject input.
type ReviewDecision struct {
	Approve bool
	Comment string
	Slots   []DocumentKind
}
