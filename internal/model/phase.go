package model

import (
	"fmt"
	"time"
)

// Phase is the lifecycle position of a case. Status and review status are both derived from it,
// so combinations such as COMPLETED with a pending review cannot be represented.
type Phase interface {
	Status() Status
	ReviewStatus() ReviewStatus
	isPhase()
}

// Open is a fresh or reopened case.
type Open struct{}

// InProgress is a case the owner has started working on.
type InProgress struct{}

// Submitted is a complete case awaiting review.
type Submitted struct{}

// Rejected is an in-progress case whose listed slots must be re-uploaded after At.
type Rejected struct {
	Slots   []DocumentKind
	Comment string
	At      time.Time
}

// Completed is an approved case.
type Completed struct{}

// Expired is a case that passed the SLA before completion.
type Expired struct {
	At time.Time
}

func (Open) Status() Status       { return StatusOpen }
func (InProgress) Status() Status { return StatusInProgress }
func (Submitted) Status() Status  { return StatusSubmitted }
func (Rejected) Status() Status   { return StatusInProgress }
func (Completed) Status() Status  { return StatusCompleted }
func (Expired) Status() Status    { return StatusExpired }

func (Open) ReviewStatus() ReviewStatus       { return ReviewPending }
func (InProgress) ReviewStatus() ReviewStatus { return ReviewPending }
func (Submitted) ReviewStatus() ReviewStatus  { return ReviewPending }
func (Rejected) ReviewStatus() ReviewStatus   { return ReviewRejected }
func (Completed) ReviewStatus() ReviewStatus  { return ReviewApproved }
func (Expired) ReviewStatus() ReviewStatus    { return ReviewPending }

func (Open) isPhase()       {}
func (InProgress) isPhase() {}
func (Submitted) isPhase()  {}
func (Rejected) isPhase()   {}
func (Completed) isPhase()  {}
func (Expired) isPhase()    {}

func clonePhase(p Phase) Phase {
	if r, ok := p.(Rejected); ok {
		r.Slots = append([]DocumentKind(nil), r.Slots...)
		return r
	}
	return p
}

// PhaseRecord is the flat, storable form of a phase.
type PhaseRecord struct {
	Status        Status
	ReviewStatus  ReviewStatus
	RejectedSlots []DocumentKind
	ExpiredAt     *time.Time
}

// FlattenPhase converts a phase to its storable form.
func FlattenPhase(p Phase) PhaseRecord {
	rec := PhaseRecord{Status: p.Status(), ReviewStatus: p.ReviewStatus()}
	switch v := p.(type) {
	case Rejected:
		rec.RejectedSlots = append([]DocumentKind(nil), v.Slots...)
	case Expired:
		at := v.At
		rec.ExpiredAt = &at
	}
	return rec
}

// RestorePhase rebuilds a phase from storage. The rejection comment and time come from the
// last review. Combinations that no phase produces are reported as errors.
func RestorePhase(rec PhaseRecord, last *Review) (Phase, error) {
	switch rec.Status {
	case StatusOpen:
		if rec.ReviewStatus == ReviewPending {
			return Open{}, nil
		}
	case StatusInProgress:
		switch rec.ReviewStatus {
		case ReviewPending:
			return InProgress{}, nil
		case ReviewRejected:
			if len(rec.RejectedSlots) == 0 || last == nil || last.Approved {
				return nil, fmt.Errorf("restore phase: rejected record without slots or review")
			}
			return Rejected{
				Slots:   append([]DocumentKind(nil), rec.RejectedSlots...),
				Comment: last.Comment,
				At:      last.At,
			}, nil
		}
	case StatusSubmitted:
		if rec.ReviewStatus == ReviewPending {
			return Submitted{}, nil
		}
	case StatusCompleted:
		if rec.ReviewStatus == ReviewApproved {
			return Completed{}, nil
		}
	case StatusExpired:
		if rec.ExpiredAt != nil && rec.ReviewStatus == ReviewPending {
			return Expired{At: *rec.ExpiredAt}, nil
		}
	}
	return nil, fmt.Errorf("restore phase: illegal combination status=%s review=%s", rec.Status, rec.ReviewStatus)
}
