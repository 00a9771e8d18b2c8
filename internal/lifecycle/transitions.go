package lifecycle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

// New builds the initial record of a case: OPEN, review pending, no documents, no escalation.
func New(id uuid.UUID, ownerID string, tokenDigest []byte, notes string, now time.Time) (*model.Case, Change, error) {
	if id == uuid.Nil || ownerID == "" || len(tokenDigest) == 0 {
		return nil, Change{}, fmt.Errorf("%w: id, owner and token digest are required", errs.ErrBadRequest)
	}
	c := &model.Case{
		ID:          id,
		OwnerID:     ownerID,
		TokenDigest: append([]byte(nil), tokenDigest...),
		Phase:       model.Open{},
		Documents:   map[model.DocumentKind]model.Document{},
		Notes:       notes,
		CreatedAt:   now,
	}
	return finalize(c, Change{Action: model.ActionCaseCreated, Meta: map[string]any{"owner_id": ownerID}}, now)
}

// Submit moves a complete OPEN or IN_PROGRESS case to SUBMITTED. After a rejection every
// rejected slot must hold an artifact uploaded strictly after the rejection time.
func Submit(c *model.Case, now time.Time) (*model.Case, Change, error) {
	from := c.Status()
	switch p := c.Phase.(type) {
	case model.Expired:
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "cannot submit")
	case model.Completed:
		return nil, Change{}, errs.State(errs.ReasonAlreadyApproved, "cannot submit")
	case model.Submitted:
		return nil, Change{}, errs.State(errs.ReasonAlreadySubmitted, "")
	case model.Rejected:
		if missing := Missing(c); len(missing) > 0 {
			return nil, Change{}, errs.State(errs.ReasonIncompleteDocuments, "missing %s", joinKinds(missing))
		}
		if stale := staleSlots(c, p); len(stale) > 0 {
			return nil, Change{}, errs.State(errs.ReasonIncompleteDocuments, "re-upload required for %s", joinKinds(stale))
		}
	default:
		if missing := Missing(c); len(missing) > 0 {
			return nil, Change{}, errs.State(errs.ReasonIncompleteDocuments, "missing %s", joinKinds(missing))
		}
	}

	_, resubmission := c.Phase.(model.Rejected)
	next := c.Clone()
	next.Phase = model.Submitted{}
	next.CompletionPercent = CompletionOf(next)
	return finalize(next, Change{
		Action: model.ActionCaseSubmitted,
		Meta:   map[string]any{"from": string(from), "resubmission": resubmission},
	}, now)
}

// staleSlots returns rejected slots not re-uploaded after the rejection.
func staleSlots(c *model.Case, r model.Rejected) []model.DocumentKind {
	var out []model.DocumentKind
	for _, k := range r.Slots {
		d, ok := c.Documents[k]
		if !ok || d.BlobPath == "" || !d.UploadedAt.After(r.At) {
			out = append(out, k)
		}
	}
	return out
}

// Review applies the owner's decision to a SUBMITTED case.
func Review(c *model.Case, reviewer string, d model.ReviewDecision, now time.Time) (*model.Case, Change, error) {
	switch c.Phase.(type) {
	case model.Submitted:
	case model.Completed:
		return nil, Change{}, errs.State(errs.ReasonAlreadyApproved, "")
	case model.Expired:
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "cannot review")
	default:
		return nil, Change{}, errs.State(errs.ReasonNotSubmitted, "status %s", c.Status())
	}

	comment := strings.TrimSpace(d.Comment)
	next := c.Clone()
	if d.Approve {
		next.Phase = model.Completed{}
		next.LastReview = &model.Review{By: reviewer, At: now, Comment: comment, Approved: true}
		return finalize(next, Change{Action: model.ActionCaseApproved, Meta: map[string]any{"reviewer": reviewer}}, now)
	}

	if comment == "" {
		return nil, Change{}, errs.State(errs.ReasonCommentRequired, "")
	}
	slots, err := normalizeSlots(d.Slots)
	if err != nil {
		return nil, Change{}, err
	}
	next.Phase = model.Rejected{Slots: slots, Comment: comment, At: now}
	next.LastReview = &model.Review{By: reviewer, At: now, Comment: comment}
	return finalize(next, Change{
		Action: model.ActionCaseRejected,
		Meta:   map[string]any{"reviewer": reviewer, "slots": kindStrings(slots)},
	}, now)
}

// normalizeSlots validates, dedupes and orders rejected slots in policy order.
func normalizeSlots(in []model.DocumentKind) ([]model.DocumentKind, error) {
	if len(in) == 0 {
		return nil, errs.State(errs.ReasonNoSlotsSelected, "")
	}
	seen := make(map[model.DocumentKind]bool, len(in))
	for _, k := range in {
		if !policy.IsRequired(k) {
			return nil, errs.State(errs.ReasonUnknownDocumentKind, "%q", k)
		}
		seen[k] = true
	}
	order := policy.RequiredDocumentKinds()
	out := make([]model.DocumentKind, 0, len(seen))
	for _, k := range order {
		if seen[k] {
			out = append(out, k)
		}
	}
	return out, nil
}

// SetStatus is the owner's manual status edit.
func SetStatus(c *model.Case, actorID string, target model.Status, now time.Time) (*model.Case, Change, error) {
	if !target.Valid() {
		return nil, Change{}, fmt.Errorf("%w: unknown status %q", errs.ErrBadRequest, target)
	}
	if target == model.StatusExpired {
		return nil, Change{}, errs.State(errs.ReasonManualExpiry, "")
	}
	switch c.Phase.(type) {
	case model.Expired:
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "cannot transition expired case directly")
	case model.Completed:
		return nil, Change{}, errs.State(errs.ReasonAlreadyApproved, "")
	}
	from := c.Status()
	if target == from {
		return c, noop(), nil
	}
	// A rejection is only cleared by resubmitting the named slots.
	if r, ok := c.Phase.(model.Rejected); ok && target == model.StatusOpen {
		return nil, Change{}, errs.State(errs.ReasonRejectionPending, "re-upload required for %s", joinKinds(r.Slots))
	}

	var (
		next *model.Case
		ch   Change
		err  error
	)
	switch target {
	case model.StatusOpen, model.StatusInProgress:
		next = c.Clone()
		if target == model.StatusOpen {
			next.Phase = model.Open{}
		} else {
			next.Phase = model.InProgress{}
		}
		next, ch, err = finalize(next, Change{Action: model.ActionStatusChanged, Meta: map[string]any{}}, now)
	case model.StatusSubmitted:
		next, ch, err = Submit(c, now)
	case model.StatusCompleted:
		next, ch, err = Review(c, actorID, model.ReviewDecision{Approve: true}, now)
	}
	if err != nil {
		return nil, Change{}, err
	}
	ch.Meta["from"] = string(from)
	ch.Meta["to"] = string(target)
	ch.Meta["via"] = "status_edit"
	return next, ch, nil
}

// ExpiryDue reports whether the SLA has elapsed for a case that can still expire.
func ExpiryDue(c *model.Case, now time.Time) bool {
	switch c.Phase.(type) {
	case model.Expired, model.Completed:
		return false
	}
	return now.Sub(c.ClockStart()) >= policy.SLAExpiry
}

// Expire is the sweeper transition to EXPIRED.
func Expire(c *model.Case, now time.Time) (*model.Case, Change, error) {
	switch c.Phase.(type) {
	case model.Expired:
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "")
	case model.Completed:
		return nil, Change{}, errs.State(errs.ReasonAlreadyApproved, "completed cases never expire")
	}
	age := now.Sub(c.ClockStart())
	if age < policy.SLAExpiry {
		return nil, Change{}, errs.State(errs.ReasonNotExpired, "sla not reached, age %s", age)
	}
	from := c.Status()
	next := c.Clone()
	next.Phase = model.Expired{At: now}
	return finalize(next, Change{
		Action: model.ActionCaseExpired,
		Meta:   map[string]any{"from": string(from), "age_hours": int(age.Hours())},
	}, now)
}

// Reopen moves an EXPIRED case back to OPEN, clears escalation and restarts the time windows.
func Reopen(c *model.Case, now time.Time) (*model.Case, Change, error) {
	if _, ok := c.Phase.(model.Expired); !ok {
		return nil, Change{}, errs.State(errs.ReasonNotExpired, "status %s", c.Status())
	}
	next := c.Clone()
	next.Phase = model.Open{}
	next.EscalationLevel = model.EscalationNone
	next.LastEscalationConfirmedAt = nil
	reopened := now
	next.ReopenedAt = &reopened
	return finalize(next, Change{Action: model.ActionCaseReopened, Meta: map[string]any{}}, now)
}

// Reassign hands the case to another owner. The caller validates the new owner.
func Reassign(c *model.Case, newOwnerID string, now time.Time) (*model.Case, Change, error) {
	if newOwnerID == "" {
		return nil, Change{}, fmt.Errorf("%w: empty owner id", errs.ErrBadRequest)
	}
	if _, ok := c.Phase.(model.Expired); ok {
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "cannot reassign")
	}
	if newOwnerID == c.OwnerID {
		return c, noop(), nil
	}
	next := c.Clone()
	next.OwnerID = newOwnerID
	return finalize(next, Change{
		Action: model.ActionCaseReassigned,
		Meta:   map[string]any{"from": c.OwnerID, "to": newOwnerID},
	}, now)
}

// UpdateNotes replaces the owner notes. Notes have no workflow effect.
func UpdateNotes(c *model.Case, notes string, now time.Time) (*model.Case, Change, error) {
	if notes == c.Notes {
		return c, noop(), nil
	}
	next := c.Clone()
	next.Notes = notes
	return finalize(next, Change{Action: model.ActionNotesUpdated, Meta: map[string]any{"length": len(notes)}}, now)
}

func joinKinds(ks []model.DocumentKind) string {
	return strings.Join(kindStrings(ks), ", ")
}

func kindStrings(ks []model.DocumentKind) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = string(k)
	}
	sort.Strings(out)
	return out
}
