package lifecycle

import (
	"time"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

// remindable reports whether the reminder pass looks at a case in this status.
func remindable(s model.Status) bool {
	return s == model.StatusOpen || s == model.StatusInProgress || s == model.StatusSubmitted
}

// Escalate applies the reminder rule once. It never raises by more than one level and
// returns a Noop change when nothing is due, which keeps repeated passes idempotent.
func Escalate(c *model.Case, now time.Time) (*model.Case, Change, error) {
	if !remindable(c.Status()) {
		return c, noop(), nil
	}
	var to model.EscalationLevel
	switch c.EscalationLevel {
	case model.EscalationNone:
		if now.Sub(c.ClockStart()) < policy.FirstReminderAfter {
			return c, noop(), nil
		}
		to = model.EscalationFirst
	case model.EscalationFirst:
		if c.LastEscalationConfirmedAt == nil || now.Sub(*c.LastEscalationConfirmedAt) < policy.SecondReminderAfter {
			return c, noop(), nil
		}
		to = model.EscalationSecond
	default:
		return c, noop(), nil
	}
	next := c.Clone()
	next.EscalationLevel = to
	return finalize(next, Change{
		Action: model.ActionEscalationRaised,
		Meta:   map[string]any{"from": int(c.EscalationLevel), "to": int(to)},
	}, now)
}

// ConfirmEscalation is the owner's acknowledgement: level back to 0, acknowledgement time recorded.
func ConfirmEscalation(c *model.Case, now time.Time) (*model.Case, Change, error) {
	switch c.Phase.(type) {
	case model.Expired:
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "")
	case model.Completed:
		return nil, Change{}, errs.State(errs.ReasonAlreadyApproved, "")
	}
	if c.EscalationLevel == model.EscalationNone {
		return nil, Change{}, errs.State(errs.ReasonNotEscalated, "")
	}
	next := c.Clone()
	next.EscalationLevel = model.EscalationNone
	at := now
	next.LastEscalationConfirmedAt = &at
	return finalize(next, Change{
		Action: model.ActionEscalationConfirmed,
		Meta:   map[string]any{"from": int(c.EscalationLevel)},
	}, now)
}
