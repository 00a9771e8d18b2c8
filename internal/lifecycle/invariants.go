package lifecycle

import (
	"errors"
	"fmt"

	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

// CheckInvariants verifies the record-level invariants that must hold after every mutation.
func CheckInvariants(c *model.Case) error {
	if c.Phase == nil {
		return errors.New("phase is not set")
	}
	var problems []error
	if want := CompletionOf(c); c.CompletionPercent != want {
		problems = append(problems, fmt.Errorf("completion %d, want %d", c.CompletionPercent, want))
	}
	switch p := c.Phase.(type) {
	case model.Submitted:
		if !IsComplete(c) {
			problems = append(problems, fmt.Errorf("submitted with missing documents %v", Missing(c)))
		}
	case model.Expired:
		if p.At.IsZero() {
			problems = append(problems, errors.New("expired without expiredAt"))
		}
	case model.Rejected:
		if len(p.Slots) == 0 {
			problems = append(problems, errors.New("rejected without slots"))
		}
		if p.Comment == "" {
			problems = append(problems, errors.New("rejected without comment"))
		}
		for _, k := range p.Slots {
			if !policy.IsRequired(k) {
				problems = append(problems, fmt.Errorf("rejected slot %q is not a required kind", k))
			}
		}
	case model.Completed:
		if c.LastReview == nil || !c.LastReview.Approved {
			problems = append(problems, errors.New("completed without approving review"))
		}
	}
	if c.EscalationLevel < model.EscalationNone || c.EscalationLevel > model.EscalationSecond {
		problems = append(problems, fmt.Errorf("escalation level %d out of range", c.EscalationLevel))
	}
	return errors.Join(problems...)
}
