package lifecycle

import (
	"time"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
)

// Change describes an applied transition. A Noop change must not be persisted or audited.
type Change struct {
	Action model.Action
	Meta   map[string]any
	Noop   bool
}

// ReplacedBlob returns the blob path an upload displaced, if any.
func (ch Change) ReplacedBlob() string {
	s, _ := ch.Meta["replaced"].(string)
	return s
}

func noop() Change { return Change{Noop: true} }

// finalize stamps updatedAt and refuses to hand out a record that breaks an invariant.
func finalize(next *model.Case, ch Change, now time.Time) (*model.Case, Change, error) {
	next.UpdatedAt = now
	if err := CheckInvariants(next); err != nil {
		return nil, Change{}, errs.State(errs.ReasonInvariantViolated, "%v", err)
	}
	return next, ch, nil
}
