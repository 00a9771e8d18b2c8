package errs

import "fmt"

// Reason is a machine-readable code attached to a failed lifecycle guard.
type Reason string

// Guard failure reasons.
const (
	ReasonIncompleteDocuments Reason = "INCOMPLETE_DOCUMENTS"
	ReasonAlreadyApproved     Reason = "ALREADY_APPROVED"
	ReasonAlreadySubmitted    Reason = "ALREADY_SUBMITTED"
	ReasonNotSubmitted        Reason = "NOT_SUBMITTED"
	ReasonCommentRequired     Reason = "COMMENT_REQUIRED"
	ReasonNoSlotsSelected     Reason = "NO_SLOTS_SELECTED"
	ReasonUnknownDocumentKind Reason = "UNKNOWN_DOCUMENT_KIND"
	ReasonNotExpired          Reason = "NOT_EXPIRED"
	ReasonAlreadyExpired      Reason = "ALREADY_EXPIRED"
	ReasonManualExpiry        Reason = "MANUAL_EXPIRY"
	ReasonNotEscalated        Reason = "NOT_ESCALATED"
	ReasonRejectionPending    Reason = "REJECTION_PENDING"
	ReasonInvariantViolated   Reason = "INVARIANT_VIOLATED"
)

var userMessages = map[Reason]string{
	ReasonIncompleteDocuments: "upload missing documents first",
	ReasonAlreadyApproved:     "this case is closed",
	ReasonAlreadySubmitted:    "documents were already submitted",
	ReasonNotSubmitted:        "documents have not been submitted yet",
	ReasonCommentRequired:     "a comment is required to reject documents",
	ReasonNoSlotsSelected:     "select at least one document to reject",
	ReasonUnknownDocumentKind: "unknown document type",
	ReasonNotExpired:          "only expired cases can be reopened",
	ReasonAlreadyExpired:      "this case is closed",
	ReasonManualExpiry:        "cases cannot be expired manually",
	ReasonNotEscalated:        "there is no escalation to confirm",
	ReasonRejectionPending:    "re-upload the rejected documents first",
	ReasonInvariantViolated:   "the request could not be applied",
}

// StateError is a failed guard. errors.Is(err, ErrInvalidState) holds for every StateError.
type StateError struct {
	Reason Reason
	Detail string
}

// State builds a StateError with an optional formatted detail.
func State(reason Reason, format string, args ...any) *StateError {
	return &StateError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (e *StateError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("invalid state: %s", e.Reason)
	}
	return fmt.Sprintf("invalid state: %s: %s", e.Reason, e.Detail)
}

// Is makes StateError match ErrInvalidState.
func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// UserMessage returns the sentence shown to submitters and owners.
func (e *StateError) UserMessage() string {
	if m, ok := userMessages[e.Reason]; ok {
		return m
	}
	return "the request could not be applied"
}
