// Package policy centralizes the fixed workflow thresholds and the required document set.
package policy

import "time"

// Escalation and SLA thresholds. They are part of the workflow contract and not runtime-configurable.
const (
	// FirstReminderAfter is measured from case creation (or reopening).
	FirstReminderAfter = 24 * time.Hour
	// SecondReminderAfter is measured from the owner's last escalation acknowledgement.
	SecondReminderAfter = 48 * time.Hour
	// SLAExpiry is measured from case creation (or reopening).
	SLAExpiry = 144 * time.Hour
)

// DocumentKind identifies one required document slot.
type DocumentKind string

// Required document kinds of the reference deployment.
const (
	DocIdentity       DocumentKind = "ID"
	DocProofOfAddress DocumentKind = "PROOF_OF_ADDRESS"
	DocBankStatement  DocumentKind = "BANK_STATEMENT"
	DocProofOfIncome  DocumentKind = "PROOF_OF_INCOME"
)

var requiredDocumentKinds = []DocumentKind{
	DocIdentity,
	DocProofOfAddress,
	DocBankStatement,
	DocProofOfIncome,
}

// RequiredDocumentKinds returns the required slots in display order.
func RequiredDocumentKinds() []DocumentKind {
	out := make([]DocumentKind, len(requiredDocumentKinds))
	copy(out, requiredDocumentKinds)
	return out
}

// IsRequired reports whether k is one of the required kinds.
func IsRequired(k DocumentKind) bool {
	for _, r := range requiredDocumentKinds {
		if r == k {
			return true
		}
	}
	return false
}
