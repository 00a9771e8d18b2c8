package policy

import "testing"

func TestRequiredDocumentKinds_CopyAndMembership(t *testing.T) {
	kinds := RequiredDocumentKinds()
	if len(kinds) != 4 {
		t.Fatalf("want 4 kinds, got %d", len(kinds))
	}
	kinds[0] = "MUTATED"
	if RequiredDocumentKinds()[0] != DocIdentity {
		t.Fatalf("RequiredDocumentKinds must return a copy")
	}
	if !IsRequired(DocProofOfAddress) || IsRequired("PASSPORT_PHOTO") {
		t.Fatalf("IsRequired mismatch")
	}
}

func TestThresholdOrdering(t *testing.T) {
	if !(FirstReminderAfter < SecondReminderAfter && SecondReminderAfter < SLAExpiry) {
		t.Fatalf("thresholds out of order")
	}
}
