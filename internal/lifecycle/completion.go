package lifecycle

import (
	"time"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
)

// Percent returns round-half-up(100 * filled / total).
func Percent(filled, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*filled + total) / (2 * total)
}

// Occupied counts required slots holding a current artifact.
func Occupied(c *model.Case) int {
	n := 0
	for _, k := range policy.RequiredDocumentKinds() {
		if d, ok := c.Documents[k]; ok && d.BlobPath != "" {
			n++
		}
	}
	return n
}

// Missing lists required slots without a current artifact, in policy order.
func Missing(c *model.Case) []model.DocumentKind {
	var out []model.DocumentKind
	for _, k := range policy.RequiredDocumentKinds() {
		if d, ok := c.Documents[k]; !ok || d.BlobPath == "" {
			out = append(out, k)
		}
	}
	return out
}

// IsComplete reports whether every required slot is occupied.
func IsComplete(c *model.Case) bool {
	return len(Missing(c)) == 0
}

// CompletionOf computes the completion percentage of c from its slots.
func CompletionOf(c *model.Case) int {
	return Percent(Occupied(c), len(policy.RequiredDocumentKinds()))
}

// RecordUpload places doc into the slot of kind, replacing any prior artifact.
// Deleting the replaced blob is left to the caller; its path is reported in Change.Meta["replaced"].
func RecordUpload(c *model.Case, kind model.DocumentKind, doc model.Document, now time.Time) (*model.Case, Change, error) {
	if !policy.IsRequired(kind) {
		return nil, Change{}, errs.State(errs.ReasonUnknownDocumentKind, "%q", kind)
	}
	switch c.Phase.(type) {
	case model.Expired:
		return nil, Change{}, errs.State(errs.ReasonAlreadyExpired, "upload rejected")
	case model.Completed:
		return nil, Change{}, errs.State(errs.ReasonAlreadyApproved, "upload rejected")
	}

	next := c.Clone()
	prior, hadPrior := next.Documents[kind]
	doc.UploadedAt = now
	next.Documents[kind] = doc
	next.CompletionPercent = CompletionOf(next)

	ch := Change{
		Action: model.ActionDocumentUploaded,
		Meta: map[string]any{
			"kind":       string(kind),
			"blob_path":  doc.BlobPath,
			"completion": next.CompletionPercent,
		},
	}
	if hadPrior && prior.BlobPath != "" && prior.BlobPath != doc.BlobPath {
		ch.Meta["replaced"] = prior.BlobPath
	}
	return finalize(next, ch, now)
}
