// Package convert maps domain values to and from the google.protobuf.Struct payloads of the gRPC API.
package convert

import (
	"sort"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/docflow/internal/lifecycle"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/policy"
	"github.com/and161185/docflow/internal/service"
)

// --- helpers ---

func ts(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func tsPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return ts(*t)
}

func kinds(ks []model.DocumentKind) []any {
	out := make([]any, 0, len(ks))
	for _, k := range ks {
		out = append(out, string(k))
	}
	return out
}

func documents(c *model.Case) map[string]any {
	keys := make([]string, 0, len(c.Documents))
	for k := range c.Documents {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		d := c.Documents[model.DocumentKind(k)]
		out[k] = map[string]any{
			"content_type": d.ContentType,
			"size":         d.Size,
			"uploaded_at":  ts(d.UploadedAt),
		}
	}
	return out
}

// --- server -> client ---

// CaseMap is the owner view of a case.
func CaseMap(c *model.Case) map[string]any {
	m := map[string]any{
		"id":                           c.ID.String(),
		"owner_id":                     c.OwnerID,
		"status":                       string(c.Status()),
		"review_status":                string(c.ReviewStatus()),
		"rejected_slots":               kinds(c.RejectedSlots()),
		"missing_documents":            kinds(lifecycle.Missing(c)),
		"completion_percent":           c.CompletionPercent,
		"documents":                    documents(c),
		"escalation_level":             int(c.EscalationLevel),
		"last_escalation_confirmed_at": tsPtr(c.LastEscalationConfirmedAt),
		"notes":                        c.Notes,
		"created_at":                   ts(c.CreatedAt),
		"updated_at":                   ts(c.UpdatedAt),
		"reopened_at":                  tsPtr(c.ReopenedAt),
		"expired_at":                   tsPtr(c.ExpiredAt()),
		"ver":                          c.Ver,
	}
	if r := c.LastReview; r != nil {
		m["last_review"] = map[string]any{
			"by":       r.By,
			"at":       ts(r.At),
			"comment":  r.Comment,
			"approved": r.Approved,
		}
	}
	if c.AccessToken != "" {
		m["access_token"] = c.AccessToken
	}
	return m
}

// ToStructCase encodes the owner view of a case.
func ToStructCase(c *model.Case) (*structpb.Struct, error) {
	return structpb.NewStruct(CaseMap(c))
}

// ToStructCases wraps a list of cases as {"cases": [...]}.
func ToStructCases(cs []*model.Case) (*structpb.Struct, error) {
	list := make([]any, 0, len(cs))
	for _, c := range cs {
		list = append(list, CaseMap(c))
	}
	return structpb.NewStruct(map[string]any{"cases": list})
}

// ToStructSubmitterView encodes what the token holder may see. Owner identity, notes,
// escalation data and the reviewer are left out.
func ToStructSubmitterView(c *model.Case) (*structpb.Struct, error) {
	m := map[string]any{
		"id":                 c.ID.String(),
		"status":             string(c.Status()),
		"review_status":      string(c.ReviewStatus()),
		"rejected_slots":     kinds(c.RejectedSlots()),
		"missing_documents":  kinds(lifecycle.Missing(c)),
		"required_documents": kinds(policy.RequiredDocumentKinds()),
		"completion_percent": c.CompletionPercent,
		"documents":          documents(c),
	}
	if r, ok := c.Phase.(model.Rejected); ok {
		m["review_comment"] = r.Comment
	}
	return structpb.NewStruct(m)
}

// ToStructReport encodes a sweeper pass report.
func ToStructReport(r service.Report) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"pass":       r.Pass,
		"started_at": ts(r.StartedAt),
		"scanned":    r.Scanned,
		"changed":    r.Changed,
		"unchanged":  r.Unchanged,
		"failed":     r.Failed,
	})
}
