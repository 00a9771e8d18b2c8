package convert

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/service"
)

// Review decisions on the wire.
const (
	DecisionApprove = "APPROVE"
	DecisionReject  = "REJECT"
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errs.ErrBadRequest, fmt.Sprintf(format, args...))
}

// String returns the named string field, "" when absent.
func String(s *structpb.Struct, name string) (string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return "", nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return "", nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return "", badRequest("%s must be a string", name)
	}
	return sv.StringValue, nil
}

// RequiredString is String that rejects a missing or blank value.
func RequiredString(s *structpb.Struct, name string) (string, error) {
	v, err := String(s, name)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(v) == "" {
		return "", badRequest("%s is required", name)
	}
	return v, nil
}

// Strings reads a list of strings. A single string is accepted as a one-element list.
func Strings(s *structpb.Struct, name string) ([]string, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_StringValue:
		return []string{k.StringValue}, nil
	case *structpb.Value_ListValue:
		out := make([]string, 0, len(k.ListValue.GetValues()))
		for i, e := range k.ListValue.GetValues() {
			sv, ok := e.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, badRequest("%s[%d] must be a string", name, i)
			}
			out = append(out, sv.StringValue)
		}
		return out, nil
	default:
		return nil, badRequest("%s must be a string list", name)
	}
}

// ID reads the case id field.
func ID(s *structpb.Struct) (uuid.UUID, error) {
	raw, err := RequiredString(s, "id")
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil, badRequest("invalid id: %v", err)
	}
	return id, nil
}

// NewCase reads a CreateCase request.
func NewCase(s *structpb.Struct) (model.NewCase, error) {
	owner, err := String(s, "owner_id")
	if err != nil {
		return model.NewCase{}, err
	}
	notes, err := String(s, "notes")
	if err != nil {
		return model.NewCase{}, err
	}
	return model.NewCase{OwnerID: owner, Notes: notes}, nil
}

// Statuses reads the optional status filter of ListCases.
func Statuses(s *structpb.Struct) ([]model.Status, error) {
	raw, err := Strings(s, "status")
	if err != nil {
		return nil, err
	}
	out := make([]model.Status, 0, len(raw))
	for _, r := range raw {
		out = append(out, model.Status(strings.ToUpper(strings.TrimSpace(r))))
	}
	return out, nil
}

// Status reads the target of SetStatus.
func Status(s *structpb.Struct) (model.Status, error) {
	raw, err := RequiredString(s, "status")
	if err != nil {
		return "", err
	}
	return model.Status(strings.ToUpper(strings.TrimSpace(raw))), nil
}

// ReviewDecision reads a ReviewCase request.
func ReviewDecision(s *structpb.Struct) (model.ReviewDecision, error) {
	decision, err := RequiredString(s, "decision")
	if err != nil {
		return model.ReviewDecision{}, err
	}
	comment, err := String(s, "comment")
	if err != nil {
		return model.ReviewDecision{}, err
	}
	slots, err := Strings(s, "slots")
	if err != nil {
		return model.ReviewDecision{}, err
	}

	var d model.ReviewDecision
	switch strings.ToUpper(decision) {
	case DecisionApprove:
		d.Approve = true
	case DecisionReject:
	default:
		return model.ReviewDecision{}, badRequest("decision must be %s or %s", DecisionApprove, DecisionReject)
	}
	d.Comment = comment
	for _, sl := range slots {
		d.Slots = append(d.Slots, model.DocumentKind(sl))
	}
	return d, nil
}

// Upload reads an UploadDocument request. content is standard base64.
func Upload(s *structpb.Struct) (service.Upload, error) {
	kind, err := RequiredString(s, "kind")
	if err != nil {
		return service.Upload{}, err
	}
	ct, err := String(s, "content_type")
	if err != nil {
		return service.Upload{}, err
	}
	enc, err := RequiredString(s, "content")
	if err != nil {
		return service.Upload{}, err
	}
	content, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return service.Upload{}, badRequest("content is not base64: %v", err)
	}
	return service.Upload{Kind: model.DocumentKind(kind), ContentType: ct, Content: content}, nil
}
