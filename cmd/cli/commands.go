package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/docflow/internal/convert"
	"github.com/and161185/docflow/internal/identity"
	"github.com/and161185/docflow/internal/model"
	grpcserver "github.com/and161185/docflow/internal/server/grpc"
)

var errUnknownCommand = errors.New("unknown command")

// call is one RPC prepared from command-line arguments.
type call struct {
	method    string
	req       map[string]any
	submitter bool
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func needID(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("-id is required")
	}
	if _, err := uuid.FromString(raw); err != nil {
		return "", fmt.Errorf("bad -id: %w", err)
	}
	return raw, nil
}

// splitList turns "a, b,,c" into ["a","b","c"] as []any for structpb.
func splitList(raw string) []any {
	var out []any
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

// idOnly builds calls whose only argument is the case id.
func idOnly(name, method string, args []string) (call, error) {
	fs := newFlagSet(name)
	id := fs.String("id", "", "case id")
	if err := fs.Parse(args); err != nil {
		return call{}, err
	}
	v, err := needID(*id)
	if err != nil {
		return call{}, err
	}
	return call{method: method, req: map[string]any{"id": v}}, nil
}

// buildCall maps a subcommand onto a method and request payload.
func buildCall(cmd string, args []string) (call, error) {
	switch cmd {
	case "create":
		fs := newFlagSet(cmd)
		owner := fs.String("owner", "", "owner staff id (supervisors only)")
		notes := fs.String("notes", "", "internal notes")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		req := map[string]any{}
		if *owner != "" {
			req["owner_id"] = *owner
		}
		if *notes != "" {
			req["notes"] = *notes
		}
		return call{method: grpcserver.MethodCreateCase, req: req}, nil

	case "get":
		return idOnly(cmd, grpcserver.MethodGetCase, args)

	case "list":
		fs := newFlagSet(cmd)
		st := fs.String("status", "", "comma separated statuses")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		req := map[string]any{}
		if l := splitList(*st); len(l) > 0 {
			req["status"] = l
		}
		return call{method: grpcserver.MethodListCases, req: req}, nil

	case "notes":
		fs := newFlagSet(cmd)
		id := fs.String("id", "", "case id")
		text := fs.String("text", "", "notes")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		v, err := needID(*id)
		if err != nil {
			return call{}, err
		}
		return call{method: grpcserver.MethodUpdateNotes, req: map[string]any{"id": v, "notes": *text}}, nil

	case "status":
		fs := newFlagSet(cmd)
		id := fs.String("id", "", "case id")
		to := fs.String("to", "", "target status")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		v, err := needID(*id)
		if err != nil {
			return call{}, err
		}
		if *to == "" {
			return call{}, errors.New("-to is required")
		}
		return call{method: grpcserver.MethodSetStatus, req: map[string]any{"id": v, "status": strings.ToUpper(*to)}}, nil

	case "approve":
		c, err := idOnly(cmd, grpcserver.MethodReviewCase, args)
		if err != nil {
			return call{}, err
		}
		c.req["decision"] = convert.DecisionApprove
		return c, nil

	case "reject":
		fs := newFlagSet(cmd)
		id := fs.String("id", "", "case id")
		comment := fs.String("comment", "", "comment shown to the submitter")
		slots := fs.String("slots", "", "comma separated document kinds to redo")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		v, err := needID(*id)
		if err != nil {
			return call{}, err
		}
		l := splitList(*slots)
		if len(l) == 0 {
			return call{}, errors.New("-slots is required")
		}
		req := map[string]any{"id": v, "decision": convert.DecisionReject, "slots": l}
		if *comment != "" {
			req["comment"] = *comment
		}
		return call{method: grpcserver.MethodReviewCase, req: req}, nil

	case "reopen":
		return idOnly(cmd, grpcserver.MethodReopenCase, args)

	case "reassign":
		fs := newFlagSet(cmd)
		id := fs.String("id", "", "case id")
		owner := fs.String("owner", "", "new owner staff id")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		v, err := needID(*id)
		if err != nil {
			return call{}, err
		}
		if *owner == "" {
			return call{}, errors.New("-owner is required")
		}
		return call{method: grpcserver.MethodReassignCase, req: map[string]any{"id": v, "owner_id": *owner}}, nil

	case "ack":
		return idOnly(cmd, grpcserver.MethodConfirmEscalation, args)

	case "rm":
		return idOnly(cmd, grpcserver.MethodDeleteCase, args)

	case "sweep":
		fs := newFlagSet(cmd)
		pass := fs.String("pass", "", "reminder|expiry")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		switch *pass {
		case "reminder":
			return call{method: grpcserver.MethodRunReminderPass, req: map[string]any{}}, nil
		case "expiry":
			return call{method: grpcserver.MethodRunExpiryPass, req: map[string]any{}}, nil
		}
		return call{}, fmt.Errorf("-pass must be reminder or expiry, got %q", *pass)

	case "open":
		return call{method: grpcserver.MethodOpenCase, req: map[string]any{}, submitter: true}, nil

	case "upload":
		fs := newFlagSet(cmd)
		kind := fs.String("kind", "", "document kind")
		file := fs.String("file", "", "path or - for stdin")
		ct := fs.String("type", "", "content type (guessed from extension)")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		if *kind == "" || *file == "" {
			return call{}, errors.New("-kind and -file are required")
		}
		data, err := readAll(*file)
		if err != nil {
			return call{}, err
		}
		return call{method: grpcserver.MethodUploadDocument, req: uploadRequest(*kind, *file, *ct, data), submitter: true}, nil

	case "submit":
		return call{method: grpcserver.MethodSubmitCase, req: map[string]any{}, submitter: true}, nil
	}
	return call{}, fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func uploadRequest(kind, path, contentType string, data []byte) map[string]any {
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return map[string]any{
		"kind":         strings.ToUpper(kind),
		"content_type": contentType,
		"content":      base64.StdEncoding.EncodeToString(data),
	}
}

// cmdMintToken issues a staff token locally from the shared signing key.
func cmdMintToken(args []string) error {
	fs := newFlagSet("mint-token")
	key := fs.String("key", "", "jwt signing key (same as server -jwt-key)")
	id := fs.String("id", "", "staff id")
	role := fs.String("role", string(model.RoleOwner), "owner|supervisor")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	save := fs.Bool("save", false, "store the token for later commands")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tok, exp, err := mintToken(*key, *id, *role, *ttl)
	if err != nil {
		return err
	}
	if *save {
		if err := saveToken(tok, exp); err != nil {
			return err
		}
	}
	printJSON(map[string]any{"access_token": tok, "expires_at": exp.UTC().Format(time.RFC3339)})
	return nil
}

func mintToken(key, id, role string, ttl time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errors.New("-key is required")
	}
	return identity.NewJWT([]byte(key)).Issue(id, model.Role(role), ttl)
}
