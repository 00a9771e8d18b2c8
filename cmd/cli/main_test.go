package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	grpcserver "github.com/and161185/docflow/internal/server/grpc"
)

func withTmpConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "docflow")
}

func Test_cfgDir_And_Paths(t *testing.T) {
	base := withTmpConfig(t)
	if got := cfgDir(); got != base {
		t.Fatalf("cfgDir=%q, want %q", got, base)
	}
	if !strings.HasPrefix(tokenPath(), base) || !strings.HasSuffix(tokenPath(), "token.json") {
		t.Fatalf("tokenPath unexpected: %s", tokenPath())
	}
}

func Test_token_SaveLoad(t *testing.T) {
	_ = withTmpConfig(t)

	if _, err := loadToken(); err == nil {
		t.Fatalf("expected error when token file missing")
	}
	if err := saveToken("tok", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	tok, err := loadToken()
	if err != nil || tok != "tok" {
		t.Fatalf("loadToken: tok=%q err=%v", tok, err)
	}
	if err := saveToken("tok2", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("saveToken expired: %v", err)
	}
	if _, err := loadToken(); err == nil {
		t.Fatalf("want error for expired token")
	}
}

func Test_staffToken_Precedence(t *testing.T) {
	_ = withTmpConfig(t)
	t.Setenv("DOCFLOW_TOKEN", "")

	if _, err := staffToken(""); err == nil {
		t.Fatalf("expected error with no token anywhere")
	}
	if err := saveToken("saved", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("saveToken: %v", err)
	}
	if tok, _ := staffToken(""); tok != "saved" {
		t.Fatalf("want saved token, got %q", tok)
	}
	t.Setenv("DOCFLOW_TOKEN", "env")
	if tok, _ := staffToken(""); tok != "env" {
		t.Fatalf("want env token, got %q", tok)
	}
	if tok, _ := staffToken("flag"); tok != "flag" {
		t.Fatalf("want flag token, got %q", tok)
	}
}

func Test_accessToken_Precedence(t *testing.T) {
	t.Setenv("DOCFLOW_ACCESS_TOKEN", "")
	if _, err := accessToken(""); err == nil {
		t.Fatalf("expected error with no access token")
	}
	t.Setenv("DOCFLOW_ACCESS_TOKEN", "env")
	if tok, _ := accessToken(""); tok != "env" {
		t.Fatalf("want env token, got %q", tok)
	}
	if tok, _ := accessToken("flag"); tok != "flag" {
		t.Fatalf("want flag token, got %q", tok)
	}
}

func Test_readAll_File_And_Stdin(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "f.txt")
	_ = os.WriteFile(tmp, []byte("hello"), 0o600)
	b, err := readAll(tmp)
	if err != nil || string(b) != "hello" {
		t.Fatalf("readAll(file): %q %v", b, err)
	}

	r, w, _ := os.Pipe()
	old := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = old }()
	go func() { _, _ = io.WriteString(w, "from-stdin"); _ = w.Close() }()
	b, err = readAll("-")
	if err != nil || string(b) != "from-stdin" {
		t.Fatalf("readAll(stdin): %q %v", b, err)
	}
}

func captureStdout(t *testing.T, fn func()) []byte {
	t.Helper()
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() { os.Stdout = old }()

	fn()
	_ = w.Close()
	out, _ := io.ReadAll(r)
	return out
}

func Test_printJSON_WritesPretty(t *testing.T) {
	out := captureStdout(t, func() { printJSON(map[string]any{"a": 1}) })

	var m map[string]any
	if json.Unmarshal(out, &m) != nil || m["a"] != float64(1) {
		t.Fatalf("printJSON produced invalid json: %s", string(out))
	}
	if !bytes.Contains(out, []byte("\n")) {
		t.Fatalf("printJSON should indent")
	}
}

func Test_printStruct(t *testing.T) {
	s, _ := structpb.NewStruct(map[string]any{"status": "OPEN"})
	out := captureStdout(t, func() { printStruct(s) })

	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil || m["status"] != "OPEN" {
		t.Fatalf("printStruct output unexpected: %s (%v)", out, err)
	}
}

func Test_headerCreds_Metadata(t *testing.T) {
	t.Parallel()

	b := bearerCreds("T", true)
	md, err := b.GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatalf("GetRequestMetadata: %v", err)
	}
	if md["authorization"] != "Bearer T" {
		t.Fatalf("auth header mismatch: %v", md)
	}
	if !b.RequireTransportSecurity() {
		t.Fatalf("bearer creds must require TLS when secure")
	}

	a := caseTokenCreds("A", false)
	md, _ = a.GetRequestMetadata(context.Background())
	if md[grpcserver.AccessTokenHeader] != "A" {
		t.Fatalf("access token header mismatch: %v", md)
	}
	if a.RequireTransportSecurity() {
		t.Fatalf("plaintext creds should not require TLS")
	}
}

func Test_loadTLS_Variants(t *testing.T) {
	t.Parallel()

	creds, err := loadTLS("", true)
	if err != nil || creds == nil {
		t.Fatalf("insecure: %v %v", creds, err)
	}

	creds, err = loadTLS("", false)
	if err != nil || creds == nil {
		t.Fatalf("default tls: %v %v", creds, err)
	}

	tmp := filepath.Join(t.TempDir(), "bad.pem")
	_ = os.WriteFile(tmp, []byte("not pem"), 0o600)
	creds, err = loadTLS(tmp, false)
	if err == nil || creds != nil {
		t.Fatalf("bad CA should error, got creds=%v err=%v", creds, err)
	}

	if _, err := loadTLS(filepath.Join(t.TempDir(), "missing.pem"), false); err == nil {
		t.Fatalf("missing CA should error")
	}
}

type fakeConn struct {
	method string
	got    *structpb.Struct
	reply  *structpb.Struct
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.got = args.(*structpb.Struct)
	if f.err != nil {
		return f.err
	}
	proto.Merge(reply.(*structpb.Struct), f.reply)
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not supported")
}

func Test_invoke(t *testing.T) {
	t.Parallel()

	reply, _ := structpb.NewStruct(map[string]any{"status": "OPEN"})
	fc := &fakeConn{reply: reply}

	out, err := invoke(context.Background(), fc, grpcserver.MethodGetCase, map[string]any{"id": "x"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if fc.method != "/docflow.v1.Cases/GetCase" {
		t.Fatalf("method=%q", fc.method)
	}
	if fc.got.GetFields()["id"].GetStringValue() != "x" {
		t.Fatalf("request not forwarded: %v", fc.got)
	}
	if out.GetFields()["status"].GetStringValue() != "OPEN" {
		t.Fatalf("reply not decoded: %v", out)
	}

	fc.err = errors.New("boom")
	if _, err := invoke(context.Background(), fc, grpcserver.MethodGetCase, map[string]any{}); err == nil {
		t.Fatalf("want transport error")
	}

	if _, err := invoke(context.Background(), fc, grpcserver.MethodGetCase, map[string]any{"bad": []string{"x"}}); err == nil {
		t.Fatalf("want encode error for non-structpb value")
	}
}
