// Command docflow is a CLI client for the docflow case service.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	grpcserver "github.com/and161185/docflow/internal/server/grpc"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "docflow")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "docflow")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid staff token (mint-token -save or -token)")
	}
	return tf.AccessToken, nil
}

// staffToken prefers the flag, then DOCFLOW_TOKEN, then the saved token.
func staffToken(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	if v := os.Getenv("DOCFLOW_TOKEN"); v != "" {
		return v, nil
	}
	return loadToken()
}

func accessToken(flagVal string) (string, error) {
	if flagVal != "" {
		return flagVal, nil
	}
	if v := os.Getenv("DOCFLOW_ACCESS_TOKEN"); v != "" {
		return v, nil
	}
	return "", errors.New("no case access token (-access-token or DOCFLOW_ACCESS_TOKEN)")
}

// ---- grpc dial ----

// headerCreds attaches one credential header to every call.
type headerCreds struct {
	key, value string
	secure     bool
}

func (h headerCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{h.key: h.value}, nil
}
func (h headerCreds) RequireTransportSecurity() bool { return h.secure }

func bearerCreds(token string, secure bool) headerCreds {
	return headerCreds{key: grpcserver.AuthorizationHeader, value: "Bearer " + token, secure: secure}
}

func caseTokenCreds(token string, secure bool) headerCreds {
	return headerCreds{key: grpcserver.AccessTokenHeader, value: token, secure: secure}
}

func loadTLS(caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	if skipVerify {
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	}
	if caPath == "" {
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

type conn struct {
	addr       string
	caPath     string
	skipVerify bool
	plaintext  bool
}

func (c conn) dial(ctx context.Context, creds headerCreds) (*grpc.ClientConn, error) {
	var opts []grpc.DialOption
	if c.plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		tc, err := loadTLS(c.caPath, c.skipVerify)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.WithTransportCredentials(tc))
	}
	creds.secure = !c.plaintext
	opts = append(opts,
		grpc.WithPerRPCCredentials(creds),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(grpcserver.MaxMessageSize)),
	)
	//nolint:staticcheck // DialContext is supported through 1.x; migrate when grpc.NewClient is stable
	return grpc.DialContext(ctx, c.addr, opts...)
}

// invoke calls one docflow.v1.Cases method with a Struct payload.
func invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, grpcserver.FullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printStruct(s *structpb.Struct) {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		fail(err)
	}
	fmt.Println(string(b))
}

func usage() {
	fmt.Fprintf(os.Stderr, `docflow CLI
Usage:
  docflow -addr HOST:PORT [-ca file | -insecure | -plaintext] <cmd> [args]

Staff commands (bearer token from -token, DOCFLOW_TOKEN or mint-token -save):
  mint-token -key <secret> -id <staff id> [-role owner|supervisor] [-ttl 12h] [-save]
  create     [-owner <id>] [-notes <text>]         (prints the case access token once)
  get        -id <uuid>
  list       [-status OPEN,SUBMITTED]
  notes      -id <uuid> -text <notes>
  status     -id <uuid> -to <STATUS>
  approve    -id <uuid>
  reject     -id <uuid> -comment <text> -slots ID,PROOF_OF_ADDRESS
  reopen     -id <uuid>
  reassign   -id <uuid> -owner <id>
  ack        -id <uuid>                            (confirm escalation)
  rm         -id <uuid>
  sweep      -pass reminder|expiry                 (supervisor)

Submitter commands (case token from -access-token or DOCFLOW_ACCESS_TOKEN):
  open
  upload     -kind <KIND> -file <path|-> [-type <mime>]
  submit

  version
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands and configures TLS/auth for RPC calls.
func main() {
	// global flags
	addr := flag.String("addr", "localhost:8443", "server addr")
	caPath := flag.String("ca", "", "CA cert (PEM)")
	skipVerify := flag.Bool("insecure", false, "skip cert verify (dev)")
	plaintext := flag.Bool("plaintext", false, "connect without TLS (dev)")
	token := flag.String("token", "", "staff bearer token")
	caseToken := flag.String("access-token", "", "case access token")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "version":
		fmt.Printf("docflow %s (%s)\n", version, buildDate)
		return
	case "mint-token":
		if err := cmdMintToken(args); err != nil {
			fail(err)
		}
		return
	}

	c, err := buildCall(cmd, args)
	if err != nil {
		if errors.Is(err, errUnknownCommand) {
			usage()
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var creds headerCreds
	if c.submitter {
		tok, err := accessToken(*caseToken)
		if err != nil {
			fail(err)
		}
		creds = caseTokenCreds(tok, true)
	} else {
		tok, err := staffToken(*token)
		if err != nil {
			fail(err)
		}
		creds = bearerCreds(tok, true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cn := conn{addr: *addr, caPath: *caPath, skipVerify: *skipVerify, plaintext: *plaintext}
	cc, err := cn.dial(ctx, creds)
	if err != nil {
		fail(err)
	}
	defer cc.Close()

	out, err := invoke(ctx, cc, c.method, c.req)
	if err != nil {
		fail(err)
	}
	printStruct(out)
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
