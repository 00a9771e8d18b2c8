// Package grpcserver exposes the docflow case API over gRPC.
//
// The service is declared by hand: every method takes and returns a google.protobuf.Struct,
// so no generated stubs are needed on either side.
package grpcserver

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/docflow/internal/convert"
	"github.com/and161185/docflow/internal/model"
	"github.com/and161185/docflow/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "docflow.v1.Cases"

// MaxMessageSize fits a base64 encoded document of service.MaxDocumentSize.
const MaxMessageSize = 16 << 20

// Method names.
const (
	MethodCreateCase        = "CreateCase"
	MethodGetCase           = "GetCase"
	MethodListCases         = "ListCases"
	MethodUpdateNotes       = "UpdateNotes"
	MethodSetStatus         = "SetStatus"
	MethodReviewCase        = "ReviewCase"
	MethodReopenCase        = "ReopenCase"
	MethodReassignCase      = "ReassignCase"
	MethodConfirmEscalation = "ConfirmEscalation"
	MethodDeleteCase        = "DeleteCase"
	MethodOpenCase          = "OpenCase"
	MethodUploadDocument    = "UploadDocument"
	MethodSubmitCase        = "SubmitCase"
	MethodRunReminderPass   = "RunReminderPass"
	MethodRunExpiryPass     = "RunExpiryPass"
)

// FullMethod returns the invoke path of a method.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

// Handler serves one method call. *Server implements it.
type Handler interface {
	Handle(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error)
}

type (
	staffFn     func(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error)
	submitterFn func(ctx context.Context, token, ip string, req *structpb.Struct) (*structpb.Struct, error)
)

type route struct {
	staff          staffFn
	submitter      submitterFn
	supervisorOnly bool
}

// Server wires services into gRPC handlers.
type Server struct {
	cases  service.CaseService
	submit service.SubmissionService
	sweep  service.SweepService
	log    *zap.Logger
	routes map[string]route
}

var _ Handler = (*Server)(nil)

// New constructs a gRPC server with injected services.
func New(cases service.CaseService, submit service.SubmissionService, sweep service.SweepService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{cases: cases, submit: submit, sweep: sweep, log: log}
	s.routes = map[string]route{
		MethodCreateCase:        {staff: s.createCase},
		MethodGetCase:           {staff: s.getCase},
		MethodListCases:         {staff: s.listCases},
		MethodUpdateNotes:       {staff: s.updateNotes},
		MethodSetStatus:         {staff: s.setStatus},
		MethodReviewCase:        {staff: s.reviewCase},
		MethodReopenCase:        {staff: s.reopenCase},
		MethodReassignCase:      {staff: s.reassignCase},
		MethodConfirmEscalation: {staff: s.confirmEscalation},
		MethodDeleteCase:        {staff: s.deleteCase},
		MethodOpenCase:          {submitter: s.openCase},
		MethodUploadDocument:    {submitter: s.uploadDocument},
		MethodSubmitCase:        {submitter: s.submitCase},
		MethodRunReminderPass:   {staff: s.runReminderPass, supervisorOnly: true},
		MethodRunExpiryPass:     {staff: s.runExpiryPass, supervisorOnly: true},
	}
	return s
}

// Register adds the service to gs.
func (s *Server) Register(gs grpc.ServiceRegistrar) {
	desc := ServiceDesc()
	gs.RegisterService(&desc, s)
}

// ServiceDesc describes docflow.v1.Cases for grpc.Server.RegisterService.
func ServiceDesc() grpc.ServiceDesc {
	names := []string{
		MethodCreateCase, MethodGetCase, MethodListCases, MethodUpdateNotes, MethodSetStatus,
		MethodReviewCase, MethodReopenCase, MethodReassignCase, MethodConfirmEscalation, MethodDeleteCase,
		MethodOpenCase, MethodUploadDocument, MethodSubmitCase, MethodRunReminderPass, MethodRunExpiryPass,
	}
	methods := make([]grpc.MethodDesc, 0, len(names))
	for _, n := range names {
		methods = append(methods, grpc.MethodDesc{MethodName: n, Handler: unaryHandler(n)})
	}
	return grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*Handler)(nil),
		Methods:     methods,
		Metadata:    "docflow/v1/cases.proto",
	}
}

func unaryHandler(method string) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := srv.(Handler)
		if interceptor == nil {
			return h.Handle(ctx, method, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		next := func(ctx context.Context, req any) (any, error) {
			return h.Handle(ctx, method, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, next)
	}
}

// Handle dispatches a call by method name after checking the credential the method needs.
func (s *Server) Handle(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	r, ok := s.routes[method]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "method %s not implemented", method)
	}

	var (
		out *structpb.Struct
		err error
	)
	switch {
	case r.staff != nil:
		actor, ok := ActorFromCtx(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		if r.supervisorOnly && actor.Role != model.RoleSupervisor {
			return nil, status.Error(codes.PermissionDenied, "supervisor only")
		}
		out, err = r.staff(ctx, actor, req)
	default:
		tok, ok := AccessTokenFromCtx(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "no access token")
		}
		out, err = r.submitter(ctx, tok, remoteIP(ctx), req)
	}
	if err != nil {
		return nil, s.toStatus(method, err)
	}
	return out, nil
}

// --- staff ---

func (s *Server) createCase(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	in, err := convert.NewCase(req)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Create(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) getCase(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) listCases(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	statuses, err := convert.Statuses(req)
	if err != nil {
		return nil, err
	}
	cs, err := s.cases.List(ctx, actor, statuses)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCases(cs)
}

func (s *Server) updateNotes(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	notes, err := convert.String(req, "notes")
	if err != nil {
		return nil, err
	}
	c, err := s.cases.UpdateNotes(ctx, actor, id, notes)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) setStatus(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	target, err := convert.Status(req)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.SetStatus(ctx, actor, id, target)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) reviewCase(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	d, err := convert.ReviewDecision(req)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Review(ctx, actor, id, d)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) reopenCase(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Reopen(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) reassignCase(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	owner, err := convert.RequiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	c, err := s.cases.Reassign(ctx, actor, id, owner)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) confirmEscalation(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	c, err := s.cases.ConfirmEscalation(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	return convert.ToStructCase(c)
}

func (s *Server) deleteCase(ctx context.Context, actor model.Actor, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := convert.ID(req)
	if err != nil {
		return nil, err
	}
	if err := s.cases.Delete(ctx, actor, id); err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func (s *Server) runReminderPass(ctx context.Context, _ model.Actor, _ *structpb.Struct) (*structpb.Struct, error) {
	rep, err := s.sweep.RunReminderPass(ctx)
	if err != nil {
		return nil, err
	}
	return convert.ToStructReport(rep)
}

func (s *Server) runExpiryPass(ctx context.Context, _ model.Actor, _ *structpb.Struct) (*structpb.Struct, error) {
	rep, err := s.sweep.RunExpiryPass(ctx)
	if err != nil {
		return nil, err
	}
	return convert.ToStructReport(rep)
}

// --- submitter ---

func (s *Server) openCase(ctx context.Context, token, ip string, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.submit.Open(ctx, token, ip)
	if err != nil {
		return nil, err
	}
	return convert.ToStructSubmitterView(c)
}

func (s *Server) uploadDocument(ctx context.Context, token, ip string, req *structpb.Struct) (*structpb.Struct, error) {
	up, err := convert.Upload(req)
	if err != nil {
		return nil, err
	}
	c, err := s.submit.Upload(ctx, token, ip, up)
	if err != nil {
		return nil, err
	}
	return convert.ToStructSubmitterView(c)
}

func (s *Server) submitCase(ctx context.Context, token, ip string, _ *structpb.Struct) (*structpb.Struct, error) {
	c, err := s.submit.Submit(ctx, token, ip)
	if err != nil {
		return nil, err
	}
	return convert.ToStructSubmitterView(c)
}
