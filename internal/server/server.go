// Package server exposes a Gateway over gRPC as toolgate.v1.Gatekeeper.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	toolgatev1 "github.com/ppiankov/toolgate/api/toolgate/v1"
	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/policydiff"
	"github.com/ppiankov/toolgate/internal/ratelimit"
	"github.com/ppiankov/toolgate/internal/signing"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:7443"

// Config holds gRPC server configuration.
type Config struct {
	Addr       string
	PolicyPath string
	// RateLimits caps calls per actor and method; nil means unlimited.
	RateLimits ratelimit.Config
}

// Server implements the Gatekeeper gRPC service on top of a Gateway.
type Server struct {
	gw     *gateway.Gateway
	auth   identity.Authenticator
	cfg    Config
	logger *zap.Logger

	grpcServer *grpc.Server
	health     *health.Server
	limiter    *ratelimit.Limiter
}

// New builds the gRPC server. It does not listen.
func New(gw *gateway.Gateway, auth identity.Authenticator, cfg Config, logger *zap.Logger) (*Server, error) {
	if gw == nil {
		return nil, errors.New("server: gateway is required")
	}
	if auth == nil {
		return nil, errors.New("server: authenticator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		gw:      gw,
		auth:    auth,
		cfg:     cfg,
		logger:  logger,
		health:  health.NewServer(),
		limiter: ratelimit.NewLimiter(cfg.RateLimits),
	}
	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              30 * time.Second,
			Timeout:           5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(1<<20),
		grpc.ChainUnaryInterceptor(s.authenticate, s.trackHealth),
	)
	toolgatev1.RegisterGatekeeperServer(s.grpcServer, &service{s: s})
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(toolgatev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Serve listens on the configured address. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	s.logger.Info("gatekeeper listening", zap.String("addr", lis.Addr().String()))
	return s.grpcServer.Serve(lis)
}

// GracefulStop marks the service not serving and drains connections.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpcServer.GracefulStop()
}

// ReloadPolicy re-reads the policy file and swaps it into the gateway.
// An unchanged file is not reloaded.
func (s *Server) ReloadPolicy(ctx context.Context) error {
	cfg, hash, err := policy.LoadConfigWithHash(s.cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("failed to reload policy config: %w", err)
	}
	if hash == s.gw.PolicyHash() {
		return nil
	}
	diff := policydiff.Diff(s.gw.Policy(), cfg)
	if err := s.gw.ReloadPolicy(ctx, cfg, hash); err != nil {
		return err
	}
	for _, c := range diff.Changes {
		s.logger.Info("policy field changed",
			zap.String("field", c.Field),
			zap.String("old", c.Old),
			zap.String("new", c.New),
			zap.String("effect", c.Comment),
		)
	}
	for _, lc := range diff.ListChanges {
		s.logger.Info("policy list changed", zap.String("section", lc.Section), zap.String("type", lc.Type), zap.String("value", lc.Value))
	}
	return nil
}

// trackHealth reflects a halted gateway in the health service.
func (s *Server) trackHealth(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if strings.HasPrefix(info.FullMethod, "/"+toolgatev1.ServiceName+"/") {
		st := healthpb.HealthCheckResponse_SERVING
		if s.gw.Halted() {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(toolgatev1.ServiceName, st)
	}
	return resp, err
}

type service struct {
	s *Server
}

func (v *service) Authorize(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	var req toolgatev1.AuthorizeRequest
	if err := toolgatev1.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	d, err := v.s.gw.Authorize(ctx, gateway.Request{
		Actor:     actor,
		Action:    req.Action,
		Resource:  req.Resource,
		Sensitive: req.Sensitive,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(decisionToPB(d))
}

func (v *service) Resolve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	var req toolgatev1.ResolveRequest
	if err := toolgatev1.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if req.ActionID == "" {
		return nil, status.Error(codes.InvalidArgument, "action_id is required")
	}
	d, err := v.s.gw.Resolve(ctx, gateway.Resolution{
		ActionID: req.ActionID,
		Resolver: actor,
		Approve:  req.Approve,
		Reason:   req.Reason,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(decisionToPB(d))
}

func (v *service) ListPending(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	var req toolgatev1.ListPendingRequest
	if err := toolgatev1.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	st, err := approval.ParseStatus(req.Status)
	if err != nil {
		return nil, toStatus(err)
	}
	list, err := v.s.gw.ListPending(ctx, actor, st)
	if err != nil {
		return nil, toStatus(err)
	}
	out := &toolgatev1.ListPendingResponse{Pending: make([]toolgatev1.PendingAction, 0, len(list))}
	for _, p := range list {
		out.Pending = append(out.Pending, pendingToPB(p))
	}
	return reply(out)
}

func (v *service) ReadAudit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	var req toolgatev1.ReadAuditRequest
	if err := toolgatev1.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	f, err := filterFromPB(req)
	if err != nil {
		return nil, toStatus(err)
	}
	entries := v.s.gw.ReadAudit(ctx, actor, f)
	out := &toolgatev1.ReadAuditResponse{Entries: make([]toolgatev1.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, entryToPB(e))
	}
	return reply(out)
}

func (v *service) VerifyAudit(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	report, err := v.s.gw.VerifyAudit(ctx, actor)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(reportToPB(report))
}

func (v *service) SetThreshold(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := callerOf(ctx)
	if err != nil {
		return nil, err
	}
	var req toolgatev1.SetThresholdRequest
	if err := toolgatev1.FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if _, ok := in.GetFields()["value"]; !ok {
		return nil, status.Error(codes.InvalidArgument, "value is required")
	}
	if err := v.s.gw.SetThreshold(ctx, actor, req.Value); err != nil {
		return nil, toStatus(err)
	}
	return reply(&toolgatev1.SetThresholdResponse{Threshold: v.s.gw.Threshold()})
}

func reply(v any) (*structpb.Struct, error) {
	s, err := toolgatev1.ToStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// toStatus maps gateway errors to gRPC codes.
func toStatus(err error) error {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, identity.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, gateway.ErrPermissionDenied):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, gateway.ErrGatewayHalted), errors.Is(err, signing.ErrSigningUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, gateway.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, gateway.ErrAlreadyResolved):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func filterFromPB(req toolgatev1.ReadAuditRequest) (audit.Filter, error) {
	f := audit.Filter{
		ActorID:  req.ActorID,
		Resource: req.Resource,
		ActionID: req.ActionID,
		Limit:    req.Limit,
	}
	if req.Decision != "" {
		d := model.Decision(strings.ToUpper(req.Decision))
		switch d {
		case model.Approved, model.Denied, model.PendingApproval:
			f.Decision = d
		default:
			return f, &model.ValidationError{Field: "decision", Value: req.Decision, Reason: "unknown decision"}
		}
	}
	var err error
	if f.From, err = parseTime("from", req.From); err != nil {
		return f, err
	}
	if f.To, err = parseTime("to", req.To); err != nil {
		return f, err
	}
	if req.Limit < 0 {
		return f, &model.ValidationError{Field: "limit", Value: req.Limit, Reason: "must not be negative"}
	}
	return f, nil
}

func parseTime(field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, &model.ValidationError{Field: field, Value: v, Reason: "must be RFC 3339"}
	}
	return t, nil
}
