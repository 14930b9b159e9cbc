package server

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/toolgate/internal/identity"
)

// Metadata keys carrying caller credentials.
const (
	MetadataAuthorization = "authorization"
	MetadataAPIKey        = "x-api-key"
)

// authenticate resolves the caller for every Gatekeeper method and stores
// the actor in the context. Health checks are not authenticated.
func (s *Server) authenticate(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if strings.HasPrefix(info.FullMethod, "/grpc.health.v1.Health/") {
		return handler(ctx, req)
	}

	cred := credentialsFrom(ctx)
	actor, err := s.auth.Authenticate(ctx, cred)
	if err != nil {
		s.logger.Warn("unauthenticated call",
			zap.String("method", info.FullMethod),
			zap.Error(err))
		return nil, status.Error(codes.Unauthenticated, "invalid or missing credentials")
	}

	method := info.FullMethod[strings.LastIndexByte(info.FullMethod, '/')+1:]
	if r := s.limiter.Allow(actor.ID, method, time.Now()); r.Exceeded {
		s.logger.Warn("rate limited",
			zap.String("actor_id", actor.ID),
			zap.String("method", method),
			zap.Int("limit", r.Limit))
		return nil, status.Error(codes.ResourceExhausted, r.Reason)
	}
	return handler(identity.WithActor(ctx, actor), req)
}

func credentialsFrom(ctx context.Context) identity.Credentials {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return identity.Credentials{}
	}
	var cred identity.Credentials
	if v := md.Get(MetadataAPIKey); len(v) > 0 {
		cred.APIKey = strings.TrimSpace(v[0])
	}
	if v := md.Get(MetadataAuthorization); len(v) > 0 {
		h := strings.TrimSpace(v[0])
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			cred.Bearer = strings.TrimSpace(h[7:])
		}
	}
	return cred
}

func callerOf(ctx context.Context) (identity.Actor, error) {
	actor, ok := identity.ActorFrom(ctx)
	if !ok {
		return identity.Actor{}, status.Error(codes.Unauthenticated, "no authenticated actor")
	}
	return actor, nil
}
