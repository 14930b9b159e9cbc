package server

import (
	"context"
	"time"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	toolgatev1 "github.com/ppiankov/toolgate/api/toolgate/v1"
)

// Recover resumes a halted gateway once signing works again and marks
// the service as serving. It is a no-op when the gateway is not halted.
func (s *Server) Recover(ctx context.Context) error {
	if !s.gw.Halted() {
		return nil
	}
	if err := s.gw.Resume(ctx); err != nil {
		s.logger.Warn("gateway still halted", zap.Error(err))
		return err
	}
	s.health.SetServingStatus(toolgatev1.ServiceName, healthpb.HealthCheckResponse_SERVING)
	return nil
}

// RunRecovery retries Recover on every tick until ctx is done.
func (s *Server) RunRecovery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Recover(ctx)
		}
	}
}
