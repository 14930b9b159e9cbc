package server

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunExpiry denies stale pending actions on every tick until ctx is done.
func (s *Server) RunExpiry(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.gw.ExpirePending(ctx, now)
			if err != nil {
				s.logger.Error("pending expiry failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("expired pending actions", zap.Int("count", n))
			}
		}
	}
}
