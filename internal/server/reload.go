package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// reloadDebounce is how long the watcher waits after the last write.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the policy file and hot-reloads it into the server.
// The parent directory is watched so that editors replacing the file by
// rename are picked up.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	path    string
	logger  *zap.Logger
	delay   time.Duration
}

// NewReloader creates a file watcher for the server's policy path.
func NewReloader(server *Server) (*Reloader, error) {
	if server.cfg.PolicyPath == "" {
		return nil, fmt.Errorf("no policy path to watch")
	}
	path, err := filepath.Abs(server.cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", filepath.Dir(path), err)
	}

	return &Reloader{
		watcher: watcher,
		server:  server,
		path:    path,
		logger:  server.logger,
		delay:   reloadDebounce,
	}, nil
}

// Run watches for file changes and reloads policy. Blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(r.delay, func() { r.reload(ctx) })

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

// reload applies the file on disk. A missing file is skipped: loading it
// would silently fall back to the built-in defaults.
func (r *Reloader) reload(ctx context.Context) {
	if _, err := os.Stat(r.path); err != nil {
		r.logger.Warn("hot-reload skipped: policy file unavailable", zap.String("path", r.path), zap.Error(err))
		return
	}
	before := r.server.gw.PolicyHash()
	if err := r.server.ReloadPolicy(ctx); err != nil {
		r.logger.Error("hot-reload failed", zap.String("path", r.path), zap.Error(err))
		return
	}
	after := r.server.gw.PolicyHash()
	r.logger.Info("hot-reload: policy checked",
		zap.String("path", r.path),
		zap.Bool("changed", before != after),
		zap.String("policy_hash", after))
}
