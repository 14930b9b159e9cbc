package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/integrity"
	"github.com/ppiankov/toolgate/internal/mirror"
	"github.com/ppiankov/toolgate/internal/ratelimit"
	"github.com/ppiankov/toolgate/internal/redact"
	"github.com/ppiankov/toolgate/internal/server"
)

var (
	serveAddr           string
	serveJWTSecret      string
	serveVerifyInterval time.Duration
	serveExpiryInterval time.Duration
	serveResumeInterval time.Duration
	serveTamperLog      string
	serveMirrorLog      bool
	serveRedisURL       string
	serveRedisStream    string
	serveClickHouseDSN  string
	serveRateLimit      string
	serveMirrorRaw      bool
	serveRedactKeys     []string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", envOr("TOOLGATE_ADDR", server.DefaultAddr), "gRPC listen address")
	f.StringVar(&serveJWTSecret, "jwt-secret", os.Getenv("TOOLGATE_JWT_SECRET"), "Hex HS256 secret for bearer tokens (empty disables tokens)")
	f.DurationVar(&serveVerifyInterval, "verify-interval", integrity.DefaultInterval, "Ledger integrity check interval")
	f.DurationVar(&serveExpiryInterval, "expiry-interval", time.Minute, "Pending approval expiry sweep interval")
	f.DurationVar(&serveResumeInterval, "resume-interval", 30*time.Second, "How often a halted gateway retries signing")
	f.StringVar(&serveTamperLog, "tamper-log", toolgatePath("tamper.jsonl"), "Where integrity failures are appended")
	f.BoolVar(&serveMirrorLog, "mirror-log", false, "Mirror every ledger entry to the process log")
	f.StringVar(&serveRedisURL, "redis-url", os.Getenv("TOOLGATE_REDIS_URL"), "Mirror entries to a Redis stream at this URL")
	f.StringVar(&serveRedisStream, "redis-stream", mirror.DefaultStream, "Redis stream name")
	f.StringVar(&serveRateLimit, "rate-limit", os.Getenv("TOOLGATE_RATE_LIMIT"), "Per-actor Authorize limit as N/duration, e.g. 120/1m (empty is unlimited)")
	f.StringVar(&serveClickHouseDSN, "clickhouse-dsn", os.Getenv("TOOLGATE_CLICKHOUSE_DSN"), "Mirror entries to ClickHouse at this DSN")
	f.BoolVar(&serveMirrorRaw, "mirror-raw", false, "Send entries to mirrors without masking credentials")
	f.StringSliceVar(&serveRedactKeys, "redact-key", nil, "Extra metadata keys to mask in mirrored entries (repeatable)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gRPC gateway server",
	Long: "Runs toolgate as the central gateway over gRPC. Agents authorize tool calls;\n" +
		"operators resolve held actions, read and verify the ledger, and change the threshold.\n" +
		"The policy file is hot-reloaded and every reload is recorded.",
	Args: cobra.NoArgs,
	RunE: runServe,
}

func mirrorSinks(ctx context.Context) ([]audit.Sink, error) {
	var sinks []audit.Sink
	if serveMirrorLog {
		sinks = append(sinks, mirror.NewLogSink(logger))
	}
	if serveRedisURL != "" {
		rs, err := mirror.NewRedisSink(mirror.RedisOptions{URL: serveRedisURL, Stream: serveRedisStream})
		if err != nil {
			return nil, err
		}
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis mirror unreachable at startup", zap.Error(err))
		}
		sinks = append(sinks, rs)
	}
	if serveClickHouseDSN != "" {
		cs, err := mirror.NewClickHouseSink(ctx, serveClickHouseDSN, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, cs)
	}
	if serveMirrorRaw || len(sinks) == 0 {
		return sinks, nil
	}
	r := redact.New(serveRedactKeys...)
	for i, s := range sinks {
		sinks[i] = mirror.Redacted(s, r)
	}
	return sinks, nil
}

func authenticator() (identity.Authenticator, error) {
	dir, err := identity.LoadDirectory(actorsPath)
	if err != nil {
		return nil, fmt.Errorf("%w (create one with `toolgate hash-key`)", err)
	}
	chain := identity.Chain{APIKeys: identity.NewAPIKeyAuthenticator(dir)}
	if serveJWTSecret != "" {
		secret, err := hex.DecodeString(strings.TrimSpace(serveJWTSecret))
		if err != nil {
			return nil, fmt.Errorf("invalid --jwt-secret: %w", err)
		}
		if chain.Tokens, err = identity.NewJWTAuthenticator(secret, dir); err != nil {
			return nil, err
		}
	}
	logger.Info("actor directory loaded", zap.String("path", actorsPath), zap.Int("actors", len(dir.IDs())), zap.Bool("tokens", chain.Tokens != nil))
	return chain, nil
}

func rateLimits() (ratelimit.Config, error) {
	if serveRateLimit == "" {
		return nil, nil
	}
	l, err := ratelimit.ParseLimit(serveRateLimit)
	if err != nil {
		return nil, err
	}
	return ratelimit.Config{"*": {"Authorize": l}}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auth, err := authenticator()
	if err != nil {
		return err
	}
	sinks, err := mirrorSinks(ctx)
	if err != nil {
		return err
	}
	st, err := buildStack(ctx, sinks...)
	if err != nil {
		return err
	}
	defer st.Close()

	limits, err := rateLimits()
	if err != nil {
		return err
	}
	srv, err := server.New(st.gw, auth, server.Config{Addr: serveAddr, PolicyPath: policyPath, RateLimits: limits}, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	reloader, err := server.NewReloader(srv)
	if err != nil {
		logger.Warn("hot-reload disabled", zap.Error(err))
	} else {
		go reloader.Run(ctx)
	}

	monitor := integrity.NewMonitor(integrity.Config{
		Ledger:    st.ledger,
		Interval:  serveVerifyInterval,
		Alerts:    st.gw.Alerts,
		TamperLog: serveTamperLog,
		Logger:    logger,
	})
	go monitor.Run(ctx)
	go srv.RunExpiry(ctx, serveExpiryInterval)
	go srv.RunRecovery(ctx, serveResumeInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if err := srv.Recover(ctx); err != nil {
					logger.Error("resume on SIGHUP failed", zap.Error(err))
				}
				if err := srv.ReloadPolicy(ctx); err != nil {
					logger.Error("reload on SIGHUP failed", zap.Error(err))
				}
				continue
			}
			logger.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
			srv.GracefulStop()
			return
		}
	}()

	logger.Info("toolgate server listening",
		zap.String("addr", serveAddr),
		zap.String("policy", policyPath),
		zap.Float64("threshold", st.gw.Threshold()),
	)
	return srv.Serve()
}
