package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
	"github.com/ppiankov/toolgate/internal/store/sqlstore"
	"github.com/ppiankov/toolgate/sdk/go/toolgate"
)

// loadSigner resolves the key from --signing-key, then $TOOLGATE_SIGNING_KEY,
// then ~/.toolgate/signing.key.
func loadSigner() (signing.Signer, error) {
	path := keyPath
	if path == "" && os.Getenv(signing.EnvKey) == "" {
		if def := signing.DefaultKeyPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}
	key, err := signing.LoadKey(path)
	if err != nil {
		return nil, err
	}
	return signing.New(signingAlg, key)
}

// openStore opens the durable ledger store selected by --store.
func openStore(ctx context.Context) (audit.Store, error) {
	switch strings.ToLower(storeKind) {
	case "", "jsonl":
		if auditLog == "" {
			return nil, errors.New("--audit-log is required for the jsonl store")
		}
		return audit.OpenJSONL(auditLog)
	case "memory":
		return audit.NewMemoryStore(), nil
	default:
		d, err := sqlstore.DialectByName(storeKind)
		if err != nil {
			return nil, err
		}
		if storeDSN == "" {
			return nil, fmt.Errorf("--dsn is required for the %s store", d.Name)
		}
		return sqlstore.Open(ctx, d, storeDSN)
	}
}

// storeRecords reads every stored record without opening a ledger.
func storeRecords(ctx context.Context) ([]audit.Record, error) {
	if strings.ToLower(storeKind) == "jsonl" || storeKind == "" {
		return audit.ReadFile(auditLog)
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.Records(ctx)
}

// openPending opens the pending store; an empty --pending-dir keeps it in memory.
func openPending() (approval.Store, error) {
	if pendingDir == "" {
		return approval.NewMemoryStore(), nil
	}
	return approval.NewFileStore(pendingDir)
}

// stack is a fully wired gateway and what must be closed with it.
type stack struct {
	gw      *gateway.Gateway
	ledger  *audit.Ledger
	closers []io.Closer
}

func (s *stack) Close() error {
	var errs []error
	if err := s.ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildStack opens the ledger, loads the policy and builds a gateway.
// Sinks that are also io.Closers are closed with the stack.
func buildStack(ctx context.Context, sinks ...audit.Sink) (*stack, error) {
	signer, err := loadSigner()
	if err != nil {
		return nil, err
	}
	cfg, hash, err := policy.LoadConfigWithHash(policyPath)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := audit.Open(ctx, store, signer, audit.WithLogger(logger), audit.WithSinks(sinks...))
	if err != nil {
		store.Close()
		return nil, err
	}
	pending, err := openPending()
	if err != nil {
		ledger.Close()
		return nil, err
	}
	gw, err := gateway.New(gateway.Config{
		Ledger:     ledger,
		Pending:    pending,
		Policy:     cfg,
		PolicyHash: hash,
		Logger:     logger,
	})
	if err != nil {
		ledger.Close()
		return nil, err
	}

	s := &stack{gw: gw, ledger: ledger}
	for _, sink := range sinks {
		if c, ok := sink.(io.Closer); ok {
			s.closers = append(s.closers, c)
		}
	}
	logger.Info("gateway ready",
		zap.String("store", storeKind),
		zap.String("policy_hash", hash),
		zap.Float64("threshold", cfg.Threshold),
		zap.Int("entries", ledger.Len()),
	)
	return s, nil
}

// dialServer connects to --server with the configured credentials.
func dialServer() (*toolgate.Client, error) {
	if clientKey == "" && clientToken == "" {
		return nil, errors.New("no credentials: set --api-key/TOOLGATE_API_KEY or --token/TOOLGATE_TOKEN")
	}
	var opts []toolgate.Option
	if clientKey != "" {
		opts = append(opts, toolgate.WithAPIKey(clientKey))
	}
	if clientToken != "" {
		opts = append(opts, toolgate.WithBearerToken(clientToken))
	}
	return toolgate.Dial(serverAddr, opts...)
}
