// Package sqlstore persists the audit ledger in SQLite or Postgres.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // registers the "sqlite" driver

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/model"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name   string
	Driver string
	schema string
	// numbered placeholders ($1) instead of ?
	numbered bool
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite",
		schema: `CREATE TABLE IF NOT EXISTS audit_entries (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id INTEGER NOT NULL UNIQUE,
	ts TEXT NOT NULL,
	action_id TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	role TEXT NOT NULL,
	action TEXT NOT NULL,
	resource TEXT NOT NULL,
	decision TEXT NOT NULL,
	risk_score REAL NOT NULL,
	reason TEXT NOT NULL,
	policy_hash TEXT NOT NULL,
	metadata TEXT,
	signature TEXT NOT NULL
)`,
	}
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "pgx",
		numbered: true,
		schema: `CREATE TABLE IF NOT EXISTS audit_entries (
	seq BIGSERIAL PRIMARY KEY,
	id BIGINT NOT NULL UNIQUE,
	ts TEXT NOT NULL,
	action_id TEXT NOT NULL,
	actor_id TEXT NOT NULL,
	role TEXT NOT NULL,
	action TEXT NOT NULL,
	resource TEXT NOT NULL,
	decision TEXT NOT NULL,
	risk_score DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL,
	policy_hash TEXT NOT NULL,
	metadata TEXT,
	signature TEXT NOT NULL
)`,
	}
)

// DialectByName returns the dialect for "sqlite" or "postgres".
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("sqlstore: unknown dialect %q", name)
	}
}

const columns = "id, ts, action_id, actor_id, role, action, resource, decision, risk_score, reason, policy_hash, metadata, signature"

func (d Dialect) insertQuery() string {
	n := len(strings.Split(columns, ","))
	marks := make([]string, n)
	for i := range marks {
		if d.numbered {
			marks[i] = fmt.Sprintf("$%d", i+1)
		} else {
			marks[i] = "?"
		}
	}
	return "INSERT INTO audit_entries (" + columns + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// Store is an audit.Store backed by database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	insert  string
}

// Open connects using the dialect's driver and migrates the schema.
func Open(ctx context.Context, d Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", d.Name, err)
	}
	if d.Name == SQLite.Name {
		// One writer connection; the ledger serializes appends anyway.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", d.Name, err)
	}
	s, err := New(ctx, db, d)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle and migrates the schema.
func New(ctx context.Context, db *sql.DB, d Dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db, dialect: d, insert: d.insertQuery()}, nil
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	var meta sql.NullString
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("sqlstore: marshal metadata: %w", err)
		}
		meta = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, s.insert,
		int64(e.ID), e.Timestamp, e.ActionID, e.ActorID, string(e.Role), string(e.Action),
		e.Resource, string(e.Decision), e.RiskScore, e.Reason, e.PolicyHash, meta, e.Signature,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert entry %d: %w", e.ID, err)
	}
	return nil
}

// Records returns every row in insertion order. Rows that fail to decode
// are returned with Err set.
func (s *Store) Records(ctx context.Context) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM audit_entries ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Record
	for rows.Next() {
		out = append(out, scanRecord(rows))
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("sqlstore: rows: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) audit.Record {
	var (
		id                                     int64
		ts, actionID, actorID, role, action    string
		resource, decision, reason, policyHash string
		score                                  float64
		meta                                   sql.NullString
		signature                              string
	)
	if err := rows.Scan(&id, &ts, &actionID, &actorID, &role, &action, &resource, &decision,
		&score, &reason, &policyHash, &meta, &signature); err != nil {
		return audit.Record{Err: fmt.Errorf("scan: %w", err)}
	}

	e := audit.Entry{
		ID:         uint64(id),
		Timestamp:  ts,
		ActionID:   actionID,
		ActorID:    actorID,
		Role:       model.Role(role),
		Action:     model.ActionKind(action),
		Resource:   resource,
		Decision:   model.Decision(decision),
		RiskScore:  score,
		Reason:     reason,
		PolicyHash: policyHash,
		Signature:  signature,
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
			return audit.Record{Entry: e, Err: fmt.Errorf("metadata: %w", err)}
		}
	}
	return audit.Record{Entry: e}
}

func (s *Store) Close() error {
	return s.db.Close()
}
