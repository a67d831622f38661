// Package managedstore is the optional Postgres-backed persistence layer
// for multi-tenant deployments — SPEC_FULL.md's "Managed Store": backend
// server configs and per-user category access grants only. Sessions,
// detection results, and planning decisions are never persisted here —
// that would violate the explicit Non-goal of cross-restart session
// state (spec §9's redesign note).
//
// Grounded in the teacher's internal/store/pg package idiom: database/sql
// over the pgx stdlib driver, explicit column lists, small scan helpers —
// trimmed to the two tables this hub actually needs instead of the
// teacher's full multi-tenant team/agent/provider schema.
package managedstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/tsphub/internal/config"
)

// BackendRecord is one configured back-end TSP server as stored in the
// managed database — the persisted form of config.BackendConfig.
type BackendRecord struct {
	ID         uuid.UUID
	Name       string
	Transport  string
	Command    string
	Args       []string
	Env        map[string]string
	URL        string
	Headers    map[string]string
	ToolPrefix string
	Enabled    bool
	TimeoutSec int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ToBackendConfig converts a stored record into the config.BackendConfig
// the Router consumes — the Managed Store's only touchpoint with the
// rest of the hub.
func (b BackendRecord) ToBackendConfig() *config.BackendConfig {
	enabled := b.Enabled
	return &config.BackendConfig{
		Name:       b.Name,
		Transport:  b.Transport,
		Command:    b.Command,
		Args:       b.Args,
		Env:        b.Env,
		URL:        b.URL,
		Headers:    b.Headers,
		ToolPrefix: b.ToolPrefix,
		Enabled:    &enabled,
		TimeoutSec: b.TimeoutSec,
	}
}

// GrantRecord is one user's standing permission to use tools in a
// category — SPEC_FULL.md's "access grants" half of the Managed Store.
// Grants are stored and read back through Grant/Revoke/
// GrantedCategories only; the Front Door's ListTools and CallTool do not
// consult them, so a LoadDecision is not filtered by user grants.
type GrantRecord struct {
	ID        uuid.UUID
	UserID    string
	Category  string
	CreatedAt time.Time
}

// Store is the managed-mode persistence handle — absent entirely in
// single-tenant deployments (HUB_POSTGRES_DSN unset).
type Store struct {
	db *sql.DB
}

// Open dials Postgres via the pgx stdlib driver and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open managed store: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping managed store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// UpsertBackend creates or replaces a backend server record by name.
func (s *Store) UpsertBackend(ctx context.Context, b *BackendRecord) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := time.Now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO backend_servers (id, name, transport, command, args, env, url, headers,
		 tool_prefix, enabled, timeout_sec, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		 ON CONFLICT (name) DO UPDATE SET
		   transport = EXCLUDED.transport, command = EXCLUDED.command, args = EXCLUDED.args,
		   env = EXCLUDED.env, url = EXCLUDED.url, headers = EXCLUDED.headers,
		   tool_prefix = EXCLUDED.tool_prefix, enabled = EXCLUDED.enabled,
		   timeout_sec = EXCLUDED.timeout_sec, updated_at = EXCLUDED.updated_at`,
		b.ID, b.Name, b.Transport, nilStr(b.Command), jsonOrEmpty(b.Args), jsonOrEmpty(b.Env),
		nilStr(b.URL), jsonOrEmpty(b.Headers), nilStr(b.ToolPrefix), b.Enabled, b.TimeoutSec,
		b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// ListBackends returns every stored backend record, for startup wiring
// alongside (not instead of) file/env-configured backends.
func (s *Store) ListBackends(ctx context.Context) ([]BackendRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, transport, command, args, env, url, headers,
		 tool_prefix, enabled, timeout_sec, created_at, updated_at
		 FROM backend_servers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BackendRecord
	for rows.Next() {
		var b BackendRecord
		var command, url, toolPrefix *string
		var argsRaw, envRaw, headersRaw []byte
		if err := rows.Scan(&b.ID, &b.Name, &b.Transport, &command, &argsRaw, &envRaw,
			&url, &headersRaw, &toolPrefix, &b.Enabled, &b.TimeoutSec, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.Command = derefStr(command)
		b.URL = derefStr(url)
		b.ToolPrefix = derefStr(toolPrefix)
		_ = json.Unmarshal(argsRaw, &b.Args)
		_ = json.Unmarshal(envRaw, &b.Env)
		_ = json.Unmarshal(headersRaw, &b.Headers)
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBackend removes a stored backend record by name.
func (s *Store) DeleteBackend(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM backend_servers WHERE name = $1`, name)
	return err
}

// Grant records that userID may use tools in category — idempotent.
func (s *Store) Grant(ctx context.Context, userID, category string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_grants (id, user_id, category, created_at)
		 VALUES ($1,$2,$3,$4) ON CONFLICT (user_id, category) DO NOTHING`,
		uuid.New(), userID, category, time.Now())
	return err
}

// Revoke removes a standing grant.
func (s *Store) Revoke(ctx context.Context, userID, category string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM access_grants WHERE user_id = $1 AND category = $2`, userID, category)
	return err
}

// GrantedCategories returns every category userID is permitted to use.
// An empty result with no error means the user has no standing grants —
// callers in single-tenant deployments never call this at all.
func (s *Store) GrantedCategories(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category FROM access_grants WHERE user_id = $1 ORDER BY category`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nilStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func jsonOrEmpty(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}
