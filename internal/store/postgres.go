package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lpde-tools/ledger-indicators/internal/db"
	"github.com/lpde-tools/ledger-indicators/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	url               TEXT NOT NULL,
	database_name     TEXT NOT NULL,
	username          TEXT NOT NULL,
	encrypted_api_key TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS firm_config (
	id                TEXT PRIMARY KEY CHECK (id = 'firm'),
	url               TEXT NOT NULL,
	database_name     TEXT NOT NULL,
	username          TEXT NOT NULL,
	encrypted_api_key TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS indicator_history (
	id                         TEXT PRIMARY KEY,
	tenant_id                  TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	indicator_name             TEXT NOT NULL,
	indicator_value            TEXT NOT NULL,
	extraction_timestamp       TIMESTAMPTZ NOT NULL,
	assigned_collaborator_id   TEXT NOT NULL DEFAULT '0',
	assigned_collaborator_name TEXT NOT NULL DEFAULT 'N/A'
);

CREATE INDEX IF NOT EXISTS idx_indicator_history_tenant_ts ON indicator_history(tenant_id, extraction_timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_indicator_history_ts ON indicator_history(extraction_timestamp);
CREATE INDEX IF NOT EXISTS idx_indicator_history_collaborator ON indicator_history(assigned_collaborator_id);
CREATE INDEX IF NOT EXISTS idx_indicator_history_name ON indicator_history(indicator_name);

CREATE TABLE IF NOT EXISTS connection_status (
	tenant_id               TEXT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
	last_connection_attempt TIMESTAMPTZ NOT NULL,
	connection_successful   BOOLEAN NOT NULL DEFAULT false,
	last_error_message      TEXT
);

CREATE TABLE IF NOT EXISTS user_profiles (
	username        TEXT PRIMARY KEY,
	role            TEXT NOT NULL,
	collaborator_id TEXT NOT NULL DEFAULT ''
);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Tenants ---

const tenantColumns = `id, name, url, database_name, username, encrypted_api_key, created_at, updated_at`

func (s *PostgresStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if err := validateTenant(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := normalizeTime(time.Now())
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, t.Connection.URL, t.Connection.Database, t.Connection.Username,
		t.Connection.EncryptedAPIKey, t.CreatedAt, t.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert tenant %s", t.Name)
}

func (s *PostgresStore) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	if err := validateTenant(t); err != nil {
		return err
	}
	t.UpdatedAt = normalizeTime(time.Now())

	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET name = $1, url = $2, database_name = $3, username = $4, encrypted_api_key = $5, updated_at = $6 WHERE id = $7`,
		t.Name, t.Connection.URL, t.Connection.Database, t.Connection.Username,
		t.Connection.EncryptedAPIKey, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update tenant %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "tenant %s", t.ID)
	}
	return nil
}

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "tenant %s", id)
	}
	return t, eris.Wrapf(err, "postgres: get tenant %s", id)
}

func (s *PostgresStore) GetTenantByName(ctx context.Context, name string) (*model.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE name = $1`, name)
	t, err := scanTenant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "tenant %s", name)
	}
	return t, eris.Wrapf(err, "postgres: get tenant %s", name)
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tenants")
	}
	defer rows.Close()

	var out []model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan tenant")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list tenants")
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete tenant %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "tenant %s", id)
	}
	return nil
}

// --- Firm ---

func (s *PostgresStore) GetFirmConfig(ctx context.Context) (*model.FirmConfig, error) {
	var f model.FirmConfig
	err := s.pool.QueryRow(ctx,
		`SELECT id, url, database_name, username, encrypted_api_key, updated_at FROM firm_config WHERE id = $1`,
		firmConfigID,
	).Scan(&f.ID, &f.Connection.URL, &f.Connection.Database, &f.Connection.Username, &f.Connection.EncryptedAPIKey, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "firm config")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get firm config")
	}
	return &f, nil
}

func (s *PostgresStore) SetFirmConfig(ctx context.Context, conn model.Connection) (*model.FirmConfig, error) {
	now := normalizeTime(time.Now())
	_, err := s.pool.Exec(ctx,
		`INSERT INTO firm_config (id, url, database_name, username, encrypted_api_key, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET url = EXCLUDED.url, database_name = EXCLUDED.database_name,
			username = EXCLUDED.username, encrypted_api_key = EXCLUDED.encrypted_api_key, updated_at = EXCLUDED.updated_at`,
		firmConfigID, conn.URL, conn.Database, conn.Username, conn.EncryptedAPIKey, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: set firm config")
	}
	return &model.FirmConfig{ID: firmConfigID, Connection: conn, UpdatedAt: now}, nil
}

// --- Indicators ---

func (s *PostgresStore) InsertIndicator(ctx context.Context, rec *model.IndicatorRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.ExtractionTimestamp = normalizeTime(rec.ExtractionTimestamp)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO indicator_history (id, tenant_id, indicator_name, indicator_value, extraction_timestamp, assigned_collaborator_id, assigned_collaborator_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.TenantID, rec.Name, rec.Value, rec.ExtractionTimestamp, rec.Collaborator.ID, rec.Collaborator.Name,
	)
	return eris.Wrapf(err, "postgres: insert indicator %s", rec.Name)
}

// pgVisibility appends the collaborator restriction for vis to a WHERE clause.
func pgVisibility(vis model.Visibility, args []any) (string, []any) {
	if vis.All {
		return "", args
	}
	args = append(args, vis.CollaboratorID)
	return fmt.Sprintf(" AND h.assigned_collaborator_id = $%d", len(args)), args
}

func (s *PostgresStore) LatestRunTimestamp(ctx context.Context, vis model.Visibility) (time.Time, bool, error) {
	if vis.None() {
		return time.Time{}, false, nil
	}
	clause, args := pgVisibility(vis, nil)

	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT max(h.extraction_timestamp) FROM indicator_history h WHERE true`+clause, args...,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, eris.Wrap(err, "postgres: latest run timestamp")
	}
	if ts == nil {
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

func (s *PostgresStore) ListIndicatorsByRun(ctx context.Context, ts time.Time, vis model.Visibility) ([]model.IndicatorRecord, error) {
	if vis.None() {
		return nil, nil
	}
	clause, args := pgVisibility(vis, []any{normalizeTime(ts)})

	rows, err := s.pool.Query(ctx,
		`SELECT h.id, h.tenant_id, t.name, h.indicator_name, h.indicator_value, h.extraction_timestamp,
			h.assigned_collaborator_id, h.assigned_collaborator_name
		FROM indicator_history h JOIN tenants t ON t.id = h.tenant_id
		WHERE h.extraction_timestamp = $1`+clause+`
		ORDER BY t.name, h.indicator_name`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list indicators")
	}
	defer rows.Close()

	var out []model.IndicatorRecord
	for rows.Next() {
		var r model.IndicatorRecord
		if err := rows.Scan(&r.ID, &r.TenantID, &r.TenantName, &r.Name, &r.Value, &r.ExtractionTimestamp,
			&r.Collaborator.ID, &r.Collaborator.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan indicator")
		}
		r.ExtractionTimestamp = r.ExtractionTimestamp.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list indicators")
}

func (s *PostgresStore) DistinctIndicatorValues(ctx context.Context, name string, vis model.Visibility) ([]string, error) {
	if vis.None() {
		return nil, nil
	}
	clause, args := pgVisibility(vis, []any{name})

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT h.indicator_value FROM indicator_history h WHERE h.indicator_name = $1`+clause+` ORDER BY h.indicator_value`,
		args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: distinct values of %s", name)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "postgres: scan value")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: distinct values")
}

func (s *PostgresStore) DistinctCollaborators(ctx context.Context, vis model.Visibility) ([]model.Collaborator, error) {
	if vis.None() {
		return nil, nil
	}
	clause, args := pgVisibility(vis, []any{model.UnassignedCollaborator.Name})

	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT h.assigned_collaborator_id, h.assigned_collaborator_name FROM indicator_history h
		WHERE h.assigned_collaborator_name <> '' AND h.assigned_collaborator_name <> $1`+clause+`
		ORDER BY h.assigned_collaborator_name, h.assigned_collaborator_id`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: distinct collaborators")
	}
	defer rows.Close()

	var out []model.Collaborator
	for rows.Next() {
		var c model.Collaborator
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collaborator")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: distinct collaborators")
}

// --- Connection status ---

func (s *PostgresStore) UpsertConnectionStatus(ctx context.Context, st model.ConnectionStatus) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO connection_status (tenant_id, last_connection_attempt, connection_successful, last_error_message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id) DO UPDATE SET last_connection_attempt = EXCLUDED.last_connection_attempt,
			connection_successful = EXCLUDED.connection_successful, last_error_message = EXCLUDED.last_error_message`,
		st.TenantID, normalizeTime(st.LastConnectionAttempt), st.ConnectionSuccessful, st.LastErrorMessage,
	)
	return eris.Wrapf(err, "postgres: upsert status %s", st.TenantID)
}

func (s *PostgresStore) ListConnectionStatuses(ctx context.Context) ([]model.ConnectionStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.tenant_id, t.name, s.last_connection_attempt, s.connection_successful, s.last_error_message
		FROM connection_status s JOIN tenants t ON t.id = s.tenant_id
		ORDER BY t.name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list statuses")
	}
	defer rows.Close()

	var out []model.ConnectionStatus
	for rows.Next() {
		var st model.ConnectionStatus
		if err := rows.Scan(&st.TenantID, &st.TenantName, &st.LastConnectionAttempt, &st.ConnectionSuccessful, &st.LastErrorMessage); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status")
		}
		st.LastConnectionAttempt = st.LastConnectionAttempt.UTC()
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list statuses")
}

// --- Profiles ---

func (s *PostgresStore) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_profiles (username, role, collaborator_id) VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role, collaborator_id = EXCLUDED.collaborator_id`,
		p.Username, string(p.Role), p.CollaboratorID,
	)
	return eris.Wrapf(err, "postgres: upsert profile %s", p.Username)
}

func (s *PostgresStore) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	var p model.Profile
	var role string
	err := s.pool.QueryRow(ctx,
		`SELECT username, role, collaborator_id FROM user_profiles WHERE username = $1`, username,
	).Scan(&p.Username, &role, &p.CollaboratorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "profile %s", username)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get profile %s", username)
	}
	p.Role = model.Role(role)
	return &p, nil
}

func (s *PostgresStore) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, role, collaborator_id FROM user_profiles ORDER BY username`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list profiles")
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		var role string
		if err := rows.Scan(&p.Username, &role, &p.CollaboratorID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		p.Role = model.Role(role)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list profiles")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTenant(row scannable) (*model.Tenant, error) {
	var t model.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Connection.URL, &t.Connection.Database, &t.Connection.Username,
		&t.Connection.EncryptedAPIKey, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.CreatedAt, t.UpdatedAt = t.CreatedAt.UTC(), t.UpdatedAt.UTC()
	return &t, nil
}
