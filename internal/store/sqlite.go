package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lpde-tools/ledger-indicators/internal/model"
)

// Fixed-width UTC text so that lexical order and equality match time order.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS tenants (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL UNIQUE,
	url               TEXT NOT NULL,
	database_name     TEXT NOT NULL,
	username          TEXT NOT NULL,
	encrypted_api_key TEXT NOT NULL DEFAULT '',
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS firm_config (
	id                TEXT PRIMARY KEY CHECK (id = 'firm'),
	url               TEXT NOT NULL,
	database_name     TEXT NOT NULL,
	username          TEXT NOT NULL,
	encrypted_api_key TEXT NOT NULL DEFAULT '',
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS indicator_history (
	id                         TEXT PRIMARY KEY,
	tenant_id                  TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
	indicator_name             TEXT NOT NULL,
	indicator_value            TEXT NOT NULL,
	extraction_timestamp       TEXT NOT NULL,
	assigned_collaborator_id   TEXT NOT NULL DEFAULT '0',
	assigned_collaborator_name TEXT NOT NULL DEFAULT 'N/A'
);

CREATE INDEX IF NOT EXISTS idx_indicator_history_tenant_ts ON indicator_history(tenant_id, extraction_timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_indicator_history_ts ON indicator_history(extraction_timestamp);
CREATE INDEX IF NOT EXISTS idx_indicator_history_collaborator ON indicator_history(assigned_collaborator_id);
CREATE INDEX IF NOT EXISTS idx_indicator_history_name ON indicator_history(indicator_name);

CREATE TABLE IF NOT EXISTS connection_status (
	tenant_id               TEXT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
	last_connection_attempt TEXT NOT NULL,
	connection_successful   INTEGER NOT NULL DEFAULT 0,
	last_error_message      TEXT
);

CREATE TABLE IF NOT EXISTS user_profiles (
	username        TEXT PRIMARY KEY,
	role            TEXT NOT NULL,
	collaborator_id TEXT NOT NULL DEFAULT ''
);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return normalizeTime(t).Format(sqliteTimeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(sqliteTimeLayout, s, time.UTC)
	return t, eris.Wrapf(err, "sqlite: parse time %q", s)
}

// --- Tenants ---

func (s *SQLiteStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if err := validateTenant(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := normalizeTime(time.Now())
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Connection.URL, t.Connection.Database, t.Connection.Username,
		t.Connection.EncryptedAPIKey, formatTime(now), formatTime(now),
	)
	return eris.Wrapf(err, "sqlite: insert tenant %s", t.Name)
}

func (s *SQLiteStore) UpdateTenant(ctx context.Context, t *model.Tenant) error {
	if err := validateTenant(t); err != nil {
		return err
	}
	t.UpdatedAt = normalizeTime(time.Now())

	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET name = ?, url = ?, database_name = ?, username = ?, encrypted_api_key = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Connection.URL, t.Connection.Database, t.Connection.Username,
		t.Connection.EncryptedAPIKey, formatTime(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update tenant %s", t.ID)
	}
	return checkRowsAffected(res, "tenant", t.ID)
}

func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*model.Tenant, error) {
	t, err := scanSQLiteTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "tenant %s", id)
	}
	return t, eris.Wrapf(err, "sqlite: get tenant %s", id)
}

func (s *SQLiteStore) GetTenantByName(ctx context.Context, name string) (*model.Tenant, error) {
	t, err := scanSQLiteTenant(s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "tenant %s", name)
	}
	return t, eris.Wrapf(err, "sqlite: get tenant %s", name)
}

func (s *SQLiteStore) ListTenants(ctx context.Context) ([]model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tenants")
	}
	defer rows.Close()

	var out []model.Tenant
	for rows.Next() {
		t, err := scanSQLiteTenant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tenant")
		}
		out = append(out, *t)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list tenants")
}

func (s *SQLiteStore) DeleteTenant(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete tenant %s", id)
	}
	return checkRowsAffected(res, "tenant", id)
}

// --- Firm ---

func (s *SQLiteStore) GetFirmConfig(ctx context.Context) (*model.FirmConfig, error) {
	var f model.FirmConfig
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, database_name, username, encrypted_api_key, updated_at FROM firm_config WHERE id = ?`,
		firmConfigID,
	).Scan(&f.ID, &f.Connection.URL, &f.Connection.Database, &f.Connection.Username, &f.Connection.EncryptedAPIKey, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "firm config")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get firm config")
	}
	if f.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStore) SetFirmConfig(ctx context.Context, conn model.Connection) (*model.FirmConfig, error) {
	now := normalizeTime(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO firm_config (id, url, database_name, username, encrypted_api_key, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET url = excluded.url, database_name = excluded.database_name,
			username = excluded.username, encrypted_api_key = excluded.encrypted_api_key, updated_at = excluded.updated_at`,
		firmConfigID, conn.URL, conn.Database, conn.Username, conn.EncryptedAPIKey, formatTime(now),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: set firm config")
	}
	return &model.FirmConfig{ID: firmConfigID, Connection: conn, UpdatedAt: now}, nil
}

// --- Indicators ---

func (s *SQLiteStore) InsertIndicator(ctx context.Context, rec *model.IndicatorRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.ExtractionTimestamp = normalizeTime(rec.ExtractionTimestamp)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indicator_history (id, tenant_id, indicator_name, indicator_value, extraction_timestamp, assigned_collaborator_id, assigned_collaborator_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.Name, rec.Value, formatTime(rec.ExtractionTimestamp), rec.Collaborator.ID, rec.Collaborator.Name,
	)
	return eris.Wrapf(err, "sqlite: insert indicator %s", rec.Name)
}

func sqliteVisibility(vis model.Visibility, args []any) (string, []any) {
	if vis.All {
		return "", args
	}
	return " AND h.assigned_collaborator_id = ?", append(args, vis.CollaboratorID)
}

func (s *SQLiteStore) LatestRunTimestamp(ctx context.Context, vis model.Visibility) (time.Time, bool, error) {
	if vis.None() {
		return time.Time{}, false, nil
	}
	clause, args := sqliteVisibility(vis, nil)

	var ts sql.NullString
	if err := s.db.QueryRowContext(ctx,
		`SELECT max(h.extraction_timestamp) FROM indicator_history h WHERE 1 = 1`+clause, args...,
	).Scan(&ts); err != nil {
		return time.Time{}, false, eris.Wrap(err, "sqlite: latest run timestamp")
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	t, err := parseTime(ts.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *SQLiteStore) ListIndicatorsByRun(ctx context.Context, ts time.Time, vis model.Visibility) ([]model.IndicatorRecord, error) {
	if vis.None() {
		return nil, nil
	}
	clause, args := sqliteVisibility(vis, []any{formatTime(ts)})

	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.tenant_id, t.name, h.indicator_name, h.indicator_value, h.extraction_timestamp,
			h.assigned_collaborator_id, h.assigned_collaborator_name
		FROM indicator_history h JOIN tenants t ON t.id = h.tenant_id
		WHERE h.extraction_timestamp = ?`+clause+`
		ORDER BY t.name, h.indicator_name`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list indicators")
	}
	defer rows.Close()

	var out []model.IndicatorRecord
	for rows.Next() {
		var r model.IndicatorRecord
		var stamp string
		if err := rows.Scan(&r.ID, &r.TenantID, &r.TenantName, &r.Name, &r.Value, &stamp,
			&r.Collaborator.ID, &r.Collaborator.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan indicator")
		}
		if r.ExtractionTimestamp, err = parseTime(stamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list indicators")
}

func (s *SQLiteStore) DistinctIndicatorValues(ctx context.Context, name string, vis model.Visibility) ([]string, error) {
	if vis.None() {
		return nil, nil
	}
	clause, args := sqliteVisibility(vis, []any{name})

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT h.indicator_value FROM indicator_history h WHERE h.indicator_name = ?`+clause+` ORDER BY h.indicator_value`,
		args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: distinct values of %s", name)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan value")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: distinct values")
}

func (s *SQLiteStore) DistinctCollaborators(ctx context.Context, vis model.Visibility) ([]model.Collaborator, error) {
	if vis.None() {
		return nil, nil
	}
	clause, args := sqliteVisibility(vis, []any{model.UnassignedCollaborator.Name})

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT h.assigned_collaborator_id, h.assigned_collaborator_name FROM indicator_history h
		WHERE h.assigned_collaborator_name <> '' AND h.assigned_collaborator_name <> ?`+clause+`
		ORDER BY h.assigned_collaborator_name, h.assigned_collaborator_id`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: distinct collaborators")
	}
	defer rows.Close()

	var out []model.Collaborator
	for rows.Next() {
		var c model.Collaborator
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan collaborator")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: distinct collaborators")
}

// --- Connection status ---

func (s *SQLiteStore) UpsertConnectionStatus(ctx context.Context, st model.ConnectionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connection_status (tenant_id, last_connection_attempt, connection_successful, last_error_message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET last_connection_attempt = excluded.last_connection_attempt,
			connection_successful = excluded.connection_successful, last_error_message = excluded.last_error_message`,
		st.TenantID, formatTime(st.LastConnectionAttempt), st.ConnectionSuccessful, st.LastErrorMessage,
	)
	return eris.Wrapf(err, "sqlite: upsert status %s", st.TenantID)
}

func (s *SQLiteStore) ListConnectionStatuses(ctx context.Context) ([]model.ConnectionStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.tenant_id, t.name, s.last_connection_attempt, s.connection_successful, s.last_error_message
		FROM connection_status s JOIN tenants t ON t.id = s.tenant_id
		ORDER BY t.name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list statuses")
	}
	defer rows.Close()

	var out []model.ConnectionStatus
	for rows.Next() {
		var st model.ConnectionStatus
		var attempt string
		var msg sql.NullString
		if err := rows.Scan(&st.TenantID, &st.TenantName, &attempt, &st.ConnectionSuccessful, &msg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status")
		}
		if st.LastConnectionAttempt, err = parseTime(attempt); err != nil {
			return nil, err
		}
		if msg.Valid {
			st.LastErrorMessage = &msg.String
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list statuses")
}

// --- Profiles ---

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p model.Profile) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (username, role, collaborator_id) VALUES (?, ?, ?)
		ON CONFLICT (username) DO UPDATE SET role = excluded.role, collaborator_id = excluded.collaborator_id`,
		p.Username, string(p.Role), p.CollaboratorID,
	)
	return eris.Wrapf(err, "sqlite: upsert profile %s", p.Username)
}

func (s *SQLiteStore) GetProfile(ctx context.Context, username string) (*model.Profile, error) {
	var p model.Profile
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT username, role, collaborator_id FROM user_profiles WHERE username = ?`, username,
	).Scan(&p.Username, &role, &p.CollaboratorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "profile %s", username)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get profile %s", username)
	}
	p.Role = model.Role(role)
	return &p, nil
}

func (s *SQLiteStore) ListProfiles(ctx context.Context) ([]model.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, role, collaborator_id FROM user_profiles ORDER BY username`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list profiles")
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		var p model.Profile
		var role string
		if err := rows.Scan(&p.Username, &role, &p.CollaboratorID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		p.Role = model.Role(role)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list profiles")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanSQLiteTenant(row scannable) (*model.Tenant, error) {
	var t model.Tenant
	var created, updated string
	if err := row.Scan(&t.ID, &t.Name, &t.Connection.URL, &t.Connection.Database, &t.Connection.Username,
		&t.Connection.EncryptedAPIKey, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &t, nil
}
