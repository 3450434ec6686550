// Package store persists tenants, indicator history, connection health and
// dashboard profiles.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lpde-tools/ledger-indicators/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = eris.New("store: not found")

// Store defines the persistence interface for tenants and their results.
type Store interface {
	// Tenants
	CreateTenant(ctx context.Context, t *model.Tenant) error
	UpdateTenant(ctx context.Context, t *model.Tenant) error
	GetTenant(ctx context.Context, id string) (*model.Tenant, error)
	GetTenantByName(ctx context.Context, name string) (*model.Tenant, error)
	ListTenants(ctx context.Context) ([]model.Tenant, error)
	// DeleteTenant removes a tenant together with its history and status.
	DeleteTenant(ctx context.Context, id string) error

	// Firm singleton
	GetFirmConfig(ctx context.Context) (*model.FirmConfig, error)
	SetFirmConfig(ctx context.Context, conn model.Connection) (*model.FirmConfig, error)

	// Indicator history, append-only
	InsertIndicator(ctx context.Context, rec *model.IndicatorRecord) error
	LatestRunTimestamp(ctx context.Context, vis model.Visibility) (time.Time, bool, error)
	ListIndicatorsByRun(ctx context.Context, ts time.Time, vis model.Visibility) ([]model.IndicatorRecord, error)
	DistinctIndicatorValues(ctx context.Context, name string, vis model.Visibility) ([]string, error)
	DistinctCollaborators(ctx context.Context, vis model.Visibility) ([]model.Collaborator, error)

	// Connection status, one row per tenant
	UpsertConnectionStatus(ctx context.Context, st model.ConnectionStatus) error
	ListConnectionStatuses(ctx context.Context) ([]model.ConnectionStatus, error)

	// Dashboard profiles
	UpsertProfile(ctx context.Context, p model.Profile) error
	GetProfile(ctx context.Context, username string) (*model.Profile, error)
	ListProfiles(ctx context.Context) ([]model.Profile, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// firmConfigID is the fixed key of the single firm configuration row.
const firmConfigID = "firm"

// Timestamps are stored with microsecond precision, the finest Postgres keeps.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func validateTenant(t *model.Tenant) error {
	switch {
	case t == nil:
		return eris.New("store: nil tenant")
	case t.Name == "":
		return eris.New("store: tenant name is required")
	case t.Connection.URL == "":
		return eris.New("store: tenant url is required")
	case t.Connection.Database == "":
		return eris.New("store: tenant database is required")
	case t.Connection.Username == "":
		return eris.New("store: tenant username is required")
	}
	return nil
}

func validateProfile(p model.Profile) error {
	if p.Username == "" {
		return eris.New("store: profile username is required")
	}
	if !p.Role.Valid() {
		return eris.Errorf("store: invalid role %q", p.Role)
	}
	return nil
}
