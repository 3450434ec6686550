package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
	"github.com/lpde-tools/ledger-indicators/internal/model"
)

func TestFormatRunSummary(t *testing.T) {
	ts := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
	s := &collector.RunSummary{
		RunTimestamp:  ts,
		FirmAvailable: true,
		Tenants: []collector.TenantOutcome{
			{TenantName: "acme", Status: collector.TenantConnected, Version: "16.0", Collaborator: model.Collaborator{ID: "44", Name: "LPDE, Alice MARTIN"}, Persisted: 17},
			{TenantName: "beta", Status: collector.TenantAuthFailed, Version: "17.0", Error: "odoo: authentication failed for api@beta"},
		},
	}

	var buf bytes.Buffer
	formatRunSummary(&buf, s)
	out := buf.String()
	assert.Contains(t, out, "TENANT")
	assert.Contains(t, out, "acme")
	assert.Contains(t, out, "LPDE, Alice MARTIN")
	assert.Contains(t, out, "auth_failed")
	assert.Contains(t, out, "odoo: authentication failed")
	assert.Contains(t, out, "Run 2026-05-01T05:00:00Z: 2 tenants, 1 connected, 1 failed, 17 indicators persisted")
	assert.NotContains(t, out, "firm unavailable")
}

func TestFormatRunSummary_FirmUnavailable(t *testing.T) {
	var buf bytes.Buffer
	formatRunSummary(&buf, &collector.RunSummary{Tenants: []collector.TenantOutcome{{TenantName: "acme", PersistErrors: 2}}})
	assert.Contains(t, buf.String(), "2 persist errors")
	assert.Contains(t, buf.String(), "firm unavailable")
}

func TestFormatTenants(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 15, 0, 0, time.UTC)
	tenants := []model.Tenant{
		{Name: "acme", Connection: model.Connection{URL: "https://acme.odoo.com", Database: "acme", Username: "api", EncryptedAPIKey: "sealed"}, UpdatedAt: now},
		{Name: "beta", Connection: model.Connection{URL: "https://beta.odoo.com", Database: "beta", Username: "api"}, UpdatedAt: now},
	}

	var buf bytes.Buffer
	formatTenants(&buf, tenants)
	out := buf.String()
	assert.Contains(t, out, "https://acme.odoo.com")
	assert.Contains(t, out, "set")
	assert.Contains(t, out, "missing")
	assert.Contains(t, out, "2026-04-02 08:15")
	assert.NotContains(t, out, "sealed")
}

func TestFormatStatuses(t *testing.T) {
	msg := "odoo: connection refused"
	var buf bytes.Buffer
	formatStatuses(&buf, []model.ConnectionStatus{
		{TenantName: "acme", ConnectionSuccessful: true},
		{TenantName: "beta", LastErrorMessage: &msg},
	})
	out := buf.String()
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "odoo: connection refused")
	assert.Contains(t, out, "-")
}

func TestFormatProfiles(t *testing.T) {
	var buf bytes.Buffer
	formatProfiles(&buf, []model.Profile{
		{Username: "root", Role: model.RoleAdmin},
		{Username: "alice", Role: model.RoleCollaborator, CollaboratorID: "44"},
	})
	out := buf.String()
	assert.Contains(t, out, "admin")
	assert.Contains(t, out, "collaborator")
	assert.Contains(t, out, "44")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
}
