package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
	"github.com/lpde-tools/ledger-indicators/internal/config"
	"github.com/lpde-tools/ledger-indicators/internal/dashboard"
	"github.com/lpde-tools/ledger-indicators/internal/indicator"
	"github.com/lpde-tools/ledger-indicators/internal/metrics"
	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

type stubRunner struct {
	summary *collector.RunSummary
	err     error
	calls   int
}

func (s *stubRunner) Run(context.Context) (*collector.RunSummary, error) {
	s.calls++
	return s.summary, s.err
}

type testEnv struct {
	handler http.Handler
	issuer  *Issuer
	runner  *stubRunner
	store   store.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	require.NoError(t, st.UpsertProfile(ctx, model.Profile{Username: "root", Role: model.RoleAdmin}))
	require.NoError(t, st.UpsertProfile(ctx, model.Profile{Username: "alice", Role: model.RoleCollaborator, CollaboratorID: "44"}))

	tn := &model.Tenant{Name: "acme", Connection: model.Connection{URL: "https://acme", Database: "acme", Username: "api"}}
	require.NoError(t, st.CreateTenant(ctx, tn))
	ts := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
	require.NoError(t, st.InsertIndicator(ctx, &model.IndicatorRecord{
		TenantID: tn.ID, Name: indicator.NameActiveUsers, Value: "4", ExtractionTimestamp: ts,
		Collaborator: model.Collaborator{ID: "44", Name: "LPDE, Alice MARTIN"},
	}))
	msg := "odoo: connection refused by https://acme"
	require.NoError(t, st.UpsertConnectionStatus(ctx, model.ConnectionStatus{
		TenantID: tn.ID, LastConnectionAttempt: ts, LastErrorMessage: &msg,
	}))

	issuer, err := NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	runner := &stubRunner{summary: &collector.RunSummary{
		RunTimestamp: ts,
		Tenants:      []collector.TenantOutcome{{TenantName: "acme", Status: collector.TenantConnected, Persisted: 3}},
	}}
	srv := NewServer(Deps{
		Store:     st,
		Dashboard: dashboard.NewService(st, config.DefaultCategories()),
		Runner:    runner,
		Issuer:    issuer,
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
		Origins:   []string{"https://dash.example.com"},
	})
	return &testEnv{handler: srv.Router(), issuer: issuer, runner: runner, store: st}
}

func (e *testEnv) token(t *testing.T, username string, role model.Role) string {
	t.Helper()
	tok, err := e.issuer.Issue(model.Profile{Username: username, Role: role})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/health", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledger_http_requests_total")
}

func TestDashboard_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/dashboard", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/dashboard", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewIssuer("other-secret", time.Hour)
	require.NoError(t, err)
	forged, err := other.Issue(model.Profile{Username: "root", Role: model.RoleAdmin})
	require.NoError(t, err)
	rec = env.do(t, http.MethodGet, "/api/dashboard", forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDashboard_ByRole(t *testing.T) {
	env := newTestEnv(t)

	var v dashboard.View
	rec := env.do(t, http.MethodGet, "/api/dashboard", env.token(t, "alice", model.RoleCollaborator))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "4", v.Rows[0].Values[indicator.NameActiveUsers])
	assert.Equal(t, "Alice MARTIN", v.Rows[0].CollaboratorDisplay)

	// A valid token for a user with no stored profile sees nothing.
	rec = env.do(t, http.MethodGet, "/api/dashboard", env.token(t, "stranger", model.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	v = dashboard.View{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Empty(t, v.Rows)
	assert.Nil(t, v.LatestRun)
}

func TestDashboard_Filters(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/dashboard?category=Other", env.token(t, "root", model.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)

	var v dashboard.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, "Other", v.Filters.Category)
	assert.Empty(t, v.Columns)
	assert.True(t, v.ShowCollaborator)
	assert.Len(t, v.Rows, 1)
}

func TestStatus_AdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/status", env.token(t, "alice", model.RoleCollaborator))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/status", env.token(t, "root", model.RoleAdmin))
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []statusRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "acme", rows[0].TenantName)
	assert.False(t, rows[0].ConnectionSuccessful)
	assert.Equal(t, "odoo: connection refused by https://acme", rows[0].ErrorSummary)
}

func TestTriggerRun(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, "root", model.RoleAdmin)

	t.Run("collaborator forbidden", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/runs", env.token(t, "alice", model.RoleCollaborator))
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 0, env.runner.calls)
	})

	t.Run("completed", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/runs", admin)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp runResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, 1, resp.Connected)
		assert.Equal(t, 3, resp.Persisted)
	})

	t.Run("overlap", func(t *testing.T) {
		env.runner.err = collector.ErrRunInProgress
		rec := env.do(t, http.MethodPost, "/api/runs", admin)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("no firm config", func(t *testing.T) {
		env.runner.err = model.ErrNoFirmConfig
		rec := env.do(t, http.MethodPost, "/api/runs", admin)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("get not allowed", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/runs", admin)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/dashboard", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(strings.ToLower(rec.Header().Get("Access-Control-Allow-Headers")), "authorization"))
}
