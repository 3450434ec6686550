package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpde-tools/ledger-indicators/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func newTenant(name string) *model.Tenant {
	return &model.Tenant{
		Name: name,
		Connection: model.Connection{
			URL:             "https://" + name + ".example.com",
			Database:        name + "-db",
			Username:        "bot@" + name + ".example.com",
			EncryptedAPIKey: "enc-" + name,
		},
	}
}

func record(tenant *model.Tenant, name, value string, ts time.Time, c model.Collaborator) *model.IndicatorRecord {
	return &model.IndicatorRecord{
		TenantID:            tenant.ID,
		Name:                name,
		Value:               value,
		ExtractionTimestamp: ts,
		Collaborator:        c,
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	alice := model.Collaborator{ID: "44", Name: "LPDE, Alice MARTIN"}
	bob := model.Collaborator{ID: "45", Name: "LPDE, Bob PETIT"}

	t.Run("CreateAndGetTenant", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tn := newTenant("acme")
		require.NoError(t, s.CreateTenant(ctx, tn))
		assert.NotEmpty(t, tn.ID)
		assert.False(t, tn.CreatedAt.IsZero())

		got, err := s.GetTenant(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, tn.Name, got.Name)
		assert.Equal(t, tn.Connection, got.Connection)
		assert.True(t, tn.CreatedAt.Equal(got.CreatedAt))

		byName, err := s.GetTenantByName(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, tn.ID, byName.ID)
	})

	t.Run("TenantValidationAndUniqueness", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		assert.Error(t, s.CreateTenant(ctx, &model.Tenant{Name: "x"}))
		require.NoError(t, s.CreateTenant(ctx, newTenant("dup")))
		assert.Error(t, s.CreateTenant(ctx, newTenant("dup")))
	})

	t.Run("GetTenant_NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetTenant(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetTenantByName(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UpdateTenant", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		tn := newTenant("acme")
		require.NoError(t, s.CreateTenant(ctx, tn))
		tn.Connection.URL = "https://new.example.com"
		tn.Connection.EncryptedAPIKey = "rotated"
		require.NoError(t, s.UpdateTenant(ctx, tn))

		got, err := s.GetTenant(ctx, tn.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://new.example.com", got.Connection.URL)
		assert.Equal(t, "rotated", got.Connection.EncryptedAPIKey)

		missing := newTenant("ghost")
		missing.ID = "nope"
		assert.ErrorIs(t, s.UpdateTenant(ctx, missing), ErrNotFound)
	})

	t.Run("ListTenantsOrdered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, n := range []string{"zeta", "alpha", "mid"} {
			require.NoError(t, s.CreateTenant(ctx, newTenant(n)))
		}
		list, err := s.ListTenants(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "alpha", list[0].Name)
		assert.Equal(t, "zeta", list[2].Name)
	})

	t.Run("DeleteTenantCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ts := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)

		keep, drop := newTenant("keep"), newTenant("drop")
		require.NoError(t, s.CreateTenant(ctx, keep))
		require.NoError(t, s.CreateTenant(ctx, drop))
		require.NoError(t, s.InsertIndicator(ctx, record(keep, "active users", "3", ts, alice)))
		require.NoError(t, s.InsertIndicator(ctx, record(drop, "active users", "5", ts, alice)))
		require.NoError(t, s.UpsertConnectionStatus(ctx, model.ConnectionStatus{TenantID: drop.ID, LastConnectionAttempt: ts, ConnectionSuccessful: true}))

		require.NoError(t, s.DeleteTenant(ctx, drop.ID))
		assert.ErrorIs(t, s.DeleteTenant(ctx, drop.ID), ErrNotFound)

		recs, err := s.ListIndicatorsByRun(ctx, ts, model.Visibility{All: true})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, keep.ID, recs[0].TenantID)

		statuses, err := s.ListConnectionStatuses(ctx)
		require.NoError(t, err)
		assert.Empty(t, statuses)
	})

	t.Run("FirmSingleton", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetFirmConfig(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = s.SetFirmConfig(ctx, model.Connection{URL: "https://firm", Database: "firm", Username: "a", EncryptedAPIKey: "k1"})
		require.NoError(t, err)
		_, err = s.SetFirmConfig(ctx, model.Connection{URL: "https://firm2", Database: "firm", Username: "b", EncryptedAPIKey: "k2"})
		require.NoError(t, err)

		f, err := s.GetFirmConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "https://firm2", f.Connection.URL)
		assert.Equal(t, "k2", f.Connection.EncryptedAPIKey)
	})

	t.Run("LatestRunAndVisibility", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		older := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
		newer := older.Add(24*time.Hour + 123456*time.Nanosecond)

		a, b := newTenant("a"), newTenant("b")
		require.NoError(t, s.CreateTenant(ctx, a))
		require.NoError(t, s.CreateTenant(ctx, b))
		require.NoError(t, s.InsertIndicator(ctx, record(a, "active users", "3", older, alice)))
		require.NoError(t, s.InsertIndicator(ctx, record(a, "active users", "4", newer, alice)))
		require.NoError(t, s.InsertIndicator(ctx, record(b, "active users", "9", older, bob)))

		ts, ok, err := s.LatestRunTimestamp(ctx, model.Visibility{All: true})
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, newer.Truncate(time.Microsecond).Equal(ts))

		ts, ok, err = s.LatestRunTimestamp(ctx, model.Visibility{CollaboratorID: bob.ID})
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, older.Equal(ts))

		_, ok, err = s.LatestRunTimestamp(ctx, model.Visibility{})
		require.NoError(t, err)
		assert.False(t, ok)

		recs, err := s.ListIndicatorsByRun(ctx, newer, model.Visibility{All: true})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "4", recs[0].Value)
		assert.Equal(t, "a", recs[0].TenantName)
		assert.Equal(t, alice, recs[0].Collaborator)

		recs, err = s.ListIndicatorsByRun(ctx, older, model.Visibility{CollaboratorID: bob.ID})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, b.ID, recs[0].TenantID)

		recs, err = s.ListIndicatorsByRun(ctx, older, model.Visibility{})
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("LatestRun_Empty", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.LatestRunTimestamp(context.Background(), model.Visibility{All: true})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("AppendOnlyHistory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		first := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
		second := first.Add(time.Hour)

		a := newTenant("a")
		require.NoError(t, s.CreateTenant(ctx, a))
		require.NoError(t, s.InsertIndicator(ctx, record(a, "active users", "3", first, alice)))
		require.NoError(t, s.InsertIndicator(ctx, record(a, "active users", "3", second, alice)))

		for _, ts := range []time.Time{first, second} {
			recs, err := s.ListIndicatorsByRun(ctx, ts, model.Visibility{All: true})
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		}
	})

	t.Run("DistinctValuesAndCollaborators", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		ts := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)

		a, b, c := newTenant("a"), newTenant("b"), newTenant("c")
		for _, tn := range []*model.Tenant{a, b, c} {
			require.NoError(t, s.CreateTenant(ctx, tn))
		}
		require.NoError(t, s.InsertIndicator(ctx, record(a, "annual closing date", "31/12", ts, alice)))
		require.NoError(t, s.InsertIndicator(ctx, record(b, "annual closing date", "30/06", ts, bob)))
		require.NoError(t, s.InsertIndicator(ctx, record(c, "annual closing date", "31/12", ts, model.UnassignedCollaborator)))

		vals, err := s.DistinctIndicatorValues(ctx, "annual closing date", model.Visibility{All: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"30/06", "31/12"}, vals)

		vals, err = s.DistinctIndicatorValues(ctx, "annual closing date", model.Visibility{CollaboratorID: bob.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{"30/06"}, vals)

		collabs, err := s.DistinctCollaborators(ctx, model.Visibility{All: true})
		require.NoError(t, err)
		assert.Equal(t, []model.Collaborator{alice, bob}, collabs)

		collabs, err = s.DistinctCollaborators(ctx, model.Visibility{})
		require.NoError(t, err)
		assert.Empty(t, collabs)
	})

	t.Run("ConnectionStatusUpsert", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		a := newTenant("a")
		require.NoError(t, s.CreateTenant(ctx, a))

		msg := "odoo: connection refused"
		first := time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
		require.NoError(t, s.UpsertConnectionStatus(ctx, model.ConnectionStatus{
			TenantID: a.ID, LastConnectionAttempt: first, ConnectionSuccessful: false, LastErrorMessage: &msg,
		}))
		second := first.Add(time.Hour)
		require.NoError(t, s.UpsertConnectionStatus(ctx, model.ConnectionStatus{
			TenantID: a.ID, LastConnectionAttempt: second, ConnectionSuccessful: true,
		}))

		list, err := s.ListConnectionStatuses(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].ConnectionSuccessful)
		assert.Nil(t, list[0].LastErrorMessage)
		assert.True(t, second.Equal(list[0].LastConnectionAttempt))
		assert.Equal(t, "a", list[0].TenantName)
	})

	t.Run("Profiles", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.UpsertProfile(ctx, model.Profile{Username: "marie", Role: model.RoleCollaborator, CollaboratorID: "44"}))
		require.NoError(t, s.UpsertProfile(ctx, model.Profile{Username: "admin", Role: model.RoleAdmin}))
		require.NoError(t, s.UpsertProfile(ctx, model.Profile{Username: "marie", Role: model.RoleCollaborator, CollaboratorID: "46"}))
		assert.Error(t, s.UpsertProfile(ctx, model.Profile{Username: "x", Role: "owner"}))
		assert.Error(t, s.UpsertProfile(ctx, model.Profile{Role: model.RoleAdmin}))

		p, err := s.GetProfile(ctx, "marie")
		require.NoError(t, err)
		assert.Equal(t, model.RoleCollaborator, p.Role)
		assert.Equal(t, "46", p.CollaboratorID)

		_, err = s.GetProfile(ctx, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := s.ListProfiles(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "admin", list[0].Username)
	})
}
