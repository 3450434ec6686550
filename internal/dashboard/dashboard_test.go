package dashboard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lpde-tools/ledger-indicators/internal/config"
	"github.com/lpde-tools/ledger-indicators/internal/indicator"
	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

var (
	alice = model.Collaborator{ID: "44", Name: "LPDE, Alice MARTIN"}
	bob   = model.Collaborator{ID: "45", Name: "LPDE, Bob PETIT"}

	admin      = &model.Profile{Username: "root", Role: model.RoleAdmin}
	aliceUser  = &model.Profile{Username: "alice", Role: model.RoleCollaborator, CollaboratorID: "44"}
	orphanUser = &model.Profile{Username: "nobody", Role: model.RoleCollaborator}

	oldRun    = time.Date(2026, 4, 30, 5, 0, 0, 0, time.UTC)
	latestRun = time.Date(2026, 5, 1, 5, 0, 0, 0, time.UTC)
)

type seeded struct {
	svc   *Service
	st    store.Store
	acme  *model.Tenant
	beta  *model.Tenant
	gamma *model.Tenant
}

func seed(t *testing.T) *seeded {
	t.Helper()
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "dash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	mk := func(name string) *model.Tenant {
		tn := &model.Tenant{Name: name, Connection: model.Connection{URL: "https://" + name, Database: name, Username: "api"}}
		require.NoError(t, st.CreateTenant(ctx, tn))
		return tn
	}
	s := &seeded{st: st, acme: mk("acme"), beta: mk("beta"), gamma: mk("gamma")}

	put := func(tn *model.Tenant, name, value string, ts time.Time, c model.Collaborator) {
		require.NoError(t, st.InsertIndicator(ctx, &model.IndicatorRecord{
			TenantID: tn.ID, Name: name, Value: value, ExtractionTimestamp: ts, Collaborator: c,
		}))
	}

	put(s.acme, indicator.NameActiveUsers, "1", oldRun, alice)

	put(s.acme, indicator.NameAnnualClosingDate, "31/12", latestRun, alice)
	put(s.acme, indicator.NameActiveUsers, "4", latestRun, alice)
	put(s.acme, indicator.NameProvisionalResult, "-1,234.50", latestRun, alice)

	put(s.beta, indicator.NameAnnualClosingDate, "30/06", latestRun, bob)
	put(s.beta, indicator.NameActiveUsers, "9", latestRun, bob)

	put(s.gamma, indicator.NameServerVersion, "16.0", latestRun, model.UnassignedCollaborator)

	s.svc = NewService(st, config.DefaultCategories())
	return s
}

func TestView_AdminSeesLatestRun(t *testing.T) {
	s := seed(t)
	v, err := s.svc.View(context.Background(), admin, Filters{})
	require.NoError(t, err)

	require.NotNil(t, v.LatestRun)
	assert.True(t, latestRun.Equal(*v.LatestRun))
	assert.Equal(t, model.RoleAdmin, v.Role)
	assert.True(t, v.ShowCollaborator)
	assert.True(t, v.ShowExtractionDate)
	assert.Equal(t, []string{
		indicator.NameActiveUsers,
		indicator.NameAnnualClosingDate,
		indicator.NameProvisionalResult,
		indicator.NameServerVersion,
	}, v.Columns)

	require.Len(t, v.Rows, 3)
	assert.Equal(t, "acme", v.Rows[0].TenantName)
	assert.Equal(t, "4", v.Rows[0].Values[indicator.NameActiveUsers])
	assert.Equal(t, "Alice MARTIN", v.Rows[0].CollaboratorDisplay)
	assert.Equal(t, "gamma", v.Rows[2].TenantName)
	assert.Equal(t, "N/A", v.Rows[2].CollaboratorDisplay)

	assert.Equal(t, []string{"30/06", "31/12"}, v.ClosingDateChoices)
	assert.Equal(t, []string{"LPDE, Alice MARTIN", "LPDE, Bob PETIT"}, v.CollaboratorChoices)
	assert.Equal(t, s.svc.CategoryNames(), v.CategoryChoices)
}

func TestView_CollaboratorSeesOwnTenants(t *testing.T) {
	s := seed(t)
	v, err := s.svc.View(context.Background(), aliceUser, Filters{})
	require.NoError(t, err)

	require.Len(t, v.Rows, 1)
	assert.Equal(t, "acme", v.Rows[0].TenantName)
	assert.Equal(t, []string{"31/12"}, v.ClosingDateChoices)
	assert.Equal(t, []string{"LPDE, Alice MARTIN"}, v.CollaboratorChoices)
}

func TestView_CollaboratorLatestRunIsOwn(t *testing.T) {
	s := seed(t)
	later := latestRun.Add(time.Hour)
	require.NoError(t, s.st.InsertIndicator(context.Background(), &model.IndicatorRecord{
		TenantID: s.beta.ID, Name: indicator.NameActiveUsers, Value: "10", ExtractionTimestamp: later, Collaborator: bob,
	}))

	v, err := s.svc.View(context.Background(), aliceUser, Filters{})
	require.NoError(t, err)
	require.NotNil(t, v.LatestRun)
	assert.True(t, latestRun.Equal(*v.LatestRun))

	v, err = s.svc.View(context.Background(), admin, Filters{})
	require.NoError(t, err)
	assert.True(t, later.Equal(*v.LatestRun))
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "beta", v.Rows[0].TenantName)
}

func TestView_NoProfileOrNoIDSeesNothing(t *testing.T) {
	s := seed(t)
	for _, p := range []*model.Profile{nil, orphanUser, {Username: "x", Role: "guest"}} {
		v, err := s.svc.View(context.Background(), p, Filters{})
		require.NoError(t, err)
		assert.Nil(t, v.LatestRun)
		assert.Empty(t, v.Rows)
		assert.Empty(t, v.ClosingDateChoices)
		assert.Empty(t, v.CollaboratorChoices)
	}
}

func TestView_Filters(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	t.Run("closing date", func(t *testing.T) {
		v, err := s.svc.View(ctx, admin, Filters{ClosingDate: "30/06"})
		require.NoError(t, err)
		require.Len(t, v.Rows, 1)
		assert.Equal(t, "beta", v.Rows[0].TenantName)
		assert.Equal(t, "9", v.Rows[0].Values[indicator.NameActiveUsers])
	})

	t.Run("collaborator", func(t *testing.T) {
		v, err := s.svc.View(ctx, admin, Filters{Collaborator: bob.Name})
		require.NoError(t, err)
		require.Len(t, v.Rows, 1)
		assert.Equal(t, "beta", v.Rows[0].TenantName)
		assert.Equal(t, []string{indicator.NameActiveUsers, indicator.NameAnnualClosingDate}, v.Columns)
	})

	t.Run("both filters disagree", func(t *testing.T) {
		v, err := s.svc.View(ctx, admin, Filters{Collaborator: bob.Name, ClosingDate: "31/12"})
		require.NoError(t, err)
		assert.Empty(t, v.Rows)
		assert.Empty(t, v.Columns)
	})
}

func TestView_Categories(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	t.Run("named category", func(t *testing.T) {
		v, err := s.svc.View(ctx, admin, Filters{Category: "Closing control"})
		require.NoError(t, err)
		assert.Equal(t, []string{indicator.NameAnnualClosingDate}, v.Columns)
		assert.False(t, v.ShowCollaborator)
		assert.False(t, v.ShowExtractionDate)
		assert.Len(t, v.Rows, 3)
	})

	t.Run("named category without matches", func(t *testing.T) {
		v, err := s.svc.View(ctx, aliceUser, Filters{Category: "Technical data"})
		require.NoError(t, err)
		assert.Equal(t, []string{indicator.NameActiveUsers}, v.Columns)

		v, err = s.svc.View(ctx, admin, Filters{Category: "Accounting production"})
		require.NoError(t, err)
		assert.Empty(t, v.Columns)
		assert.Empty(t, v.Rows)
	})

	t.Run("other shows meta only", func(t *testing.T) {
		v, err := s.svc.View(ctx, admin, Filters{Category: "Other"})
		require.NoError(t, err)
		assert.Empty(t, v.Columns)
		assert.True(t, v.ShowCollaborator)
		assert.True(t, v.ShowExtractionDate)
		assert.Len(t, v.Rows, 3)
	})

	t.Run("unknown category shows all", func(t *testing.T) {
		v, err := s.svc.View(ctx, admin, Filters{Category: "Nope"})
		require.NoError(t, err)
		assert.Len(t, v.Columns, 4)
	})
}

func TestView_EmptyStore(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	v, err := NewService(st, config.DefaultCategories()).View(context.Background(), admin, Filters{})
	require.NoError(t, err)
	assert.Nil(t, v.LatestRun)
	assert.NotNil(t, v.Rows)
	assert.NotNil(t, v.Columns)
}

func TestFormatCollaboratorName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Company, First LAST", "First LAST"},
		{"LPDE,  Alice MARTIN ", "Alice MARTIN"},
		{"A, B, C", "B, C"},
		{"No comma", "No comma"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCollaboratorName(tt.in), tt.in)
	}
}
