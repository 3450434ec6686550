package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lpde-tools/ledger-indicators/internal/model"
)

// HealthSnapshot holds a point-in-time view of tenant connection health.
type HealthSnapshot struct {
	Tenants        int       `json:"tenants"`
	Connected      int       `json:"connected"`
	Failed         int       `json:"failed"`
	FailRate       float64   `json:"fail_rate"`
	FailingTenants []string  `json:"failing_tenants,omitempty"`
	LastRun        time.Time `json:"last_run"`
	HasRun         bool      `json:"has_run"`
	CollectedAt    time.Time `json:"collected_at"`
}

// HealthSource is the slice of the store the collector reads.
type HealthSource interface {
	ListConnectionStatuses(ctx context.Context) ([]model.ConnectionStatus, error)
	LatestRunTimestamp(ctx context.Context, vis model.Visibility) (time.Time, bool, error)
}

// Collector gathers health snapshots from the store.
type Collector struct {
	source HealthSource
	now    func() time.Time
}

// NewCollector creates a new health collector.
func NewCollector(src HealthSource) *Collector {
	return &Collector{source: src, now: time.Now}
}

// Collect reads the per-tenant status rows and the latest run timestamp.
func (c *Collector) Collect(ctx context.Context) (*HealthSnapshot, error) {
	snap := &HealthSnapshot{CollectedAt: c.now().UTC()}

	statuses, err := c.source.ListConnectionStatuses(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list connection statuses")
	}
	snap.Tenants = len(statuses)
	for _, st := range statuses {
		if st.ConnectionSuccessful {
			snap.Connected++
			continue
		}
		snap.Failed++
		name := st.TenantName
		if name == "" {
			name = st.TenantID
		}
		snap.FailingTenants = append(snap.FailingTenants, name)
	}
	sort.Strings(snap.FailingTenants)
	if snap.Tenants > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Tenants)
	}

	last, ok, err := c.source.LatestRunTimestamp(ctx, model.Visibility{All: true})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest run")
	}
	snap.LastRun, snap.HasRun = last, ok

	return snap, nil
}
