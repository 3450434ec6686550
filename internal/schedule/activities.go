package schedule

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
)

const CollectActivityName = "CollectIndicators"

// RunReport is the serializable outcome of one scheduled run.
type RunReport struct {
	RunTimestamp  time.Time
	Tenants       int
	Connected     int
	Failed        int
	Persisted     int
	PersistErrors int
}

// Activities runs collections on a worker.
type Activities struct {
	Runner collector.Runner
}

// NewActivities creates the activity set.
func NewActivities(r collector.Runner) *Activities {
	return &Activities{Runner: r}
}

// Collect runs one full collection.
func (a *Activities) Collect(ctx context.Context) (RunReport, error) {
	info := activity.GetInfo(ctx)
	log := zap.L().With(zap.String("workflow_id", info.WorkflowExecution.ID))
	log.Info("schedule: collection started")

	summary, err := a.Runner.Run(ctx)
	if err != nil {
		log.Error("schedule: collection failed", zap.Error(err))
		return RunReport{}, err
	}

	report := RunReport{
		RunTimestamp:  summary.RunTimestamp,
		Tenants:       len(summary.Tenants),
		Connected:     summary.Connected(),
		Failed:        summary.Failed(),
		Persisted:     summary.Persisted(),
		PersistErrors: summary.PersistErrors(),
	}
	log.Info("schedule: collection finished",
		zap.Int("tenants", report.Tenants),
		zap.Int("persisted", report.Persisted),
	)
	return report, nil
}
