// Package schedule triggers collection runs from Temporal.
package schedule

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultRunTimeout = 2 * time.Hour

// WorkflowInput configures one scheduled run.
type WorkflowInput struct {
	RunTimeout time.Duration
}

// CollectIndicatorsWorkflow executes one collection. The activity is not
// retried; a failed run waits for the next schedule tick.
func CollectIndicatorsWorkflow(ctx workflow.Context, input WorkflowInput) (RunReport, error) {
	timeout := input.RunTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	logger := workflow.GetLogger(ctx)
	logger.Info("collect workflow started", "run_timeout", timeout)

	var report RunReport
	if err := workflow.ExecuteActivity(ctx, CollectActivityName).Get(ctx, &report); err != nil {
		logger.Error("collect activity failed", "error", err)
		return RunReport{}, err
	}

	logger.Info("collect workflow finished", "persisted", report.Persisted, "failed", report.Failed)
	return report, nil
}
