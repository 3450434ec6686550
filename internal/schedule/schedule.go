package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// Config describes the recurring collection schedule.
type Config struct {
	ScheduleID string
	Cron       string
	TimeZone   string
	TaskQueue  string
	RunTimeout time.Duration
}

func (c Config) validate() error {
	switch {
	case c.ScheduleID == "":
		return eris.New("schedule: schedule id is required")
	case c.Cron == "":
		return eris.New("schedule: cron expression is required")
	case c.TaskQueue == "":
		return eris.New("schedule: task queue is required")
	}
	return nil
}

func (c Config) spec() client.ScheduleSpec {
	return client.ScheduleSpec{
		CronExpressions: []string{c.Cron},
		TimeZoneName:    c.TimeZone,
	}
}

func (c Config) action() *client.ScheduleWorkflowAction {
	return &client.ScheduleWorkflowAction{
		ID:        c.ScheduleID + "-run",
		Workflow:  CollectIndicatorsWorkflow,
		Args:      []any{WorkflowInput{RunTimeout: c.RunTimeout}},
		TaskQueue: c.TaskQueue,
	}
}

// EnsureSchedule creates the schedule, or updates it in place when it
// already exists. Overlapping runs are skipped.
func EnsureSchedule(ctx context.Context, sc client.ScheduleClient, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	log := zap.L().With(zap.String("schedule_id", cfg.ScheduleID), zap.String("cron", cfg.Cron))

	_, err := sc.Create(ctx, client.ScheduleOptions{
		ID:      cfg.ScheduleID,
		Spec:    cfg.spec(),
		Action:  cfg.action(),
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	if err == nil {
		log.Info("schedule: created")
		return nil
	}
	if !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return eris.Wrap(err, "schedule: create")
	}

	h := sc.GetHandle(ctx, cfg.ScheduleID)
	err = h.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(in client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			s := in.Description.Schedule
			spec := cfg.spec()
			s.Spec = &spec
			s.Action = cfg.action()
			if s.Policy == nil {
				s.Policy = &client.SchedulePolicies{}
			}
			s.Policy.Overlap = enumspb.SCHEDULE_OVERLAP_POLICY_SKIP
			return &client.ScheduleUpdate{Schedule: &s}, nil
		},
	})
	if err != nil {
		return eris.Wrap(err, "schedule: update")
	}
	log.Info("schedule: updated")
	return nil
}
