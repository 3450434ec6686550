package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lpde-tools/ledger-indicators/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the recurring collection schedule",
}

var scheduleApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update the Temporal schedule from config",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("schedule"); err != nil {
			return err
		}
		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		return schedule.EnsureSchedule(cmd.Context(), c.ScheduleClient(), scheduleConfig())
	},
}

func scheduleConfig() schedule.Config {
	tz := cfg.Indicators.Timezone
	if tz == "Local" {
		tz = ""
	}
	return schedule.Config{
		ScheduleID: cfg.Temporal.ScheduleID,
		Cron:       cfg.Temporal.Cron,
		TimeZone:   tz,
		TaskQueue:  cfg.Temporal.TaskQueue,
		RunTimeout: time.Duration(cfg.Temporal.RunTimeoutMins) * time.Minute,
	}
}

func init() {
	scheduleCmd.AddCommand(scheduleApplyCmd)
	rootCmd.AddCommand(scheduleCmd)
}
