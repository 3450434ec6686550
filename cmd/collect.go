package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/collector"
)

var collectJSON bool

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one indicator collection across all tenants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("collect"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runner, _, err := initRunner(st, prometheus.NewRegistry())
		if err != nil {
			return err
		}

		summary, err := runner.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "collect")
		}
		zap.L().Info("collection complete",
			zap.Time("run_timestamp", summary.RunTimestamp),
			zap.Int("connected", summary.Connected()),
			zap.Int("failed", summary.Failed()),
			zap.Int("persisted", summary.Persisted()),
		)

		if collectJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}
		formatRunSummary(os.Stdout, summary)
		return nil
	},
}

func formatRunSummary(w io.Writer, s *collector.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSTATUS\tVERSION\tCOLLABORATOR\tPERSISTED\tERRORS\tMESSAGE")
	for _, t := range s.Tenants {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			t.TenantName, t.Status, dash(t.Version), dash(t.Collaborator.Name),
			t.Persisted, t.PersistErrors, dash(truncate(t.Error, 60)),
		)
	}
	tw.Flush() //nolint:errcheck

	fmt.Fprintf(w, "\nRun %s: %d tenants, %d connected, %d failed, %d indicators persisted",
		s.RunTimestamp.Format(time.RFC3339), len(s.Tenants), s.Connected(), s.Failed(), s.Persisted())
	if n := s.PersistErrors(); n > 0 {
		fmt.Fprintf(w, ", %d persist errors", n)
	}
	if !s.FirmAvailable {
		fmt.Fprint(w, " (firm unavailable, collaborators unassigned)")
	}
	fmt.Fprintln(w)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(collectCmd)
}
