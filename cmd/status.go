package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lpde-tools/ledger-indicators/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last connection attempt for each tenant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		statuses, err := st.ListConnectionStatuses(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(statuses) == 0 {
			fmt.Fprintln(os.Stderr, "No connection attempts recorded.")
			return nil
		}
		formatStatuses(os.Stdout, statuses)
		return nil
	},
}

func formatStatuses(w io.Writer, statuses []model.ConnectionStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tLAST ATTEMPT\tOK\tERROR")
	for _, s := range statuses {
		ok := "no"
		if s.ConnectionSuccessful {
			ok = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			s.TenantName, s.LastConnectionAttempt.Format("2006-01-02 15:04"), ok, s.ErrorSummary(75))
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
