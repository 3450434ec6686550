package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/dashboard"
	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/report"
)

var (
	exportOutput  string
	exportAs      string
	exportFilters dashboard.Filters
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the latest run to an xlsx workbook",
	Long:  "Writes the dashboard view of the latest run. Without --as the full admin view is exported.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		loc, err := loadLocation()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		viewer := &model.Profile{Username: "cli", Role: model.RoleAdmin}
		if exportAs != "" {
			if viewer, err = st.GetProfile(ctx, exportAs); err != nil {
				return eris.Wrapf(err, "export: profile %q", exportAs)
			}
		}

		v, err := dashboard.NewService(st, cfg.Dashboard.Categories).View(ctx, viewer, exportFilters)
		if err != nil {
			return err
		}
		if err := report.Save(exportOutput, v, loc); err != nil {
			return err
		}
		zap.L().Info("export written", zap.String("path", exportOutput), zap.Int("tenants", len(v.Rows)))
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOutput, "output", "o", "indicators.xlsx", "output file")
	f.StringVar(&exportAs, "as", "", "export the view of this profile")
	f.StringVar(&exportFilters.ClosingDate, "closing-date", "", "only tenants with this annual closing date")
	f.StringVar(&exportFilters.Collaborator, "collaborator", "", "only tenants assigned to this collaborator")
	f.StringVar(&exportFilters.Category, "category", "", "indicator category to include")
	rootCmd.AddCommand(exportCmd)
}
