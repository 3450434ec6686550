package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/model"
	"github.com/lpde-tools/ledger-indicators/internal/tenantfile"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Manage client tenants",
}

var (
	tenantName     string
	tenantURL      string
	tenantDatabase string
	tenantUsername string
	tenantAPIKey   string
)

// -- tenants add --

var tenantsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a client tenant",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cipher, err := initCipher()
		if err != nil {
			return err
		}
		sealed, err := cipher.Encrypt(tenantAPIKey)
		if err != nil {
			return eris.Wrap(err, "tenants add: encrypt api key")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		t := &model.Tenant{
			Name: tenantName,
			Connection: model.Connection{
				URL:             tenantURL,
				Database:        tenantDatabase,
				Username:        tenantUsername,
				EncryptedAPIKey: sealed,
			},
		}
		if err := st.CreateTenant(ctx, t); err != nil {
			return eris.Wrap(err, "tenants add")
		}
		zap.L().Info("tenant created", zap.String("tenant", t.Name), zap.String("id", t.ID))
		return nil
	},
}

// -- tenants list --

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List client tenants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tenants, err := st.ListTenants(ctx)
		if err != nil {
			return eris.Wrap(err, "tenants list")
		}
		if len(tenants) == 0 {
			fmt.Fprintln(os.Stderr, "No tenants configured.")
			return nil
		}
		formatTenants(os.Stdout, tenants)
		return nil
	},
}

// -- tenants remove --

var tenantsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a tenant with its history and status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		t, err := st.GetTenantByName(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "tenants remove %q", args[0])
		}
		if err := st.DeleteTenant(ctx, t.ID); err != nil {
			return eris.Wrapf(err, "tenants remove %q", args[0])
		}
		zap.L().Info("tenant removed", zap.String("tenant", t.Name))
		return nil
	},
}

// -- tenants import --

var tenantsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Create or update tenants and the firm connection from YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		f, err := tenantfile.Load(args[0])
		if err != nil {
			return err
		}
		cipher, err := initCipher()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := tenantfile.Import(ctx, st, cipher, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "created %d, updated %d tenants", len(res.Created), len(res.Updated))
		if res.FirmUpdated {
			fmt.Fprint(os.Stdout, ", firm connection updated")
		}
		fmt.Fprintln(os.Stdout)
		return nil
	},
}

func formatTenants(w io.Writer, tenants []model.Tenant) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tURL\tDATABASE\tUSERNAME\tKEY\tUPDATED")
	for _, t := range tenants {
		key := "missing"
		if t.Connection.HasAPIKey() {
			key = "set"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Name, t.Connection.URL, t.Connection.Database, t.Connection.Username,
			key, t.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	f := tenantsAddCmd.Flags()
	f.StringVar(&tenantName, "name", "", "tenant display name")
	f.StringVar(&tenantURL, "url", "", "Odoo base URL")
	f.StringVar(&tenantDatabase, "database", "", "Odoo database name")
	f.StringVar(&tenantUsername, "username", "", "API user login")
	f.StringVar(&tenantAPIKey, "api-key", "", "API key, encrypted before storage")
	for _, name := range []string{"name", "url", "database", "username"} {
		_ = tenantsAddCmd.MarkFlagRequired(name)
	}

	tenantsCmd.AddCommand(tenantsAddCmd, tenantsListCmd, tenantsRemoveCmd, tenantsImportCmd)
	rootCmd.AddCommand(tenantsCmd)
}
