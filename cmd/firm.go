package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/model"
)

var firmCmd = &cobra.Command{
	Use:   "firm",
	Short: "Manage the firm's own connection",
	Long:  "The firm connection is used only to resolve which collaborator is assigned to each tenant.",
}

var (
	firmURL      string
	firmDatabase string
	firmUsername string
	firmAPIKey   string
)

var firmSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the firm connection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cipher, err := initCipher()
		if err != nil {
			return err
		}
		sealed, err := cipher.Encrypt(firmAPIKey)
		if err != nil {
			return eris.Wrap(err, "firm set: encrypt api key")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fc, err := st.SetFirmConfig(ctx, model.Connection{
			URL:             firmURL,
			Database:        firmDatabase,
			Username:        firmUsername,
			EncryptedAPIKey: sealed,
		})
		if err != nil {
			return eris.Wrap(err, "firm set")
		}
		zap.L().Info("firm connection saved", zap.String("url", fc.Connection.URL))
		return nil
	},
}

var firmShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the firm connection",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fc, err := st.GetFirmConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "firm show")
		}
		formatFirm(os.Stdout, fc)
		return nil
	},
}

func formatFirm(w io.Writer, fc *model.FirmConfig) {
	key := "missing"
	if fc.Connection.HasAPIKey() {
		key = "set"
	}
	fmt.Fprintf(w, "URL:      %s\n", fc.Connection.URL)
	fmt.Fprintf(w, "Database: %s\n", fc.Connection.Database)
	fmt.Fprintf(w, "Username: %s\n", fc.Connection.Username)
	fmt.Fprintf(w, "API key:  %s\n", key)
	fmt.Fprintf(w, "Updated:  %s\n", fc.UpdatedAt.Format("2006-01-02 15:04"))
}

func init() {
	f := firmSetCmd.Flags()
	f.StringVar(&firmURL, "url", "", "firm Odoo base URL")
	f.StringVar(&firmDatabase, "database", "", "firm Odoo database name")
	f.StringVar(&firmUsername, "username", "", "API user login")
	f.StringVar(&firmAPIKey, "api-key", "", "API key, encrypted before storage")
	for _, name := range []string{"url", "database", "username"} {
		_ = firmSetCmd.MarkFlagRequired(name)
	}

	firmCmd.AddCommand(firmSetCmd, firmShowCmd)
	rootCmd.AddCommand(firmCmd)
}
