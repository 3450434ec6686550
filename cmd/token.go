package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lpde-tools/ledger-indicators/internal/api"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue API tokens",
}

var tokenTTLHours int

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <username>",
	Short: "Issue a bearer token for a stored profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ttl := time.Duration(cfg.Server.TokenTTLHours) * time.Hour
		if cmd.Flags().Changed("ttl-hours") {
			ttl = time.Duration(tokenTTLHours) * time.Hour
		}
		issuer, err := api.NewIssuer(cfg.Server.JWTSecret, ttl)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProfile(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "token issue: profile %q", args[0])
		}
		tok, err := issuer.Issue(*p)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, tok)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().IntVar(&tokenTTLHours, "ttl-hours", 0, "token lifetime in hours, 0 for no expiry (default from config)")
	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}
