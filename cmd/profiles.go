package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/identity"
	"github.com/lpde-tools/ledger-indicators/internal/model"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "Manage dashboard user profiles",
}

var (
	profileRole           string
	profileCollaboratorID string
)

var profilesSetCmd = &cobra.Command{
	Use:   "set <username>",
	Short: "Create or update a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		p := model.Profile{
			Username:       args[0],
			Role:           model.Role(profileRole),
			CollaboratorID: profileCollaboratorID,
		}
		if p.Role == model.RoleCollaborator && p.CollaboratorID == "" {
			zap.L().Warn("collaborator profile without collaborator id will see no tenants",
				zap.String("username", p.Username))
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpsertProfile(ctx, p); err != nil {
			return eris.Wrap(err, "profiles set")
		}
		zap.L().Info("profile saved", zap.String("username", p.Username), zap.String("role", string(p.Role)))
		return nil
	},
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		profiles, err := st.ListProfiles(ctx)
		if err != nil {
			return eris.Wrap(err, "profiles list")
		}
		if len(profiles) == 0 {
			fmt.Fprintln(os.Stderr, "No profiles configured.")
			return nil
		}
		formatProfiles(os.Stdout, profiles)
		return nil
	},
}

var profilesCollaboratorsCmd = &cobra.Command{
	Use:   "collaborators",
	Short: "List the firm's collaborators and their partner ids",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fc, err := st.GetFirmConfig(ctx)
		if err != nil {
			return eris.Wrap(err, "profiles collaborators: firm config")
		}
		cipher, err := initCipher()
		if err != nil {
			return err
		}
		secret, err := cipher.Decrypt(fc.Connection.EncryptedAPIKey)
		if err != nil {
			return eris.Wrap(err, "profiles collaborators: decrypt firm key")
		}
		session, _, err := connector().Connect(ctx, fc.Connection, secret)
		if err != nil {
			return eris.Wrap(err, "profiles collaborators: connect to firm")
		}

		collabs, err := identity.NewResolver(session, identityFields()).ListCollaborators(ctx)
		if err != nil {
			return err
		}
		formatCollaborators(os.Stdout, collabs)
		return nil
	},
}

func formatProfiles(w io.Writer, profiles []model.Profile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USERNAME\tROLE\tCOLLABORATOR ID")
	for _, p := range profiles {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Username, p.Role, dash(p.CollaboratorID))
	}
	tw.Flush() //nolint:errcheck
}

func formatCollaborators(w io.Writer, collabs []model.Collaborator) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, c := range collabs {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Name)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	profilesSetCmd.Flags().StringVar(&profileRole, "role", string(model.RoleCollaborator), "admin or collaborator")
	profilesSetCmd.Flags().StringVar(&profileCollaboratorID, "collaborator-id", "", "firm partner id of the collaborator")

	profilesCmd.AddCommand(profilesSetCmd, profilesListCmd, profilesCollaboratorsCmd)
	rootCmd.AddCommand(profilesCmd)
}
