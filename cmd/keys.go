package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lpde-tools/ledger-indicators/internal/credential"
	"github.com/lpde-tools/ledger-indicators/internal/store"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the credential encryption key",
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new encryption key",
	RunE: func(_ *cobra.Command, _ []string) error {
		k, err := credential.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, k)
		return nil
	},
}

var rotateOldKey string

var keysRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Re-encrypt stored API keys under crypto.fernet_key",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		next, err := initCipher()
		if err != nil {
			return err
		}
		if !next.Configured() {
			return credential.ErrNoKey
		}
		old, err := credential.NewCipher(rotateOldKey)
		if err != nil {
			return eris.Wrap(err, "keys rotate: old key")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := rotateKeys(ctx, st, old, next)
		if err != nil {
			return err
		}
		zap.L().Info("keys rotated", zap.Int("rotated", n))
		return nil
	},
}

// rotateKeys re-encrypts every stored key from old to next. Keys that
// already decrypt under next are left alone, so an interrupted rotation can
// be rerun.
func rotateKeys(ctx context.Context, st store.Store, old, next *credential.Cipher) (int, error) {
	rotate := func(ciphertext string) (string, bool, error) {
		if ciphertext == "" {
			return "", false, nil
		}
		if _, err := next.Decrypt(ciphertext); err == nil {
			return ciphertext, false, nil
		}
		out, err := next.Rotate(old, ciphertext)
		if err != nil {
			return "", false, err
		}
		return out, true, nil
	}

	rotated := 0
	tenants, err := st.ListTenants(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "keys rotate: list tenants")
	}
	for i := range tenants {
		t := &tenants[i]
		out, changed, err := rotate(t.Connection.EncryptedAPIKey)
		if err != nil {
			return rotated, eris.Wrapf(err, "keys rotate: tenant %q", t.Name)
		}
		if !changed {
			continue
		}
		t.Connection.EncryptedAPIKey = out
		if err := st.UpdateTenant(ctx, t); err != nil {
			return rotated, eris.Wrapf(err, "keys rotate: update tenant %q", t.Name)
		}
		rotated++
	}

	fc, err := st.GetFirmConfig(ctx)
	switch {
	case eris.Is(err, store.ErrNotFound):
		return rotated, nil
	case err != nil:
		return rotated, eris.Wrap(err, "keys rotate: firm config")
	}
	out, changed, err := rotate(fc.Connection.EncryptedAPIKey)
	if err != nil {
		return rotated, eris.Wrap(err, "keys rotate: firm")
	}
	if changed {
		fc.Connection.EncryptedAPIKey = out
		if _, err := st.SetFirmConfig(ctx, fc.Connection); err != nil {
			return rotated, eris.Wrap(err, "keys rotate: update firm")
		}
		rotated++
	}
	return rotated, nil
}

func init() {
	keysRotateCmd.Flags().StringVar(&rotateOldKey, "old-key", "", "key the stored values are currently encrypted with")
	_ = keysRotateCmd.MarkFlagRequired("old-key")

	keysCmd.AddCommand(keysGenerateCmd, keysRotateCmd)
	rootCmd.AddCommand(keysCmd)
}
