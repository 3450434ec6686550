package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"collect", "tenants", "firm", "status", "profiles", "keys", "token", "serve", "worker", "schedule", "export", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "ledger-indicators", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGroupCommands_HaveSubcommands(t *testing.T) {
	groups := map[string][]string{
		"tenants":  {"add", "list", "remove", "import"},
		"firm":     {"set", "show"},
		"profiles": {"set", "list", "collaborators"},
		"keys":     {"generate", "rotate"},
		"token":    {"issue"},
		"schedule": {"apply"},
	}
	for group, subs := range groups {
		cmd, _, err := rootCmd.Find([]string{group})
		require.NoError(t, err)
		names := make(map[string]bool)
		for _, c := range cmd.Commands() {
			names[c.Name()] = true
		}
		for _, s := range subs {
			assert.True(t, names[s], "%s should have subcommand %q", group, s)
		}
	}
}

func TestTenantsAdd_RequiredFlags(t *testing.T) {
	for _, name := range []string{"name", "url", "database", "username"} {
		flag := tenantsAddCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "tenants add should have --%s flag", name)
		assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag])
	}
	assert.NotNil(t, tenantsAddCmd.Flags().Lookup("api-key"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "indicators.xlsx", flag.DefValue)
	assert.Equal(t, "o", flag.Shorthand)
	for _, name := range []string{"as", "closing-date", "collaborator", "category"} {
		assert.NotNil(t, exportCmd.Flags().Lookup(name), "export should have --%s flag", name)
	}
}

func TestKeysRotate_RequiresOldKey(t *testing.T) {
	flag := keysRotateCmd.Flags().Lookup("old-key")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations[cobra.BashCompOneRequiredFlag])
}
