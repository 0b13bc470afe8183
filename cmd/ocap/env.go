package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/auth"
)

func newEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage the model server token in the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnvStatus(cmd)
		},
	}
	cmd.SetUsageTemplate(groupUsageTemplate)

	for _, action := range []struct {
		use, short string
		run        func(*cobra.Command) error
	}{
		{"setup", "Save the server token to the keychain (prompt only)", runEnvSetup},
		{"delete", "Delete the server token from the keychain", runEnvDelete},
		{"status", "Show token status (default if no action given)", runEnvStatus},
	} {
		run := action.run
		sub := &cobra.Command{
			Use:   action.use,
			Short: action.short,
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return run(cmd) },
		}
		sub.SetUsageTemplate(subcommandUsageTemplate)
		cmd.AddCommand(sub)
	}
	return cmd
}

func runEnvDelete(cmd *cobra.Command) error {
	if err := deleteToken(); err != nil {
		return fmt.Errorf("error deleting token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Deleted server token from keychain.")
	return nil
}

func runEnvSetup(cmd *cobra.Command) error {
	if !isTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("env setup needs an interactive terminal")
	}
	raw, err := promptForToken("Server token: ")
	if err != nil {
		return fmt.Errorf("error reading token: %w", err)
	}
	token := strings.TrimSpace(raw)
	if token == "" {
		return fmt.Errorf("a token is required for setup")
	}
	if err := saveToken(token); err != nil {
		return fmt.Errorf("error saving token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Saved server token to keychain.")
	return nil
}

func runEnvStatus(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	if hasToken() {
		fmt.Fprintf(out, "Server token: Found (source=%s)\n", auth.SourceKeychain)
		return nil
	}
	if token, ok := getEnvToken(); ok && token != "" {
		fmt.Fprintf(out, "Server token: Found (source=%s; disabled by default, use --allow-env)\n", auth.SourceEnv)
		return nil
	}
	fmt.Fprintf(out, "Server token: Not Found (keychain empty, %s not set; local Ollama needs none)\n", auth.TokenEnvVar)
	return nil
}
