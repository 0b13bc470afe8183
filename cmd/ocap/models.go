package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	var allowEnv bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models available on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(root.cfg, allowEnv)
			ctx, stop := signalContext(commandContext(cmd), nil)
			defer stop()

			models := client.ListModels(ctx)
			out := cmd.OutOrStdout()
			if len(models) == 0 {
				fmt.Fprintf(out, "No models found at %s\n", client.BaseURL())
				return nil
			}
			for _, m := range models {
				fmt.Fprintln(out, m)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().BoolVar(&allowEnv, "allow-env", false, "Allow reading the server token from OCAP_SERVER_TOKEN")
	return cmd
}
