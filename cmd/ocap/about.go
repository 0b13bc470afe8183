package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/config"
	"github.com/oukeidos/ocap/internal/version"
)

func newAboutCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "about",
		Short: "Show what ocap is and where it reads its settings",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ocap %s: batch image captioner for Ollama\n", version.Version)
			fmt.Fprintln(out, "https://github.com/oukeidos/ocap")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "Model server: %s\n", root.cfg.Server.URL)
			fmt.Fprintf(out, "Settings:     flags > %s* env > %s.yaml > defaults\n", config.EnvPrefix+"_", config.FileName)
			if root.cfg.HistoryPath != "" {
				fmt.Fprintf(out, "History:      %s\n", root.cfg.HistoryPath)
			}
		},
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}
