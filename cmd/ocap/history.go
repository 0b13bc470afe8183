package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/history"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently used prompts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := history.Load(root.cfg.HistoryPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No prompt history at %s\n", root.cfg.HistoryPath)
				return nil
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[len(entries)-limit:]
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-11s  %s  %s", e.Time.Format("2006-01-02 15:04:05"), e.Source, e.Model, oneLine(e.Prompt1))
				if e.Prompt2 != "" {
					line += "  |  " + oneLine(e.Prompt2)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().IntVar(&limit, "limit", 20, "Show at most this many entries (0 for all)")
	return cmd
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
