package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/textops"
)

func newTextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "text",
		Short: "Edit existing caption files in bulk",
		Example: `  ocap text prepend ./photos "photo of"
  ocap text replace ./photos "a cat" "a tabby cat"`,
	}
	cmd.SetUsageTemplate(groupUsageTemplate)
	cmd.AddCommand(
		newTextInsertCmd("prepend", "Add text to the start of every caption", textops.Front),
		newTextInsertCmd("append", "Add text to the end of every caption", textops.End),
		newTextReplaceCmd(),
	)
	return cmd
}

func newTextInsertCmd(name, short string, pos textops.Position) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <folder> <text>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := textops.Insert(args[0], args[1], pos)
			if err != nil {
				return err
			}
			printLines(cmd, lines)
			return nil
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func newTextReplaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace <folder> <find> <replace>",
		Short: "Replace text in every caption",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := textops.Replace(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printLines(cmd, lines)
			return nil
		},
		SilenceUsage: true,
	}
	cmd.SetUsageTemplate(subcommandUsageTemplate)
	return cmd
}

func printLines(cmd *cobra.Command, lines []string) {
	out := cmd.OutOrStdout()
	if len(lines) == 0 {
		fmt.Fprintln(out, "No caption files found.")
		return
	}
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
}
