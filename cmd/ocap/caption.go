package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/pipeline"
)

func newCaptionCmd(root *rootOptions) *cobra.Command {
	opts := modelOptions{}
	cmd := &cobra.Command{
		Use:   "caption <image>",
		Short: "Caption a single image and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				_ = cmd.Usage()
				return fmt.Errorf("an image path is required")
			}
			return runCaption(cmd, root, args[0], &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	addModelFlags(cmd, &opts)
	return cmd
}

func runCaption(cmd *cobra.Command, root *rootOptions, path string, opts *modelOptions) error {
	cfg, _ := opts.pipelineConfig(root.cfg).Normalize()
	deps := pipeline.Deps{
		Generator: newClient(root.cfg, opts.allowEnv),
		Restarter: newRestarter(root.cfg.Server),
	}

	ctx, stop := signalContext(commandContext(cmd), nil)
	defer stop()

	d, err := pipeline.CaptionImage(ctx, cfg, deps, path)
	if err != nil {
		return err
	}

	source := history.SourceSingle
	if cfg.RefineModel != "" {
		source = history.SourceSinglePlus
	}
	recordHistory(root.cfg.HistoryPath, history.Entry{
		Time:    time.Now(),
		Model:   cfg.Model,
		Source:  source,
		Prompt1: cfg.Prompt,
		Prompt2: cfg.RefinePrompt,
	})

	out := cmd.OutOrStdout()
	if d.Refined == "" {
		fmt.Fprintln(out, d.Caption)
		return nil
	}
	fmt.Fprintf(out, "Caption (%s):\n%s\n", cfg.Model, d.Caption)
	for i, tag := range d.Tags {
		fmt.Fprintf(out, "\nTags (%s):\n%s\n", cfg.TagModels[i], tag)
	}
	fmt.Fprintf(out, "\nRefined (%s):\n%s\n", cfg.RefineModel, d.Refined)
	return nil
}
