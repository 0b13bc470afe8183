package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/logger"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/pipeline"
	"github.com/oukeidos/ocap/internal/recovery"
	"github.com/oukeidos/ocap/internal/sidecar"
)

type retryOptions struct {
	runOptions
	keepLog bool
}

func newRetryCmd(root *rootOptions) *cobra.Command {
	opts := retryOptions{}
	cmd := &cobra.Command{
		Use:   "retry <recovery.json>",
		Short: "Caption again the files a previous run left unfinished",
		Example: `  ocap retry ./photos/ocap_recovery.json
  ocap retry ./photos/ocap_recovery.json --concurrency 4 --keep-log`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				_ = cmd.Usage()
				return fmt.Errorf("a recovery log is required")
			}
			return runRetry(cmd, root, args[0], &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading the server token from OCAP_SERVER_TOKEN")
	cmd.Flags().Int("concurrency", pipeline.MinConcurrency, "Override the concurrency stored in the log")
	cmd.Flags().BoolVar(&opts.keepLog, "keep-log", false, "Keep the recovery log even when every file succeeds")
	addServerFlags(cmd)
	addOutputFlags(cmd, &opts.runOptions)
	return cmd
}

func runRetry(cmd *cobra.Command, root *rootOptions, logPath string, opts *retryOptions) error {
	log, err := recovery.LoadSessionLog(logPath)
	if err != nil {
		return fmt.Errorf("failed to load recovery log: %w", err)
	}
	if err := log.Validate(); err != nil {
		return fmt.Errorf("invalid recovery log %s: %w", logPath, err)
	}
	policy, err := sidecar.ParsePolicy(log.Policy)
	if err != nil {
		return fmt.Errorf("invalid recovery log %s: %w", logPath, err)
	}
	hw, err := ollama.ParseHardware(log.Hardware)
	if err != nil {
		return fmt.Errorf("invalid recovery log %s: %w", logPath, err)
	}

	cfg := pipeline.Config{
		Dir:                 recovery.Dir(logPath),
		Files:               recovery.ResolveFiles(logPath, log),
		Model:               log.Model,
		Prompt:              log.Prompt,
		RefineModel:         log.RefineModel,
		RefinePrompt:        log.RefinePrompt,
		TagModels:           log.TagModels,
		AttachImageToRefine: log.AttachImageToRefine,
		Policy:              policy,
		Hardware:            hw,
		Concurrency:         log.Concurrency,
		RestartBudget:       root.cfg.Server.RestartBudget,
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency = root.cfg.Run.Concurrency
	}
	if cmd.Flags().Changed("hardware") {
		cfg.Hardware = root.cfg.Run.Hardware
	}
	logger.Info("Retrying recovery log", "path", logPath, "files", len(cfg.Files), "previous_status", log.Status)

	outcome, err := executeRun(cmd, root, cfg, &opts.runOptions, history.SourceRetry)
	if err != nil || outcome == nil {
		return err
	}
	if len(outcome.report.PendingPaths()) == 0 && !opts.keepLog {
		if err := os.Remove(logPath); err != nil {
			logger.Warn("Failed to remove recovery log", "path", logPath, "error", err)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Recovery log %s removed.\n", logPath)
		}
	}
	return outcome.statusError()
}
