package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/oukeidos/ocap/internal/config"
	"github.com/oukeidos/ocap/internal/files"
	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/logger"
	"github.com/oukeidos/ocap/internal/pipeline"
	"github.com/oukeidos/ocap/internal/recovery"
	"github.com/oukeidos/ocap/internal/sidecar"
	"github.com/oukeidos/ocap/internal/supervisor"
)

// modelOptions are the model and prompt flags shared by run and caption.
type modelOptions struct {
	model        string
	prompt       string
	refineModel  string
	refinePrompt string
	tagModels    []string
	attachImage  bool
	allowEnv     bool
}

type runOptions struct {
	modelOptions
	policy       string
	yes          bool
	reportPath   string
	reportFormat string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <folder>",
		Short: "Caption every image in a folder",
		Example: `  ocap run ./photos --model llava --prompt "Describe the image."
  ocap run ./photos --model llava --prompt "Describe." --refine-model llama3 \
    --refine-prompt "Shorten to one line: {caption}" --policy overwrite -y`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				_ = cmd.Usage()
				return fmt.Errorf("a folder path is required")
			}
			return runFolder(cmd, root, args[0], &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	addModelFlags(cmd, &opts.modelOptions)
	cmd.Flags().StringVar(&opts.policy, "policy", string(sidecar.PolicySkip), "What to do with existing captions: skip, overwrite, prepend or append")
	cmd.Flags().Int("concurrency", pipeline.MinConcurrency, fmt.Sprintf("Images captioned in parallel (%d-%d)", pipeline.MinConcurrency, pipeline.MaxConcurrency))
	addOutputFlags(cmd, &opts)
	return cmd
}

func addModelFlags(cmd *cobra.Command, opts *modelOptions) {
	cmd.Flags().StringVar(&opts.model, "model", "", "Ollama model used to caption images")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "Caption prompt")
	cmd.Flags().StringVar(&opts.refineModel, "refine-model", "", "Second model that rewrites the caption")
	cmd.Flags().StringVar(&opts.refinePrompt, "refine-prompt", "", "Refine prompt; may reference {caption} and {tags}")
	cmd.Flags().StringArrayVar(&opts.tagModels, "tag-model", nil, "Extra captioning model whose output feeds the refine prompt (repeatable)")
	cmd.Flags().BoolVar(&opts.attachImage, "attach-image", false, "Send the image to the refine model too")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading the server token from OCAP_SERVER_TOKEN")
	addServerFlags(cmd)
}

// addServerFlags declares the flags resolved through the config layer.
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().String("hardware", "cpu", "Hardware hint sent to the model server: cpu or gpu")
	cmd.Flags().Int("restart-budget", pipeline.DefaultRestartBudget, "Server restarts allowed per model call after a timeout")
	cmd.Flags().Duration("settle-delay", supervisor.DefaultSettleDelay, "Wait after relaunching the model server")
	cmd.Flags().String("server-command", "ollama serve", "Command that relaunches the model server")
}

func addOutputFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Overwrite existing captions without asking")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Write the run report to this file")
	cmd.Flags().StringVar(&opts.reportFormat, "report-format", string(pipeline.FormatText), "Report format: text, json or yaml")
}

func (o *modelOptions) pipelineConfig(cfg config.Config) pipeline.Config {
	return pipeline.Config{
		Model:               o.model,
		Prompt:              o.prompt,
		RefineModel:         o.refineModel,
		RefinePrompt:        o.refinePrompt,
		TagModels:           o.tagModels,
		AttachImageToRefine: o.attachImage,
		Hardware:            cfg.Run.Hardware,
		Concurrency:         cfg.Run.Concurrency,
		RestartBudget:       cfg.Server.RestartBudget,
	}
}

func runFolder(cmd *cobra.Command, root *rootOptions, dir string, opts *runOptions) error {
	policy, err := sidecar.ParsePolicy(opts.policy)
	if err != nil {
		return err
	}
	cfg := opts.pipelineConfig(root.cfg)
	cfg.Dir = dir
	cfg.Policy = policy

	outcome, err := executeRun(cmd, root, cfg, opts, "")
	if err != nil || outcome == nil {
		return err
	}
	return outcome.statusError()
}

// runOutcome is what a finished run left behind.
type runOutcome struct {
	report      pipeline.Report
	recoveryLog string
	canceled    bool
}

// executeRun confirms, records history, runs the pipeline and writes the
// recovery log and report. A nil outcome means the user declined to start.
// An empty source uses the label derived from cfg.
func executeRun(cmd *cobra.Command, root *rootOptions, cfg pipeline.Config, opts *runOptions, source string) (*runOutcome, error) {
	format, err := pipeline.ParseFormat(opts.reportFormat)
	if err != nil {
		return nil, err
	}
	cfg, notes := cfg.Normalize()
	for _, note := range notes {
		logger.Warn("Config normalized", "detail", note)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := cmd.OutOrStdout()
	if cfg.Policy == sidecar.PolicyOverwrite {
		existing, err := pipeline.CountExisting(cfg)
		if err != nil {
			return nil, err
		}
		ok, err := newConfirmer().ConfirmOverwrite(existing, opts.yes)
		if err != nil {
			return nil, err
		}
		if !ok {
			fmt.Fprintln(out, "Canceled; no captions were written.")
			return nil, nil
		}
	}

	if source == "" {
		source = cfg.Source()
	}
	recordHistory(root.cfg.HistoryPath, history.Entry{
		Time:    time.Now(),
		Model:   cfg.Model,
		Source:  source,
		Prompt1: cfg.Prompt,
		Prompt2: cfg.RefinePrompt,
	})

	run := pipeline.NewRun(cfg, pipeline.Deps{
		Generator: newClient(root.cfg, opts.allowEnv),
		Restarter: newRestarter(root.cfg.Server),
	})
	ctx, stop := signalContext(commandContext(cmd), run.RequestStop)
	defer stop()

	report, err := run.Execute(ctx)
	if err != nil {
		return nil, err
	}

	for _, line := range report.Lines() {
		fmt.Fprintln(out, line)
	}
	printSummary(out, report)

	outcome := &runOutcome{report: report, canceled: run.StopRequested() || ctx.Err() != nil}
	if report.Failed+report.Canceled > 0 {
		path, err := writeRecoveryLog(cfg, report)
		if err != nil {
			logger.Error("Failed to save recovery log", "error", err)
		} else {
			outcome.recoveryLog = path
			fmt.Fprintf(out, "Recovery log: %s (retry with \"ocap retry %s\")\n", path, path)
		}
	}
	if opts.reportPath != "" {
		path, err := writeReport(opts.reportPath, report, format)
		if err != nil {
			return outcome, err
		}
		fmt.Fprintf(out, "Report saved to %s\n", path)
	}
	return outcome, nil
}

func printSummary(w io.Writer, r pipeline.Report) {
	fmt.Fprintln(w, "\n--- Run Summary ---")
	fmt.Fprintf(w, "Status: %s\n", r.Status)
	fmt.Fprintf(w, "Images: %d (succeeded %d, skipped %d, failed %d, canceled %d)\n",
		r.Total, r.Succeeded, r.Skipped, r.Failed, r.Canceled)
	if r.Restarts > 0 {
		fmt.Fprintf(w, "Server restarts: %d\n", r.Restarts)
	}
	fmt.Fprintf(w, "Time: %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

// writeRecoveryLog lists every pending file relative to the captioned folder.
func writeRecoveryLog(cfg pipeline.Config, r pipeline.Report) (string, error) {
	var pending []string
	for _, path := range r.PendingPaths() {
		rel, err := recovery.ToRelative(cfg.Dir, path)
		if err != nil {
			logger.Warn("Skipping file outside the folder in recovery log", "path", path, "error", err)
			continue
		}
		pending = append(pending, rel)
	}
	if len(pending) == 0 {
		return "", fmt.Errorf("no recoverable files")
	}

	log := &recovery.SessionLog{
		LogVersion:          recovery.CurrentLogVersion,
		RunID:               r.RunID,
		CreatedAt:           time.Now(),
		Model:               cfg.Model,
		Prompt:              cfg.Prompt,
		RefineModel:         cfg.RefineModel,
		RefinePrompt:        cfg.RefinePrompt,
		TagModels:           cfg.TagModels,
		AttachImageToRefine: cfg.AttachImageToRefine,
		Policy:              string(cfg.Policy),
		Hardware:            string(cfg.Hardware),
		Concurrency:         cfg.Concurrency,
		FailedFiles:         pending,
		TotalFiles:          r.Total,
		Status:              string(r.Status),
	}
	if r.Canceled > 0 {
		log.StatusReason = recovery.ReasonCanceled
	}
	if err := log.Validate(); err != nil {
		return "", err
	}
	return recovery.SaveSessionLog(recovery.GenerateRecoveryPath(cfg.Dir), log)
}

func writeReport(path string, r pipeline.Report, format pipeline.Format) (string, error) {
	data, err := r.Encode(format)
	if err != nil {
		return "", err
	}
	target, changed, err := files.SafePath(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve report path: %w", err)
	}
	if changed {
		logger.Warn("Report file exists; writing to a new name", "requested", path, "path", target)
	}
	if err := files.AtomicWrite(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return target, nil
}

func (o *runOutcome) statusError() error {
	if o.canceled {
		logger.Warn("Caption run canceled", "status", o.report.Status)
		return nil
	}
	switch o.report.Status {
	case pipeline.RunStatusSuccess:
		return nil
	case pipeline.RunStatusPartialSuccess, pipeline.RunStatusFailure:
		if o.recoveryLog != "" {
			return fmt.Errorf("caption run finished with status: %s (recovery log: %s)", o.report.Status, o.recoveryLog)
		}
		return fmt.Errorf("caption run finished with status: %s", o.report.Status)
	default:
		return fmt.Errorf("caption run finished with unknown status: %q", o.report.Status)
	}
}
