package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/oukeidos/ocap/internal/cleanup"
	"github.com/oukeidos/ocap/internal/config"
	"github.com/oukeidos/ocap/internal/files"
	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/httpclient"
	"github.com/oukeidos/ocap/internal/logger"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/version"
)

func execute() {
	err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version.Info()))
	if cleanupErr := cleanup.RunAll(); cleanupErr != nil {
		fmt.Fprintln(os.Stderr, cleanupErr)
		if err == nil {
			err = cleanupErr
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

// rootOptions carries the global flags and the resolved configuration to
// every subcommand.
type rootOptions struct {
	configPath  string
	debug       bool
	logFilePath string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ocap",
		Short: "Batch image captioner for Ollama",
		Long: `ocap captions every image in a folder with a local Ollama model and
writes the caption to a .txt file next to each image.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if hasAnyFlagSet(cmd) {
					_ = cmd.Usage()
					return fmt.Errorf("a command is required")
				}
				return cmd.Help()
			}
			_ = cmd.Usage()
			if isDir(args[0]) {
				return fmt.Errorf("unknown command %q for %q; to caption a folder use \"ocap run %s\"", args[0], cmd.CommandPath(), args[0])
			}
			return fmt.Errorf("unknown command %q for %q", args[0], cmd.CommandPath())
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setup(cmd)
		},
		SilenceUsage: true,
	}

	cmd.Version = version.Info()
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetUsageTemplate(rootUsageTemplate)

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to an ocap.yaml config file")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&opts.logFilePath, "log-file", "", "Path to save machine-readable JSONL logs")
	pf.String("server-url", ollama.DefaultBaseURL, "Ollama API base URL")
	pf.Duration("timeout", httpclient.DefaultTimeout, "Per-request timeout for model calls")
	pf.String("history", history.DefaultPath, "Prompt history CSV file")

	cmd.AddCommand(
		newAboutCmd(opts),
		newRunCmd(opts),
		newRetryCmd(opts),
		newCaptionCmd(opts),
		newModelsCmd(opts),
		newTextCmd(),
		newHistoryCmd(opts),
		newEnvCmd(),
	)

	cmd.InitDefaultCompletionCmd()
	for _, sub := range cmd.Commands() {
		if sub.Name() == "completion" {
			sub.Short = "Generate shell completion scripts"
			sub.SetUsageTemplate(subcommandUsageTemplate)
			break
		}
	}

	return cmd
}

// setup loads .env, installs the logger and resolves the configuration.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	level := logger.LevelInfo
	if o.debug {
		level = logger.LevelDebug
	}
	var logFileW io.Writer
	if o.logFilePath != "" {
		if err := files.RejectSymlinkPath(o.logFilePath); err != nil {
			return err
		}
		f, err := os.OpenFile(o.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cleanup.Register("log file", f.Close)
		logFileW = f
	}
	logger.Init(level, logFileW)

	cfg, err := config.Load(o.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.File != "" {
		logger.Debug("Loaded config file", "path", cfg.File)
	}
	o.cfg = cfg
	return nil
}

func hasAnyFlagSet(cmd *cobra.Command) bool {
	changed := false
	cmd.Flags().Visit(func(_ *pflag.Flag) {
		changed = true
	})
	return changed
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
