package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/oukeidos/ocap/internal/auth"
	"github.com/oukeidos/ocap/internal/config"
	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/logger"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/prompt"
	"github.com/oukeidos/ocap/internal/supervisor"
)

var (
	isTerminal     = term.IsTerminal
	getToken       = auth.GetToken
	getEnvToken    = auth.GetEnvToken
	hasToken       = auth.HasToken
	saveToken      = auth.SaveToken
	deleteToken    = auth.DeleteToken
	promptForToken = auth.PromptForToken
	newConfirmer   = prompt.DefaultConfirmer
	newRestarter   = func(s config.Server) supervisor.Restarter {
		return supervisor.New(supervisor.Config{
			ProcessNames: s.ProcessNames,
			Command:      s.Command,
			SettleDelay:  s.SettleDelay,
		})
	}
)

// newClient builds the model client. A server token is optional; without one
// requests go out unauthenticated, which is what a local Ollama expects.
func newClient(cfg config.Config, allowEnv bool) *ollama.Client {
	opts := []ollama.Option{ollama.WithTimeout(cfg.Server.Timeout)}
	if token, source := getToken(allowEnv); token != "" {
		logger.Info("Using server token", "source", source)
		opts = append(opts, ollama.WithToken(token))
	}
	return ollama.NewClient(cfg.Server.URL, opts...)
}

func recordHistory(path string, e history.Entry) {
	if path == "" {
		return
	}
	if err := history.Append(path, e); err != nil {
		logger.Warn("Failed to record prompt history", "path", path, "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// signalContext cancels the returned context on SIGINT or SIGTERM. When
// onFirst is set the first signal calls it instead and only a second signal
// cancels.
func signalContext(parent context.Context, onFirst func()) (context.Context, func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := watchSignals(parent, sigCh, onFirst)
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}

func watchSignals(parent context.Context, sigCh <-chan os.Signal, onFirst func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		if onFirst != nil {
			select {
			case <-sigCh:
			case <-ctx.Done():
				return
			}
			logger.Warn("Stop requested; press Ctrl-C again to abort in-flight captions")
			onFirst()
		}
		select {
		case <-sigCh:
			logger.Warn("Cancellation requested")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
