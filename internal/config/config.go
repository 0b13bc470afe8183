// Package config resolves ocap settings from flags, OCAP_ environment
// variables, an optional ocap.yaml and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/oukeidos/ocap/internal/history"
	"github.com/oukeidos/ocap/internal/httpclient"
	"github.com/oukeidos/ocap/internal/ollama"
	"github.com/oukeidos/ocap/internal/supervisor"
)

const (
	EnvPrefix = "OCAP"
	FileName  = "ocap"
)

const (
	KeyServerURL          = "server.url"
	KeyServerTimeout      = "server.timeout"
	KeyServerRestarts     = "server.restart_budget"
	KeyServerSettleDelay  = "server.settle_delay"
	KeyServerCommand      = "server.command"
	KeyServerProcessNames = "server.process_names"
	KeyRunConcurrency     = "run.concurrency"
	KeyRunHardware        = "run.hardware"
	KeyHistoryPath        = "history.path"
)

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"server-url":     KeyServerURL,
	"timeout":        KeyServerTimeout,
	"restart-budget": KeyServerRestarts,
	"settle-delay":   KeyServerSettleDelay,
	"server-command": KeyServerCommand,
	"concurrency":    KeyRunConcurrency,
	"hardware":       KeyRunHardware,
	"history":        KeyHistoryPath,
}

type Server struct {
	URL           string
	Timeout       time.Duration
	RestartBudget int
	SettleDelay   time.Duration
	Command       []string
	ProcessNames  []string
}

type Run struct {
	Concurrency int
	Hardware    ollama.Hardware
}

type Config struct {
	Server      Server
	Run         Run
	HistoryPath string
	// File is the config file that was read, if any.
	File string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerURL, ollama.DefaultBaseURL)
	v.SetDefault(KeyServerTimeout, httpclient.DefaultTimeout)
	v.SetDefault(KeyServerRestarts, 5)
	v.SetDefault(KeyServerSettleDelay, supervisor.DefaultSettleDelay)
	v.SetDefault(KeyServerCommand, strings.Join(supervisor.DefaultCommand, " "))
	v.SetDefault(KeyServerProcessNames, supervisor.DefaultProcessNames)
	v.SetDefault(KeyRunConcurrency, 1)
	v.SetDefault(KeyRunHardware, string(ollama.HardwareCPU))
	v.SetDefault(KeyHistoryPath, history.DefaultPath)
}

// Load resolves the configuration. explicitPath, when set, must exist;
// otherwise ocap.yaml is looked up in the working directory and $HOME/.ocap.
// flags may be nil.
func Load(explicitPath string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".ocap"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	command, err := supervisor.ParseCommand(v.GetString(KeyServerCommand))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyServerCommand, err)
	}
	hw, err := ollama.ParseHardware(v.GetString(KeyRunHardware))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyRunHardware, err)
	}

	cfg := Config{
		Server: Server{
			URL:           strings.TrimSpace(v.GetString(KeyServerURL)),
			Timeout:       v.GetDuration(KeyServerTimeout),
			RestartBudget: v.GetInt(KeyServerRestarts),
			SettleDelay:   v.GetDuration(KeyServerSettleDelay),
			Command:       command,
			ProcessNames:  stringList(v.Get(KeyServerProcessNames)),
		},
		Run: Run{
			Concurrency: v.GetInt(KeyRunConcurrency),
			Hardware:    hw,
		},
		HistoryPath: v.GetString(KeyHistoryPath),
		File:        v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("%s is empty", KeyServerURL)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyServerTimeout, c.Server.Timeout)
	}
	if c.Server.RestartBudget < 0 {
		return fmt.Errorf("%s must be 0 or greater, got %d", KeyServerRestarts, c.Server.RestartBudget)
	}
	if c.Server.SettleDelay < 0 {
		return fmt.Errorf("%s must be 0 or greater, got %s", KeyServerSettleDelay, c.Server.SettleDelay)
	}
	if len(c.Server.ProcessNames) == 0 {
		return fmt.Errorf("%s is empty", KeyServerProcessNames)
	}
	return nil
}

// stringList accepts a YAML list or a comma separated string. Whitespace is
// not a separator because process names may contain spaces.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case []string:
		parts = val
	case []any:
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
	case string:
		parts = strings.Split(val, ",")
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
