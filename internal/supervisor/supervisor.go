// Package supervisor restarts a hung local model server.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oukeidos/ocap/internal/logger"
)

// DefaultSettleDelay is how long a restarting worker waits for the new server
// to load before retrying.
const DefaultSettleDelay = 10 * time.Second

// DefaultProcessNames are the executable names killed on restart.
var DefaultProcessNames = []string{
	"ollama",
	"ollama.exe",
	"ollama app.exe",
	"ollama_llama_server",
	"ollama_llama_server.exe",
}

// DefaultCommand relaunches the server.
var DefaultCommand = []string{"ollama", "serve"}

// Restarter is the part of the supervisor the pipeline depends on.
type Restarter interface {
	Restart(ctx context.Context)
}

type Config struct {
	ProcessNames []string
	Command      []string
	// SettleDelay is used as given; zero disables the wait.
	SettleDelay time.Duration
}

type Supervisor struct {
	names   map[string]struct{}
	command []string
	settle  time.Duration

	procs  processTable
	launch launcher
	sleep  func(ctx context.Context, d time.Duration)

	mu       sync.Mutex
	restarts atomic.Int64
}

// New returns a supervisor backed by the real process table. Empty name or
// command lists select the defaults.
func New(cfg Config) *Supervisor {
	names := cfg.ProcessNames
	if len(names) == 0 {
		names = DefaultProcessNames
	}
	command := cfg.Command
	if len(command) == 0 {
		command = DefaultCommand
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	settle := cfg.SettleDelay
	if settle < 0 {
		settle = 0
	}
	return &Supervisor{
		names:   set,
		command: append([]string(nil), command...),
		settle:  settle,
		procs:   gopsutilTable{},
		launch:  execLauncher{},
		sleep:   sleepContext,
	}
}

// Restart kills every matching server process, relaunches the server command
// detached from ocap and then blocks for the settle delay. Failures are logged
// and swallowed. Concurrent calls are serialized.
func (s *Supervisor) Restart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.restarts.Add(1)
	logger.Warn("Restarting model server", "attempt", n, "command", strings.Join(s.command, " "))

	killed := s.killMatching(ctx)
	if killed == 0 {
		logger.Debug("No model server process found to kill")
	}

	if err := s.launch.Launch(s.command); err != nil {
		logger.Error("Failed to relaunch model server", "command", strings.Join(s.command, " "), "error", err)
	} else {
		logger.Info("Model server relaunched", "settle", s.settle)
	}

	s.sleep(ctx, s.settle)
}

// Restarts reports how many restarts this supervisor has performed.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

func (s *Supervisor) killMatching(ctx context.Context) int {
	procs, err := s.procs.List(ctx)
	if err != nil {
		logger.Error("Failed to enumerate processes", "error", err)
		return 0
	}
	self := int32(os.Getpid())
	killed := 0
	for _, p := range procs {
		if p.PID == self || !s.matches(p.Name) {
			continue
		}
		if err := s.procs.Kill(ctx, p.PID); err != nil {
			logger.Warn("Failed to kill model server process", "pid", p.PID, "name", p.Name, "error", err)
			continue
		}
		logger.Info("Killed model server process", "pid", p.PID, "name", p.Name)
		killed++
	}
	return killed
}

func (s *Supervisor) matches(name string) bool {
	_, ok := s.names[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ParseCommand splits a configured command line on whitespace.
func ParseCommand(line string) ([]string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("server command is empty")
	}
	return fields, nil
}
