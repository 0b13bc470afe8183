package supervisor

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/shirou/gopsutil/v4/process"
)

// Process is one entry of the OS process table.
type Process struct {
	PID  int32
	Name string
}

type processTable interface {
	List(ctx context.Context) ([]Process, error)
	Kill(ctx context.Context, pid int32) error
}

type launcher interface {
	Launch(command []string) error
}

type gopsutilTable struct{}

func (gopsutilTable) List(ctx context.Context) ([]Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// Process exited or is not ours to inspect.
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name})
	}
	return out, nil
}

func (gopsutilTable) Kill(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}

type execLauncher struct{}

// Launch starts command in its own session with no stdio attached and does
// not wait for it.
func (execLauncher) Launch(command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("server command is empty")
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.SysProcAttr = detachedAttr()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", command[0], err)
	}
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}
