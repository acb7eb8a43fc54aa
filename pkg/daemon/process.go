package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"
)

// ProcessController looks up and signals OS processes.
type ProcessController interface {
	// FindByName returns the pid of a running process whose executable name
	// is name.
	FindByName(ctx context.Context, name string) (pid int, found bool, err error)
	// Terminate sends a kill signal to pid.
	Terminate(ctx context.Context, pid int) error
}

// OSProcesses reads the host process table.
type OSProcesses struct{}

func (OSProcesses) FindByName(ctx context.Context, name string) (int, bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		// Processes can exit between listing and inspection.
		procName, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if procName == name {
			return int(p.Pid), true, nil
		}
		if exe, err := p.ExeWithContext(ctx); err == nil && filepath.Base(exe) == name {
			return int(p.Pid), true, nil
		}
	}
	return 0, false, nil
}

func (OSProcesses) Terminate(_ context.Context, pid int) error {
	return unix.Kill(pid, unix.SIGKILL)
}
