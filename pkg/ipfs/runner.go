package ipfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command is one invocation of the client binary.
type Command struct {
	Path  string
	Args  []string
	Env   []string
	Dir   string
	Stdin io.Reader
}

func (c Command) String() string {
	return strings.TrimSpace(c.Path + " " + strings.Join(c.Args, " "))
}

// Subcommand is the first argument, used for logging and metric labels.
func (c Command) Subcommand() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[0]
}

// Runner executes commands. Run blocks until exit and returns stdout; a
// non-zero exit is reported as an error that includes stderr. Start spawns the
// command in the background and returns once it has been started.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
	Start(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes.
type ExecRunner struct{}

func (ExecRunner) build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	return cmd
}

func (r ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := r.build(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Start detaches the daemon from ctx: it must outlive the command that
// launched it and is stopped through the process table instead.
func (r ExecRunner) Start(_ context.Context, c Command) error {
	cmd := r.build(context.Background(), c)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
