package ipfs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cdnhost/pkg/metrics"
	"cdnhost/pkg/shared"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
)

const RepoEnv = "IPFS_PATH"

// CommandExecutionError is returned when a command whose result is required
// exits non-zero. Callers above the client treat it as fatal.
type CommandExecutionError struct {
	Command string
	Err     error
}

func (e *CommandExecutionError) Error() string {
	return fmt.Sprintf("failed to run ipfs command: %s: %v", e.Command, e.Err)
}

func (e *CommandExecutionError) Unwrap() error { return e.Err }

// IsCommandExecutionError reports whether err carries a CommandExecutionError.
func IsCommandExecutionError(err error) bool {
	var cee *CommandExecutionError
	return errors.As(err, &cee)
}

type Config struct {
	// Binary is the path of the client executable.
	Binary string
	// RepoPath is passed to every command as IPFS_PATH.
	RepoPath string
	// WorkDir is where `get` writes fetched objects.
	WorkDir string

	Runner  Runner
	Clock   shared.Clock
	Metrics *metrics.Metrics
}

// Client is the only path through which the rest of the node talks to the
// storage network.
type Client struct {
	binary   string
	repoPath string
	workDir  string

	runner  Runner
	clock   shared.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		binary:   cfg.Binary,
		repoPath: cfg.RepoPath,
		workDir:  cfg.WorkDir,
		runner:   cfg.Runner,
		clock:    cfg.Clock,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
	if c.runner == nil {
		c.runner = ExecRunner{}
	}
	if c.clock == nil {
		c.clock = shared.SystemClock()
	}
	if c.metrics == nil {
		c.metrics = metrics.Discard()
	}
	if c.workDir == "" {
		c.workDir = "."
	}
	return c
}

// ProcessName is the name the daemon shows up under in the process table.
func (c *Client) ProcessName() string {
	return filepath.Base(c.binary)
}

func (c *Client) RepoPath() string { return c.repoPath }

// LocalPath is where `get` leaves a fetched object.
func (c *Client) LocalPath(hash string) string {
	return filepath.Join(c.workDir, hash)
}

func (c *Client) command(args ...string) Command {
	cmd := Command{
		Path: c.binary,
		Args: args,
		Dir:  c.workDir,
	}
	if c.repoPath != "" {
		cmd.Env = []string{RepoEnv + "=" + c.repoPath}
	}
	return cmd
}

// Exec runs a best-effort command. Output is discarded and failures are only
// logged; the return value reports whether the command exited cleanly.
func (c *Client) Exec(ctx context.Context, args ...string) bool {
	cmd := c.command(args...)
	c.metrics.CommandsTotal.WithLabelValues(cmd.Subcommand()).Inc()

	if _, err := c.runner.Run(ctx, cmd); err != nil {
		c.metrics.CommandFailures.WithLabelValues(cmd.Subcommand()).Inc()
		c.logger.Debug("Best-effort command failed",
			zap.String("command", cmd.String()),
			zap.Error(err))
		return false
	}
	return true
}

// Output runs a required command and returns its stdout.
func (c *Client) Output(ctx context.Context, args ...string) ([]byte, error) {
	return c.run(ctx, c.command(args...))
}

func (c *Client) run(ctx context.Context, cmd Command) ([]byte, error) {
	c.metrics.CommandsTotal.WithLabelValues(cmd.Subcommand()).Inc()

	out, err := c.runner.Run(ctx, cmd)
	if err != nil {
		c.metrics.CommandFailures.WithLabelValues(cmd.Subcommand()).Inc()
		return nil, &CommandExecutionError{Command: cmd.String(), Err: err}
	}
	return out, nil
}

// Timed runs a required command and returns its wall-clock duration.
func (c *Client) Timed(ctx context.Context, args ...string) (time.Duration, error) {
	start := c.clock.Now()
	if _, err := c.Output(ctx, args...); err != nil {
		return 0, err
	}
	elapsed := c.clock.Now().Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, nil
}

// Init creates the repository; it fails harmlessly when one already exists.
func (c *Client) Init(ctx context.Context) bool {
	return c.Exec(ctx, "init")
}

// StartDaemon spawns `daemon` in the background.
func (c *Client) StartDaemon(ctx context.Context) error {
	cmd := c.command("daemon")
	c.metrics.CommandsTotal.WithLabelValues(cmd.Subcommand()).Inc()
	if err := c.runner.Start(ctx, cmd); err != nil {
		c.metrics.CommandFailures.WithLabelValues(cmd.Subcommand()).Inc()
		return fmt.Errorf("failed to spawn daemon: %w", err)
	}
	return nil
}

// Stats is a cheap probe that only succeeds against a ready daemon.
func (c *Client) Stats(ctx context.Context, subsystem string) bool {
	return c.Exec(ctx, "stats", subsystem)
}

func (c *Client) ID(ctx context.Context) (string, error) {
	out, err := c.Output(ctx, "id")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *Client) SwarmAddrs(ctx context.Context) (string, error) {
	out, err := c.Output(ctx, "swarm", "addrs")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *Client) SwarmConnect(ctx context.Context, addr string) error {
	_, err := c.Output(ctx, "swarm", "connect", addr)
	return err
}

func (c *Client) SwarmDisconnect(ctx context.Context, addr string) error {
	_, err := c.Output(ctx, "swarm", "disconnect", addr)
	return err
}

// RepoGC evicts every unpinned block.
func (c *Client) RepoGC(ctx context.Context) bool {
	return c.Exec(ctx, "repo", "gc")
}

// Get fetches hash into the work directory and reports how long it took.
func (c *Client) Get(ctx context.Context, hash string) (time.Duration, error) {
	return c.Timed(ctx, "get", hash)
}

func (c *Client) PinAdd(ctx context.Context, hash string) error {
	_, err := c.Output(ctx, "pin", "add", hash)
	return err
}

func (c *Client) PinObject(ctx context.Context, id cid.Cid) error {
	return c.PinAdd(ctx, id.String())
}

// SetStorageMax caps the repository size used before garbage collection.
func (c *Client) SetStorageMax(ctx context.Context, size string) error {
	_, err := c.Output(ctx, "config", "Datastore.StorageMax", size)
	return err
}

// AddObject stores data as a new object and returns its identifier.
func (c *Client) AddObject(ctx context.Context, data []byte) (cid.Cid, error) {
	cmd := c.command("add")
	cmd.Stdin = bytes.NewReader(data)

	out, err := c.run(ctx, cmd)
	if err != nil {
		return cid.Undef, err
	}

	id, err := ParseAddOutput(out)
	if err != nil {
		return cid.Undef, &CommandExecutionError{Command: cmd.String(), Err: err}
	}
	return id, nil
}

// ParseAddOutput extracts the identifier from `add` output, which is either
// "added <cid> <name>" lines or a bare identifier in quiet mode.
func ParseAddOutput(out []byte) (cid.Cid, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		var raw string
		switch {
		case len(fields) >= 2 && fields[0] == "added":
			raw = fields[1]
		case len(fields) == 1:
			raw = fields[0]
		default:
			continue
		}
		id, err := cid.Decode(raw)
		if err != nil {
			return cid.Undef, fmt.Errorf("invalid identifier %q in add output: %w", raw, err)
		}
		return id, nil
	}
	return cid.Undef, fmt.Errorf("no identifier in add output %q", strings.TrimSpace(string(out)))
}
