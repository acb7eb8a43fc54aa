package daemon

import (
	"context"
	"fmt"
	"time"

	"cdnhost/pkg/metrics"
	"cdnhost/pkg/shared"

	"go.uber.org/zap"
)

const (
	ReadyPollInterval  = 1 * time.Second
	SpawnRetryInterval = 1 * time.Second
	KillPollInterval   = 100 * time.Millisecond

	// readinessProbe is a stats subsystem that only answers once the daemon
	// has finished opening its repository.
	readinessProbe = "bitswap"
)

// State is the daemon's condition as observed right now. It is never stored.
type State int

const (
	NotRunning State = iota
	RunningNotReady
	Ready
)

func (s State) String() string {
	switch s {
	case NotRunning:
		return "not running"
	case RunningNotReady:
		return "running, not ready"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Node is the part of the client the supervisor drives.
type Node interface {
	ProcessName() string
	StartDaemon(ctx context.Context) error
	Stats(ctx context.Context, subsystem string) bool
}

// Supervisor keeps exactly one daemon alive for the node's repository.
type Supervisor struct {
	node    Node
	procs   ProcessController
	clock   shared.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(node Node, procs ProcessController, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if procs == nil {
		procs = OSProcesses{}
	}
	return &Supervisor{
		node:    node,
		procs:   procs,
		clock:   shared.SystemClock(),
		metrics: metrics.Discard(),
		logger:  logger,
	}
}

func (s *Supervisor) WithClock(c shared.Clock) *Supervisor {
	s.clock = c
	return s
}

func (s *Supervisor) WithMetrics(m *metrics.Metrics) *Supervisor {
	s.metrics = m
	return s
}

// IsRunning looks the daemon up in the process table.
func (s *Supervisor) IsRunning(ctx context.Context) (int, bool, error) {
	return s.procs.FindByName(ctx, s.node.ProcessName())
}

// IsReady probes the daemon. A running daemon that is still loading its
// index is not ready.
func (s *Supervisor) IsReady(ctx context.Context) bool {
	ready := s.node.Stats(ctx, readinessProbe)
	s.metrics.SetReady(ready)
	return ready
}

func (s *Supervisor) State(ctx context.Context) (State, error) {
	if s.IsReady(ctx) {
		return Ready, nil
	}
	_, running, err := s.IsRunning(ctx)
	if err != nil {
		return NotRunning, err
	}
	if running {
		return RunningNotReady, nil
	}
	return NotRunning, nil
}

// Launch returns once the daemon is ready, starting it if needed. A daemon
// that is running but not answering is treated as broken and replaced. Spawn
// and readiness retries are unbounded; only ctx stops them.
func (s *Supervisor) Launch(ctx context.Context) error {
	if s.IsReady(ctx) {
		return nil
	}

	_, running, err := s.IsRunning(ctx)
	if err != nil {
		return err
	}
	if running {
		s.logger.Info("Daemon running but not ready, restarting it")
		if err := s.Kill(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("Launching daemon...")
	s.metrics.DaemonLaunches.Inc()

	if err := s.spawn(ctx); err != nil {
		return err
	}
	if err := s.waitReady(ctx); err != nil {
		return err
	}

	s.logger.Info("Daemon ready")
	return nil
}

// spawn starts the daemon until it shows up in the process table. Every
// attempt is followed by exactly one process table poll.
func (s *Supervisor) spawn(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.metrics.DaemonSpawnAttempts.Inc()
		if err := s.node.StartDaemon(ctx); err != nil {
			s.logger.Warn("Failed to spawn daemon, will retry",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if kerr := s.Kill(ctx); kerr != nil {
				s.logger.Warn("Failed to clean up partial daemon", zap.Error(kerr))
			}
		}

		pid, running, err := s.IsRunning(ctx)
		if err != nil {
			return err
		}
		if running {
			s.logger.Debug("Daemon process started",
				zap.Int("pid", pid),
				zap.Int("attempts", attempt))
			return nil
		}

		if err := shared.Wait(ctx, s.clock, SpawnRetryInterval); err != nil {
			return err
		}
	}
}

func (s *Supervisor) waitReady(ctx context.Context) error {
	for !s.IsReady(ctx) {
		s.logger.Info("Waiting for daemon... [may take a min, do not quit]")
		if err := shared.Wait(ctx, s.clock, ReadyPollInterval); err != nil {
			return err
		}
	}
	return nil
}

// Kill stops every daemon instance. It succeeds when none was running, and
// stops trying once a signal can no longer be delivered.
func (s *Supervisor) Kill(ctx context.Context) error {
	pid, found, err := s.IsRunning(ctx)
	if err != nil {
		return err
	}

	for found {
		s.logger.Info("Killing daemon...", zap.Int("pid", pid))
		s.metrics.DaemonKills.Inc()

		if err := s.procs.Terminate(ctx, pid); err != nil {
			s.logger.Debug("Could not signal daemon, assuming it is gone",
				zap.Int("pid", pid),
				zap.Error(err))
			break
		}
		if err := shared.Wait(ctx, s.clock, KillPollInterval); err != nil {
			return err
		}

		if pid, found, err = s.IsRunning(ctx); err != nil {
			return err
		}
	}

	s.metrics.SetReady(false)
	return nil
}
