package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"cdnhost/pkg/metrics"
	"cdnhost/pkg/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrNoSamples          = errors.New("benchmark collected no samples")
	ErrInvalidSampleCount = errors.New("desired sample count must be positive")
)

// Node is the part of the client a benchmark fetches through.
type Node interface {
	RepoGC(ctx context.Context) bool
	Get(ctx context.Context, hash string) (time.Duration, error)
	LocalPath(hash string) string
}

// Swarm keeps the benchmark peers connected and checks on them.
type Swarm interface {
	EnsureConnected(ctx context.Context, peer types.PeerNode) error
	AllConnected(ctx context.Context, peers []types.PeerNode) (bool, error)
}

// Collector measures how long fetching an object from the swarm takes.
type Collector struct {
	node    Node
	swarm   Swarm
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewCollector(node Node, swarm Swarm, m *metrics.Metrics, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Collector{node: node, swarm: swarm, metrics: m, logger: logger}
}

// Collect fetches target until desired samples were taken with every peer
// connected, giving up after 2*desired attempts. Each fetch starts from an
// evicted local store so it has to come over the network. A sample taken
// while any peer was disconnected is discarded but still uses an attempt.
//
// The returned result is non-nil whenever desired is valid, also alongside an
// error, so callers can report how far the run got. ErrNoSamples means no
// attempt produced a usable sample.
func (c *Collector) Collect(ctx context.Context, target types.ContentDescriptor, peers []types.PeerNode, desired int) (*types.BenchmarkResult, error) {
	if desired <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleCount, desired)
	}

	result := &types.BenchmarkResult{
		RunID:  uuid.NewString(),
		Target: target.Hash(),
	}
	local := c.node.LocalPath(target.Hash())
	maxAttempts := 2 * desired

	logger := c.logger.With(
		zap.String("run_id", result.RunID),
		zap.String("target", target.Hash()))
	logger.Info("Collecting benchmark samples",
		zap.Int("peers", len(peers)),
		zap.Int("samples", desired))

	defer func() {
		if err := os.RemoveAll(local); err != nil {
			logger.Warn("Failed to remove fetched object", zap.String("path", local), zap.Error(err))
		}
	}()

	for len(result.Samples) < desired && result.Attempts < maxAttempts {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.Attempts++
		c.metrics.BenchmarkAttempts.Inc()
		logger.Info("Benchmark attempt",
			zap.Int("attempt", result.Attempts),
			zap.Int("min", desired),
			zap.Int("max", maxAttempts))

		for _, p := range peers {
			if err := c.swarm.EnsureConnected(ctx, p); err != nil {
				logger.Warn("Failed to reconnect peer",
					zap.String("peer", p.ID()),
					zap.Error(err))
			}
		}

		c.node.RepoGC(ctx)
		if err := os.RemoveAll(local); err != nil {
			return result, fmt.Errorf("failed to remove stale copy of %s: %w", target.Hash(), err)
		}

		elapsed, err := c.node.Get(ctx, target.Hash())
		if err != nil {
			return result, fmt.Errorf("benchmark fetch failed: %w", err)
		}
		if size, err := diskUsage(local); err == nil {
			result.Bytes = size
		}

		connected, err := c.swarm.AllConnected(ctx, peers)
		if err != nil {
			return result, err
		}
		if !connected {
			c.metrics.BenchmarkRejected.Inc()
			logger.Info("Peer dropped during fetch, discarding sample",
				zap.Int("attempt", result.Attempts),
				zap.Duration("elapsed", elapsed))
			continue
		}

		c.metrics.BenchmarkAccepted.Inc()
		c.metrics.BenchmarkLatency.Observe(elapsed.Seconds())
		result.Samples = append(result.Samples, elapsed.Seconds())
	}

	if len(result.Samples) == 0 {
		return result, fmt.Errorf("%w after %d attempts", ErrNoSamples, result.Attempts)
	}

	result.Average = types.Mean(result.Samples)
	logger.Info("Benchmark complete",
		zap.Int("attempts", result.Attempts),
		zap.Int("samples", len(result.Samples)),
		zap.Float64("average_seconds", result.Average))
	return result, nil
}

// diskUsage sums the sizes of the files under path.
func diskUsage(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
