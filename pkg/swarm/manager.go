package swarm

import (
	"context"
	"fmt"
	"strings"

	"cdnhost/pkg/metrics"
	"cdnhost/pkg/types"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client is the part of the node client used to inspect and change swarm
// membership.
type Client interface {
	SwarmAddrs(ctx context.Context) (string, error)
	SwarmConnect(ctx context.Context, addr string) error
	SwarmDisconnect(ctx context.Context, addr string) error
}

// Manager converges the swarm towards a wanted membership. Every operation is
// a no-op when the swarm already matches.
type Manager struct {
	client  Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewManager(client Client, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Manager{client: client, metrics: m, logger: logger}
}

// IsConnected reports whether peer's identifier appears among the known
// swarm addresses.
func (m *Manager) IsConnected(ctx context.Context, peer types.PeerNode) (bool, error) {
	addrs, err := m.client.SwarmAddrs(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query swarm for %s: %w", peer.ID(), err)
	}
	return strings.Contains(addrs, peer.ID()), nil
}

// AllConnected reports whether every peer is connected, using one query.
func (m *Manager) AllConnected(ctx context.Context, peers []types.PeerNode) (bool, error) {
	if len(peers) == 0 {
		return true, nil
	}
	addrs, err := m.client.SwarmAddrs(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query swarm: %w", err)
	}
	for _, p := range peers {
		if !strings.Contains(addrs, p.ID()) {
			return false, nil
		}
	}
	return true, nil
}

func (m *Manager) EnsureConnected(ctx context.Context, peer types.PeerNode) error {
	connected, err := m.IsConnected(ctx, peer)
	if err != nil {
		return err
	}
	if connected {
		return nil
	}

	m.logger.Debug("Connecting to peer",
		zap.String("peer", peer.ID()),
		zap.String("address", peer.Address()))
	m.metrics.PeerConnects.Inc()

	if err := m.client.SwarmConnect(ctx, peer.Address()); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", peer.ID(), err)
	}
	return nil
}

func (m *Manager) EnsureDisconnected(ctx context.Context, peer types.PeerNode) error {
	connected, err := m.IsConnected(ctx, peer)
	if err != nil {
		return err
	}
	if !connected {
		return nil
	}

	m.logger.Debug("Disconnecting from peer",
		zap.String("peer", peer.ID()),
		zap.String("address", peer.Address()))
	m.metrics.PeerDisconnects.Inc()

	if err := m.client.SwarmDisconnect(ctx, peer.Address()); err != nil {
		return fmt.Errorf("failed to disconnect from peer %s: %w", peer.ID(), err)
	}
	return nil
}

// EnsureAll connects every peer, attempting all of them even when some fail.
func (m *Manager) EnsureAll(ctx context.Context, peers []types.PeerNode) error {
	var errs error
	for _, p := range peers {
		errs = multierr.Append(errs, m.EnsureConnected(ctx, p))
	}
	return errs
}
