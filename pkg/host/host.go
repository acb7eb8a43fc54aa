package host

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cdnhost/pkg/config"
	"cdnhost/pkg/metrics"
	"cdnhost/pkg/presence"
	"cdnhost/pkg/shared"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// CyclePeriod is how often the daemon is checked and presence refreshed.
const CyclePeriod = 60 * time.Second

type Node interface {
	RepoPath() string
	Init(ctx context.Context) bool
	SetStorageMax(ctx context.Context, size string) error
	PinAdd(ctx context.Context, hash string) error
	ID(ctx context.Context) (string, error)
}

type Daemon interface {
	Launch(ctx context.Context) error
	Kill(ctx context.Context) error
}

type Presence interface {
	PublishCurrentWindow(ctx context.Context, now time.Time) presence.Publication
}

type Config struct {
	Node     Node
	Daemon   Daemon
	Presence Presence
	Catalog  []config.Entry

	// StorageMax is applied to the repository before the daemon starts when
	// set.
	StorageMax  string
	MetricsAddr string

	Clock   shared.Clock
	Metrics *metrics.Metrics
}

// Host serves the catalog and keeps the node alive and discoverable.
type Host struct {
	node        Node
	daemon      Daemon
	presence    Presence
	catalog     []config.Entry
	storageMax  string
	metricsAddr string
	clock       shared.Clock
	metrics     *metrics.Metrics
	logger      *zap.Logger

	server       *http.Server
	shutdownOnce sync.Once
	shutdownErr  error
}

func New(cfg Config, logger *zap.Logger) *Host {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = shared.SystemClock()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Discard()
	}
	return &Host{
		node:        cfg.Node,
		daemon:      cfg.Daemon,
		presence:    cfg.Presence,
		catalog:     cfg.Catalog,
		storageMax:  cfg.StorageMax,
		metricsAddr: cfg.MetricsAddr,
		clock:       cfg.Clock,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// Start prepares the repository, brings the daemon up and pins the catalog.
func (h *Host) Start(ctx context.Context) error {
	if h.metricsAddr != "" {
		h.server = h.metrics.StartServer(h.metricsAddr, h.logger)
	}

	h.logger.Info("Initializing repository", zap.String("repo", h.node.RepoPath()))
	if !h.node.Init(ctx) {
		h.logger.Debug("Repository already initialized")
	}

	if h.storageMax != "" {
		if err := h.node.SetStorageMax(ctx, h.storageMax); err != nil {
			return fmt.Errorf("failed to set storage limit: %w", err)
		}
		h.logger.Info("Storage limit set", zap.String("storage_max", h.storageMax))
	}

	if err := h.daemon.Launch(ctx); err != nil {
		return err
	}

	if err := h.PinCatalog(ctx); err != nil {
		return err
	}

	id, err := h.node.ID(ctx)
	if err != nil {
		h.logger.Warn("Failed to read node identity", zap.Error(err))
		return nil
	}
	h.logger.Info("Node identity",
		zap.String("repo", h.node.RepoPath()),
		zap.String("id", strings.TrimSpace(id)))

	return nil
}

// PinCatalog pins every catalog file. Entries sharing a hash are pinned once.
func (h *Host) PinCatalog(ctx context.Context) error {
	pinned := make(map[string]bool, len(h.catalog))
	for _, entry := range h.catalog {
		if pinned[entry.Hash()] {
			continue
		}
		h.logger.Info("Pinning file",
			zap.String("name", entry.Name),
			zap.String("hash", entry.Hash()))
		if err := h.node.PinAdd(ctx, entry.Hash()); err != nil {
			return fmt.Errorf("failed to pin %s: %w", entry.Name, err)
		}
		pinned[entry.Hash()] = true
		h.metrics.CatalogPinned.Set(float64(len(pinned)))
	}
	return nil
}

// Cycle relaunches the daemon if it died and refreshes presence tokens.
func (h *Host) Cycle(ctx context.Context) (presence.Publication, error) {
	if err := h.daemon.Launch(ctx); err != nil {
		return presence.Publication{}, err
	}
	pub := h.presence.PublishCurrentWindow(ctx, h.clock.Now())
	h.logger.Debug("Presence refreshed",
		zap.Int64("window", int64(pub.Window)),
		zap.Int("published", pub.Published()))
	return pub, nil
}

// Run repeats Cycle every CyclePeriod until ctx ends.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info("Host running", zap.Duration("period", CyclePeriod))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := h.Cycle(ctx); err != nil {
			return err
		}
		if err := shared.Wait(ctx, h.clock, CyclePeriod); err != nil {
			return err
		}
	}
}

// Shutdown kills the daemon and stops the metrics server. Calls after the
// first return the first result.
func (h *Host) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.logger.Info("Shutting down host")

		var err error
		err = multierr.Append(err, h.daemon.Kill(ctx))
		if h.server != nil {
			err = multierr.Append(err, h.server.Shutdown(ctx))
		}
		h.shutdownErr = err
	})
	return h.shutdownErr
}
