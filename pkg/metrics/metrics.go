package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics tracks the host's daemon, swarm, benchmark and presence activity
type Metrics struct {
	// Client command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandFailures *prometheus.CounterVec

	// Daemon metrics
	DaemonLaunches      prometheus.Counter
	DaemonSpawnAttempts prometheus.Counter
	DaemonKills         prometheus.Counter
	DaemonReady         prometheus.Gauge

	// Swarm metrics
	PeerConnects    prometheus.Counter
	PeerDisconnects prometheus.Counter

	// Benchmark metrics
	BenchmarkAttempts prometheus.Counter
	BenchmarkAccepted prometheus.Counter
	BenchmarkRejected prometheus.Counter
	BenchmarkLatency  prometheus.Histogram

	// Presence metrics
	PresencePublished prometheus.Counter
	PresenceFailures  prometheus.Counter
	PresenceWindow    prometheus.Gauge

	// Catalog metrics
	CatalogPinned prometheus.Gauge

	registry *prometheus.Registry
	ready    atomic.Bool
}

// New creates and registers the host metrics on registry. A nil registry gets
// a fresh one, so several hosts in one process never collide.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	return &Metrics{
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdnhost_commands_total",
			Help: "Client commands issued, by subcommand",
		}, []string{"subcommand"}),
		CommandFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdnhost_command_failures_total",
			Help: "Client commands that exited non-zero, by subcommand",
		}, []string{"subcommand"}),

		DaemonLaunches: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_daemon_launches_total",
			Help: "Times the daemon had to be (re)started",
		}),
		DaemonSpawnAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_daemon_spawn_attempts_total",
			Help: "Background daemon spawn attempts",
		}),
		DaemonKills: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_daemon_kill_signals_total",
			Help: "Termination signals sent to the daemon",
		}),
		DaemonReady: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdnhost_daemon_ready",
			Help: "1 when the daemon answered its last readiness probe",
		}),

		PeerConnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_peer_connects_total",
			Help: "Swarm connect commands issued",
		}),
		PeerDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_peer_disconnects_total",
			Help: "Swarm disconnect commands issued",
		}),

		BenchmarkAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_benchmark_attempts_total",
			Help: "Benchmark fetch attempts",
		}),
		BenchmarkAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_benchmark_samples_accepted_total",
			Help: "Benchmark samples taken with every peer connected",
		}),
		BenchmarkRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_benchmark_samples_rejected_total",
			Help: "Benchmark samples discarded because a peer dropped",
		}),
		BenchmarkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdnhost_benchmark_fetch_seconds",
			Help:    "Latency of accepted benchmark fetches",
			Buckets: prometheus.DefBuckets,
		}),

		PresencePublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_presence_tokens_published_total",
			Help: "Presence tokens added and pinned",
		}),
		PresenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdnhost_presence_token_failures_total",
			Help: "Presence tokens that could not be added or pinned",
		}),
		PresenceWindow: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdnhost_presence_window",
			Help: "Session window of the last publication",
		}),

		CatalogPinned: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cdnhost_catalog_pinned_files",
			Help: "Catalog files pinned at startup",
		}),

		registry: registry,
	}
}

// Discard returns metrics nobody scrapes, for components built without any.
func Discard() *Metrics {
	return New(nil)
}

// Registry exposes the underlying registry for scraping.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetReady records the outcome of a readiness probe.
func (m *Metrics) SetReady(ready bool) {
	m.ready.Store(ready)
	if ready {
		m.DaemonReady.Set(1)
	} else {
		m.DaemonReady.Set(0)
	}
}

// RegisterHandlers mounts the scrape and health endpoints
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health/live", m.handleLiveness)
	mux.HandleFunc("/health/ready", m.handleReadiness)
}

func (m *Metrics) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReadiness mirrors the daemon readiness probe
func (m *Metrics) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if m.ready.Load() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("NOT READY"))
}

// StartServer serves the endpoints on addr in the background
func (m *Metrics) StartServer(addr string, logger *zap.Logger) *http.Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	m.RegisterHandlers(mux)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("Starting metrics server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return server
}
