package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cdnhost/pkg/benchmark"
	"cdnhost/pkg/config"
	"cdnhost/pkg/daemon"
	"cdnhost/pkg/host"
	"cdnhost/pkg/ipfs"
	"cdnhost/pkg/metrics"
	"cdnhost/pkg/presence"
	"cdnhost/pkg/swarm"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	version         = "v0.1.0"
	shutdownTimeout = 15 * time.Second
)

var (
	configFile  string
	verbose     bool
	dotipfs     string
	binaryPath  string
	metricsAddr string
)

func main() {
	var kill bool

	rootCmd := &cobra.Command{
		Use:   "cdnhost",
		Short: "Volunteer host for the P2P CDN",
		Long: `Runs an IPFS daemon that pins the CDN catalog and keeps this machine
discoverable to the rest of the swarm through presence tokens.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kill {
				return runKill(cmd.Context())
			}
			return runHost(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&dotipfs, "dotipfs", "d", "", "/path/to/.ipfs/ (default: go-ipfs/.ipfs)")
	rootCmd.PersistentFlags().StringVar(&binaryPath, "binary", "", "path to the ipfs binary")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve metrics and health checks on this address")
	rootCmd.Flags().BoolVar(&kill, "kill", false, "kill the background node and exit")

	rootCmd.AddCommand(
		runCmd(),
		killCmd(),
		benchCmd(),
		tokensCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the host until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd.Context())
		},
	}
}

func killCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Kill the background node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKill(cmd.Context())
		},
	}
}

func benchCmd() *cobra.Command {
	var samples int

	cmd := &cobra.Command{
		Use:   "bench [file]",
		Short: "Measure fetch latency for a catalog file",
		Long: `Fetches a catalog file repeatedly with the configured peers connected,
discarding samples taken while the swarm changed, and prints the average.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			name := cfg.Benchmark.Target
			if len(args) == 1 {
				name = args[0]
			}
			if cmd.Flags().Changed("samples") {
				cfg.Benchmark.Samples = samples
			}

			target, err := cfg.File(name)
			if err != nil {
				return err
			}
			peers, err := cfg.PeerNodes()
			if err != nil {
				return err
			}

			c := build(cfg, logger)
			if err := c.supervisor.Launch(cmd.Context()); err != nil {
				return err
			}

			mgr := swarm.NewManager(c.client, c.metrics, logger)
			collector := benchmark.NewCollector(c.client, mgr, c.metrics, logger)

			result, err := collector.Collect(cmd.Context(), target, peers, cfg.Benchmark.Samples)
			if result != nil {
				fmt.Println(renderBenchmark(name, result))
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&samples, "samples", "n", config.DefaultSamples, "number of samples to collect")
	return cmd
}

func tokensCmd() *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Show the presence tokens live right now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !publish {
				fmt.Println(renderTokens(presence.TokensAt(time.Now())))
				return nil
			}

			logger := setupLogger(verbose)
			defer logger.Sync()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			c := build(cfg, logger)
			if err := c.supervisor.Launch(cmd.Context()); err != nil {
				return err
			}

			pub := presence.NewPublisher(c.client, c.metrics, logger).
				PublishCurrentWindow(cmd.Context(), time.Now())
			fmt.Println(renderPublication(pub))
			return nil
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false, "launch the daemon and publish the tokens once")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("P2P CDN Host %s\n", version)
		},
	}
}

func runHost(ctx context.Context) (err error) {
	logger := setupLogger(verbose)
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	peers, err := cfg.PeerNodes()
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	fmt.Println(renderBanner(cfg, len(peers), len(catalog)))

	c := build(cfg, logger)
	h := host.New(host.Config{
		Node:        c.client,
		Daemon:      c.supervisor,
		Presence:    presence.NewPublisher(c.client, c.metrics, logger),
		Catalog:     catalog,
		StorageMax:  cfg.StorageMax,
		MetricsAddr: cfg.MetricsAddr,
		Metrics:     c.metrics,
	}, logger)

	// Teardown runs on every exit route, including fatal command failures.
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := h.Shutdown(shutdownCtx); serr != nil {
			logger.Error("Shutdown failed", zap.Error(serr))
			if err == nil {
				err = serr
			}
		}
	}()

	if err := h.Start(ctx); err != nil {
		return interrupted(err)
	}
	logger.Info("Host is running, please keep this process alive")

	return interrupted(h.Run(ctx))
}

func runKill(ctx context.Context) error {
	logger := setupLogger(verbose)
	defer logger.Sync()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := build(cfg, logger).supervisor.Kill(ctx); err != nil {
		return fmt.Errorf("failed to kill daemon: %w", err)
	}
	logger.Info("Daemon stopped")
	return nil
}

// interrupted treats a signal-triggered cancellation as a clean exit.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type components struct {
	client     *ipfs.Client
	supervisor *daemon.Supervisor
	metrics    *metrics.Metrics
}

func build(cfg *config.Config, logger *zap.Logger) components {
	m := metrics.New(nil)
	client := ipfs.NewClient(ipfs.Config{
		Binary:   cfg.Binary,
		RepoPath: cfg.RepoPath,
		WorkDir:  cfg.WorkDir,
		Metrics:  m,
	}, logger)

	return components{
		client:     client,
		supervisor: daemon.New(client, daemon.OSProcesses{}, logger).WithMetrics(m),
		metrics:    m,
	}
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	if dotipfs != "" {
		cfg.RepoPath = dotipfs
	}
	if binaryPath != "" {
		cfg.Binary = binaryPath
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := config.Build()
	return logger
}
