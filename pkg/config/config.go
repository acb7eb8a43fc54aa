package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cdnhost/pkg/types"

	"github.com/docker/go-units"
	"github.com/ipfs/go-cid"
	ma "github.com/multiformats/go-multiaddr"
)

var ErrUnknownFile = errors.New("file not in catalog")

const (
	DefaultInstallDir = "go-ipfs"
	DefaultSamples    = 10
	DefaultTarget     = "ipad"
)

type Config struct {
	Binary      string                `json:"binary"`
	RepoPath    string                `json:"repo_path"`
	WorkDir     string                `json:"work_dir"`
	StorageMax  string                `json:"storage_max,omitempty"`
	MetricsAddr string                `json:"metrics_address,omitempty"`
	Peers       []PeerConfig          `json:"peers"`
	Files       map[string]FileConfig `json:"files"`
	Benchmark   BenchmarkConfig       `json:"benchmark"`
}

type PeerConfig struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type FileConfig struct {
	URL  string `json:"url"`
	Hash string `json:"hash"`
}

type BenchmarkConfig struct {
	// Target names a catalog entry.
	Target  string `json:"target"`
	Samples int    `json:"samples"`
}

// Default points at an unpacked go-ipfs distribution in the working directory
// and serves the built-in catalog.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Binary == "" {
		c.Binary = filepath.Join(DefaultInstallDir, "ipfs")
	}
	if c.RepoPath == "" {
		c.RepoPath = filepath.Join(DefaultInstallDir, ".ipfs")
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	if len(c.Files) == 0 {
		c.Files = DefaultCatalog()
	}
	if c.Benchmark.Target == "" {
		c.Benchmark.Target = DefaultTarget
	}
	if c.Benchmark.Samples == 0 {
		c.Benchmark.Samples = DefaultSamples
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func LoadFromEnv() *Config {
	cfg := &Config{
		Binary:      getEnv("CDNHOST_BINARY", ""),
		RepoPath:    getEnv("CDNHOST_REPO", os.Getenv("IPFS_PATH")),
		WorkDir:     getEnv("CDNHOST_WORK_DIR", ""),
		StorageMax:  getEnv("CDNHOST_STORAGE_MAX", ""),
		MetricsAddr: getEnv("CDNHOST_METRICS_ADDR", ""),
	}
	cfg.applyDefaults()
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Validate checks every entry can be turned into a domain value.
func (c *Config) Validate() error {
	if c.Binary == "" {
		return errors.New("binary path is required")
	}
	if _, err := c.PeerNodes(); err != nil {
		return err
	}
	if _, err := c.Catalog(); err != nil {
		return err
	}
	if _, err := c.StorageMaxBytes(); err != nil {
		return err
	}
	if c.Benchmark.Samples < 0 {
		return fmt.Errorf("benchmark samples must not be negative, got %d", c.Benchmark.Samples)
	}
	return nil
}

// PeerNodes converts the configured peers. Each address must be a multiaddr
// whose /p2p component is the peer's ID.
func (c *Config) PeerNodes() ([]types.PeerNode, error) {
	peers := make([]types.PeerNode, 0, len(c.Peers))
	for _, p := range c.Peers {
		addr, err := ma.NewMultiaddr(p.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid address for peer %s: %w", p.ID, err)
		}
		id, err := addr.ValueForProtocol(ma.P_P2P)
		if err != nil {
			return nil, fmt.Errorf("address for peer %s has no /p2p component: %w", p.ID, err)
		}
		if id != p.ID {
			return nil, fmt.Errorf("%w: configured %s, address names %s", types.ErrAddressMismatch, p.ID, id)
		}

		node, err := types.NewPeerNode(p.ID, p.Address)
		if err != nil {
			return nil, err
		}
		peers = append(peers, node)
	}
	return peers, nil
}

// Entry is a named catalog file.
type Entry struct {
	Name string
	types.ContentDescriptor
}

// Catalog returns every catalog file sorted by name.
func (c *Config) Catalog() ([]Entry, error) {
	names := make([]string, 0, len(c.Files))
	for name := range c.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		desc, err := c.File(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: name, ContentDescriptor: desc})
	}
	return entries, nil
}

// File looks up one catalog entry by name.
func (c *Config) File(name string) (types.ContentDescriptor, error) {
	f, ok := c.Files[name]
	if !ok {
		return types.ContentDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}
	if _, err := cid.Decode(f.Hash); err != nil {
		return types.ContentDescriptor{}, fmt.Errorf("invalid hash for file %s: %w", name, err)
	}
	return types.NewContentDescriptor(f.URL, f.Hash)
}

// StorageMaxBytes parses StorageMax; zero means leave the daemon's default.
func (c *Config) StorageMaxBytes() (int64, error) {
	if c.StorageMax == "" {
		return 0, nil
	}
	size, err := units.FromHumanSize(c.StorageMax)
	if err != nil {
		return 0, fmt.Errorf("invalid storage_max: %w", err)
	}
	return size, nil
}
