package config

import (
	"os"
	"path/filepath"
	"testing"

	"cdnhost/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	bootstrapID   = "QmaCpDMGvV2BGHeYERUEnRQAwe3N8SzbUtfsmvsqQLuvuJ"
	bootstrapAddr = "/ip4/104.131.131.82/tcp/4001/p2p/" + bootstrapID
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdnhost.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, filepath.Join("go-ipfs", "ipfs"), cfg.Binary)
	assert.Equal(t, filepath.Join("go-ipfs", ".ipfs"), cfg.RepoPath)
	assert.Equal(t, ".", cfg.WorkDir)
	assert.Len(t, cfg.Files, 11)
	assert.Equal(t, DefaultTarget, cfg.Benchmark.Target)
	assert.Equal(t, DefaultSamples, cfg.Benchmark.Samples)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"binary": "/opt/go-ipfs/ipfs",
		"repo_path": "/opt/go-ipfs/.ipfs",
		"storage_max": "20GB",
		"peers": [{"id": "`+bootstrapID+`", "address": "`+bootstrapAddr+`"}],
		"benchmark": {"samples": 4}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/go-ipfs/ipfs", cfg.Binary)
	assert.Equal(t, "/opt/go-ipfs/.ipfs", cfg.RepoPath)
	assert.Equal(t, ".", cfg.WorkDir)
	assert.Equal(t, 4, cfg.Benchmark.Samples)
	assert.Equal(t, DefaultTarget, cfg.Benchmark.Target)
	assert.Len(t, cfg.Files, len(DefaultCatalog()), "missing catalog falls back to the default")

	peers, err := cfg.PeerNodes()
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, bootstrapID, peers[0].ID())
	assert.Equal(t, bootstrapAddr, peers[0].Address())

	size, err := cfg.StorageMaxBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(20_000_000_000), size)
}

func TestLoadConfigReplacesCatalog(t *testing.T) {
	path := writeConfig(t, `{
		"files": {"logo": {"url": "https://example.com/logo.png", "hash": "QmPXaxuwPRbX5XjuNdbAS2AMK1N5J2RxLmEmxDzzMNnr3U"}}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	entries, err := cfg.Catalog()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "logo", entries[0].Name)
	assert.Equal(t, "QmPXaxuwPRbX5XjuNdbAS2AMK1N5J2RxLmEmxDzzMNnr3U", entries[0].Hash())
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `{"binary": `))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CDNHOST_BINARY", "/usr/local/bin/ipfs")
	t.Setenv("CDNHOST_REPO", "")
	t.Setenv("IPFS_PATH", "/var/lib/ipfs")
	t.Setenv("CDNHOST_METRICS_ADDR", ":9100")
	t.Setenv("CDNHOST_STORAGE_MAX", "5GB")

	cfg := LoadFromEnv()

	assert.Equal(t, "/usr/local/bin/ipfs", cfg.Binary)
	assert.Equal(t, "/var/lib/ipfs", cfg.RepoPath, "IPFS_PATH is the fallback repo")
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "5GB", cfg.StorageMax)
	assert.Equal(t, ".", cfg.WorkDir)

	t.Setenv("CDNHOST_REPO", "/srv/ipfs")
	assert.Equal(t, "/srv/ipfs", LoadFromEnv().RepoPath)
}

func TestPeerNodesValidation(t *testing.T) {
	tests := []struct {
		name string
		peer PeerConfig
	}{
		{"not a multiaddr", PeerConfig{ID: bootstrapID, Address: "104.131.131.82:4001"}},
		{"no p2p component", PeerConfig{ID: bootstrapID, Address: "/ip4/104.131.131.82/tcp/4001"}},
		{"id mismatch", PeerConfig{ID: "QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt", Address: bootstrapAddr}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Peers = []PeerConfig{tt.peer}

			_, err := cfg.PeerNodes()
			assert.Error(t, err)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("mismatch is typed", func(t *testing.T) {
		cfg := Default()
		cfg.Peers = []PeerConfig{{ID: "QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt", Address: bootstrapAddr}}
		_, err := cfg.PeerNodes()
		assert.ErrorIs(t, err, types.ErrAddressMismatch)
	})
}

func TestFile(t *testing.T) {
	cfg := Default()

	ipad, err := cfg.File("ipad")
	require.NoError(t, err)
	assert.Equal(t, "QmfBsQa4iZRsKkELk7QGP4acN4sX6WfvBvVWT4Tz5yuE24", ipad.Hash())

	_, err = cfg.File("android")
	assert.ErrorIs(t, err, ErrUnknownFile)

	cfg.Files["broken"] = FileConfig{URL: "https://example.com", Hash: "not-a-cid"}
	_, err = cfg.File("broken")
	assert.Error(t, err)
	assert.Error(t, cfg.Validate())
}

func TestCatalogIsSorted(t *testing.T) {
	entries, err := Default().Catalog()
	require.NoError(t, err)

	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Name, entries[i].Name)
	}
}

func TestStorageMaxBytes(t *testing.T) {
	cfg := Default()

	size, err := cfg.StorageMaxBytes()
	require.NoError(t, err)
	assert.Zero(t, size)

	cfg.StorageMax = "lots"
	_, err = cfg.StorageMaxBytes()
	assert.Error(t, err)
}
