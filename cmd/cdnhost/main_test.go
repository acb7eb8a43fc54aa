package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cdnhost/pkg/config"
	"cdnhost/pkg/presence"
	"cdnhost/pkg/types"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetFlags(t *testing.T) {
	t.Helper()
	configFile, dotipfs, binaryPath, metricsAddr = "", "", "", ""
	t.Cleanup(func() {
		configFile, dotipfs, binaryPath, metricsAddr = "", "", "", ""
	})
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	resetFlags(t)
	t.Setenv("CDNHOST_BINARY", "/usr/bin/ipfs")
	t.Setenv("CDNHOST_REPO", "/var/lib/ipfs")

	dotipfs = "/home/volunteer/.ipfs"
	metricsAddr = ":9100"

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/ipfs", cfg.Binary)
	assert.Equal(t, "/home/volunteer/.ipfs", cfg.RepoPath)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	resetFlags(t)
	configFile = filepath.Join(t.TempDir(), "cdnhost.json")
	require.NoError(t, os.WriteFile(configFile, []byte(`{"storage_max": "plenty"}`), 0644))

	_, err := loadConfig()
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestInterrupted(t *testing.T) {
	assert.NoError(t, interrupted(nil))
	assert.NoError(t, interrupted(context.Canceled))
	assert.NoError(t, interrupted(fmt.Errorf("launch: %w", context.Canceled)))

	fatal := errors.New("failed to run ipfs command")
	assert.Equal(t, fatal, interrupted(fatal))
}

func TestRenderBenchmark(t *testing.T) {
	out := renderBenchmark("ipad", &types.BenchmarkResult{
		RunID:    "run-1",
		Target:   "QmfBsQa4iZRsKkELk7QGP4acN4sX6WfvBvVWT4Tz5yuE24",
		Attempts: 4,
		Samples:  []float64{0.5, 1.5, 1.0},
		Average:  1.0,
		Bytes:    2_500_000,
	})

	assert.Contains(t, out, "BENCHMARK")
	assert.Contains(t, out, "1.000s")
	assert.Contains(t, out, "1.500")
	assert.Contains(t, out, "2.5MB")
}

func TestRenderBenchmarkWithoutSamples(t *testing.T) {
	out := renderBenchmark("ipad", &types.BenchmarkResult{Attempts: 6})
	assert.Contains(t, out, "No stable samples collected")
}

func TestRenderTokens(t *testing.T) {
	out := renderTokens(presence.TokensAt(time.Unix(120, 0)))
	for _, w := range []string{"2", "3", "4"} {
		assert.Contains(t, out, "Member of P2P CDN Session: "+w)
	}
}

func TestRenderPublication(t *testing.T) {
	id, err := cid.Decode("QmPXaxuwPRbX5XjuNdbAS2AMK1N5J2RxLmEmxDzzMNnr3U")
	require.NoError(t, err)

	out := renderPublication(presence.Publication{
		Window: 2,
		Announcements: []presence.Announcement{
			{Window: 2, Token: types.SessionWindow(2).Token(), CID: id},
			{Window: 3, Token: types.SessionWindow(3).Token(), Err: errors.New("add failed")},
		},
	})

	assert.Contains(t, out, id.String())
	assert.Contains(t, out, "PINNED")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "1/2")
}

func TestRenderBanner(t *testing.T) {
	cfg := config.Default()
	cfg.StorageMax = "10GB"

	out := renderBanner(cfg, 2, len(cfg.Files))
	assert.Contains(t, out, "P2P CDN HOST")
	assert.Contains(t, out, "10GB")
	assert.Contains(t, out, "disabled")
}
