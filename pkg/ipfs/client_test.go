package ipfs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cdnhost/pkg/ipfs"
	"cdnhost/pkg/ipfs/ipfstest"
	"cdnhost/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, node *ipfstest.FakeNode, clk *ipfstest.ManualClock, m *metrics.Metrics) *ipfs.Client {
	return ipfs.NewClient(ipfs.Config{
		Binary:   "/opt/go-ipfs/ipfs",
		RepoPath: "/opt/go-ipfs/.ipfs",
		WorkDir:  t.TempDir(),
		Runner:   node,
		Clock:    clk,
		Metrics:  m,
	}, zaptest.NewLogger(t))
}

func TestClientPassesRepoPathPerCommand(t *testing.T) {
	node := ipfstest.NewFakeNode()
	client := newTestClient(t, node, ipfstest.NewManualClock(time.Unix(0, 0)), nil)

	_, err := client.ID(context.Background())
	require.NoError(t, err)

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/go-ipfs/ipfs", calls[0].Path)
	assert.Equal(t, []string{"id"}, calls[0].Args)
	assert.Equal(t, []string{"IPFS_PATH=/opt/go-ipfs/.ipfs"}, calls[0].Env)

	assert.NotEqual(t, "/opt/go-ipfs/.ipfs", os.Getenv(ipfs.RepoEnv), "client must not mutate the process environment")
}

func TestClientProcessName(t *testing.T) {
	client := ipfs.NewClient(ipfs.Config{Binary: "/opt/go-ipfs/ipfs"}, nil)
	assert.Equal(t, "ipfs", client.ProcessName())
}

func TestExecSwallowsFailures(t *testing.T) {
	node := ipfstest.NewFakeNode()
	node.Fail["repo gc"] = errors.New("exit status 1")
	m := metrics.Discard()
	client := newTestClient(t, node, ipfstest.NewManualClock(time.Unix(0, 0)), m)

	assert.False(t, client.RepoGC(context.Background()))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandFailures.WithLabelValues("repo")))
	assert.True(t, client.Init(context.Background()))
}

func TestOutputReportsCommandExecutionError(t *testing.T) {
	node := ipfstest.NewFakeNode()
	node.Fail["swarm addrs"] = errors.New("exit status 1: api not running")
	client := newTestClient(t, node, ipfstest.NewManualClock(time.Unix(0, 0)), nil)

	_, err := client.SwarmAddrs(context.Background())
	require.Error(t, err)

	var cee *ipfs.CommandExecutionError
	require.True(t, errors.As(err, &cee))
	assert.Equal(t, "/opt/go-ipfs/ipfs swarm addrs", cee.Command)
	assert.Contains(t, err.Error(), "failed to run ipfs command")
	assert.True(t, ipfs.IsCommandExecutionError(err))
	assert.False(t, ipfs.IsCommandExecutionError(errors.New("other")))
}

func TestTimedGet(t *testing.T) {
	node := ipfstest.NewFakeNode()
	clk := ipfstest.NewManualClock(time.Unix(1000, 0))
	node.Clock = clk
	node.GetLatency = 1500 * time.Millisecond
	client := newTestClient(t, node, clk, nil)

	elapsed, err := client.Get(context.Background(), "QmXYZ")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, elapsed)

	_, err = os.Stat(client.LocalPath("QmXYZ"))
	assert.NoError(t, err, "get should leave the object in the work dir")
	assert.Equal(t, "QmXYZ", filepath.Base(client.LocalPath("QmXYZ")))
}

func TestTimedFailure(t *testing.T) {
	node := ipfstest.NewFakeNode()
	node.Fail["get"] = errors.New("context deadline exceeded")
	client := newTestClient(t, node, ipfstest.NewManualClock(time.Unix(0, 0)), nil)

	_, err := client.Get(context.Background(), "QmXYZ")
	assert.True(t, ipfs.IsCommandExecutionError(err))
}

func TestAddAndPinObject(t *testing.T) {
	node := ipfstest.NewFakeNode()
	client := newTestClient(t, node, ipfstest.NewManualClock(time.Unix(0, 0)), nil)
	ctx := context.Background()

	id, err := client.AddObject(ctx, []byte("Member of P2P CDN Session: 2"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id.Version())

	data, ok := node.Object(id.String())
	require.True(t, ok)
	assert.Equal(t, "Member of P2P CDN Session: 2", string(data))

	require.NoError(t, client.PinObject(ctx, id))
	assert.True(t, node.Pinned(id.String()))
}

func TestParseAddOutput(t *testing.T) {
	const hash = "QmfBsQa4iZRsKkELk7QGP4acN4sX6WfvBvVWT4Tz5yuE24"

	tests := []struct {
		name    string
		output  string
		wantErr bool
	}{
		{"added line", "added " + hash + " " + hash + "\n", false},
		{"progress then added", "\n added " + hash + " token\n", false},
		{"quiet", hash + "\n", false},
		{"empty", "", true},
		{"garbage id", "added not-a-cid name\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ipfs.ParseAddOutput([]byte(tt.output))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, hash, id.String())
		})
	}
}

func TestSetStorageMax(t *testing.T) {
	node := ipfstest.NewFakeNode()
	client := newTestClient(t, node, ipfstest.NewManualClock(time.Unix(0, 0)), nil)

	require.NoError(t, client.SetStorageMax(context.Background(), "10GB"))
	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"config", "Datastore.StorageMax", "10GB"}, calls[0].Args)
}

func TestCommandString(t *testing.T) {
	cmd := ipfs.Command{Path: "ipfs", Args: []string{"swarm", "connect", "/ip4/1.2.3.4/tcp/4001/p2p/QmA"}}
	assert.Equal(t, "ipfs swarm connect /ip4/1.2.3.4/tcp/4001/p2p/QmA", cmd.String())
	assert.Equal(t, "swarm", cmd.Subcommand())
	assert.Equal(t, "", ipfs.Command{Path: "ipfs"}.Subcommand())
}
