// Package ipfstest provides an in-memory stand-in for the ipfs binary and a
// manual clock, so tests never spawn processes or sleep.
package ipfstest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cdnhost/pkg/ipfs"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

const DaemonPID = 4242

var ErrNotRunning = errors.New("daemon not running")

// FakeNode implements ipfs.Runner and the daemon's process controller over a
// scripted in-memory node.
type FakeNode struct {
	mu sync.Mutex

	// ReadyAfter is how many readiness probes fail after a spawn before the
	// daemon reports ready.
	ReadyAfter int
	// SpawnsBeforeRunning is how many spawns are swallowed before the process
	// shows up in the process table.
	SpawnsBeforeRunning int
	// Fail maps an operation key ("swarm connect", "get", "add", ...) to the
	// error that operation returns.
	Fail map[string]error
	// Clock, when set, is advanced by GetLatency on every fetch.
	Clock      *ManualClock
	GetLatency time.Duration
	// AfterGet runs after every fetch with the 1-based fetch count.
	AfterGet func(n *FakeNode, count int)

	running   bool
	ready     bool
	probes    int
	spawns    int
	gets      int
	connected map[string]bool
	pins      map[string]bool
	objects   map[string][]byte
	calls     []ipfs.Command
}

func NewFakeNode() *FakeNode {
	return &FakeNode{
		Fail:      make(map[string]error),
		connected: make(map[string]bool),
		pins:      make(map[string]bool),
		objects:   make(map[string][]byte),
	}
}

// Key names an operation by its subcommand words.
func Key(args []string) string {
	if len(args) == 0 {
		return ""
	}
	switch args[0] {
	case "swarm", "repo", "pin", "config":
		if len(args) > 1 {
			return args[0] + " " + args[1]
		}
	}
	return args[0]
}

func (n *FakeNode) Run(ctx context.Context, cmd ipfs.Command) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var input []byte
	if cmd.Stdin != nil {
		var err error
		if input, err = io.ReadAll(cmd.Stdin); err != nil {
			return nil, err
		}
	}

	n.mu.Lock()
	n.calls = append(n.calls, cmd)
	key := Key(cmd.Args)
	if err := n.Fail[key]; err != nil {
		n.mu.Unlock()
		return nil, err
	}

	out, hook, count, err := n.handle(key, cmd, input)
	n.mu.Unlock()

	if hook != nil {
		hook(n, count)
	}
	return out, err
}

func (n *FakeNode) handle(key string, cmd ipfs.Command, input []byte) ([]byte, func(*FakeNode, int), int, error) {
	arg := func(i int) string {
		if i < len(cmd.Args) {
			return cmd.Args[i]
		}
		return ""
	}

	switch key {
	case "init", "config Datastore.StorageMax":
		return nil, nil, 0, nil

	case "stats":
		if !n.running {
			return nil, nil, 0, ErrNotRunning
		}
		if !n.ready {
			n.probes++
			if n.probes <= n.ReadyAfter {
				return nil, nil, 0, errors.New("daemon still initializing")
			}
			n.ready = true
		}
		return []byte("bitswap status\n"), nil, 0, nil

	case "id":
		return []byte(`{"ID": "QmSelf"}` + "\n"), nil, 0, nil

	case "swarm addrs":
		addrs := make([]string, 0, len(n.connected))
		for addr := range n.connected {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		return []byte(strings.Join(addrs, "\n")), nil, 0, nil

	case "swarm connect":
		n.connected[arg(2)] = true
		return []byte("connect " + arg(2) + " success\n"), nil, 0, nil

	case "swarm disconnect":
		delete(n.connected, arg(2))
		return []byte("disconnect " + arg(2) + " success\n"), nil, 0, nil

	case "repo gc":
		return nil, nil, 0, nil

	case "get":
		n.gets++
		if n.Clock != nil {
			n.Clock.Advance(n.GetLatency)
		}
		data, ok := n.objects[arg(1)]
		if !ok {
			data = []byte("object " + arg(1))
		}
		if err := os.WriteFile(filepath.Join(cmd.Dir, arg(1)), data, 0644); err != nil {
			return nil, nil, 0, err
		}
		return nil, n.AfterGet, n.gets, nil

	case "add":
		id, err := cid.Prefix{
			Version:  0,
			Codec:    cid.DagProtobuf,
			MhType:   mh.SHA2_256,
			MhLength: -1,
		}.Sum(input)
		if err != nil {
			return nil, nil, 0, err
		}
		n.objects[id.String()] = input
		return []byte(fmt.Sprintf("added %s %s\n", id, id)), nil, 0, nil

	case "pin add":
		n.pins[arg(2)] = true
		return []byte("pinned " + arg(2) + " recursively\n"), nil, 0, nil
	}

	return nil, nil, 0, fmt.Errorf("unknown command %q", cmd.String())
}

func (n *FakeNode) Start(ctx context.Context, cmd ipfs.Command) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, cmd)
	if err := n.Fail[Key(cmd.Args)]; err != nil {
		return err
	}
	n.spawns++
	if n.spawns > n.SpawnsBeforeRunning {
		n.running = true
	}
	return nil
}

// FindByName reports the fake daemon in the process table.
func (n *FakeNode) FindByName(ctx context.Context, name string) (int, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return DaemonPID, true, nil
	}
	return 0, false, nil
}

// Terminate kills the fake daemon.
func (n *FakeNode) Terminate(ctx context.Context, pid int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running || pid != DaemonPID {
		return os.ErrProcessDone
	}
	n.running = false
	n.ready = false
	n.probes = 0
	return nil
}

// SetRunning puts the daemon in the process table, optionally ready.
func (n *FakeNode) SetRunning(running, ready bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.running = running
	n.ready = ready
}

// Connect marks addr as a known swarm address without issuing a command.
func (n *FakeNode) Connect(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected[addr] = true
}

// Drop removes addr from the swarm, simulating peer churn.
func (n *FakeNode) Drop(addr string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.connected, addr)
}

// Store preloads data served for hash by `get`.
func (n *FakeNode) Store(hash string, data []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.objects[hash] = data
}

func (n *FakeNode) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

func (n *FakeNode) Spawns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.spawns
}

func (n *FakeNode) Pinned(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pins[id]
}

func (n *FakeNode) Object(id string) ([]byte, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	data, ok := n.objects[id]
	return data, ok
}

// Calls returns every command issued so far.
func (n *FakeNode) Calls() []ipfs.Command {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ipfs.Command(nil), n.calls...)
}

// Count returns how many commands matched key.
func (n *FakeNode) Count(key string) int {
	count := 0
	for _, c := range n.Calls() {
		if Key(c.Args) == key {
			count++
		}
	}
	return count
}

// ManualClock only moves when told to. After fires immediately and advances
// the clock by the requested duration.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	waits  []time.Duration
	onWait func(d time.Duration)
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.waits = append(c.waits, d)
	now, hook := c.now, c.onWait
	c.mu.Unlock()

	if hook != nil {
		hook(d)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// OnWait registers fn to run on every After call.
func (c *ManualClock) OnWait(fn func(d time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onWait = fn
}

// Waits returns the durations passed to After so far.
func (c *ManualClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}
