package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAddressMismatch = errors.New("peer address does not contain peer id")
	ErrEmptyHash       = errors.New("content hash is empty")
)

// PeerNode is a known swarm member. The address always embeds the identifier.
type PeerNode struct {
	id      string
	address string
}

func NewPeerNode(id, address string) (PeerNode, error) {
	if id == "" || !strings.Contains(address, id) {
		return PeerNode{}, fmt.Errorf("%w: id=%q address=%q", ErrAddressMismatch, id, address)
	}
	return PeerNode{id: id, address: address}, nil
}

// MustPeerNode is NewPeerNode for static tables; it panics on invalid input.
func MustPeerNode(id, address string) PeerNode {
	p, err := NewPeerNode(id, address)
	if err != nil {
		panic(err)
	}
	return p
}

func (p PeerNode) ID() string      { return p.id }
func (p PeerNode) Address() string { return p.address }

func (p PeerNode) String() string { return p.address }

// ContentDescriptor is one catalog file the node serves.
type ContentDescriptor struct {
	sourceURL string
	hash      string
}

func NewContentDescriptor(sourceURL, hash string) (ContentDescriptor, error) {
	if hash == "" {
		return ContentDescriptor{}, ErrEmptyHash
	}
	return ContentDescriptor{sourceURL: sourceURL, hash: hash}, nil
}

func (c ContentDescriptor) SourceURL() string { return c.sourceURL }
func (c ContentDescriptor) Hash() string      { return c.hash }

// BenchmarkResult is the outcome of one benchmark run. Samples are fetch
// latencies in seconds; Average is always Mean(Samples).
type BenchmarkResult struct {
	RunID    string    `json:"run_id"`
	Target   string    `json:"target"`
	Attempts int       `json:"attempts"`
	Samples  []float64 `json:"samples"`
	Average  float64   `json:"average"`
	Bytes    int64     `json:"bytes,omitempty"`
}

// Mean returns the arithmetic mean of samples. Callers must not pass an
// empty slice.
func Mean(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// SessionWindow identifies a one-minute epoch.
type SessionWindow int64

const (
	SessionWindowSeconds = 60
	// LiveWindows is how many consecutive windows are published per cycle.
	LiveWindows = 3
)

// PresenceToken is the discoverable payload for a session window.
type PresenceToken string

const presencePrefix = "Member of P2P CDN Session: "

func (w SessionWindow) Token() PresenceToken {
	return PresenceToken(fmt.Sprintf("%s%d", presencePrefix, int64(w)))
}

func (t PresenceToken) Bytes() []byte { return []byte(t) }
