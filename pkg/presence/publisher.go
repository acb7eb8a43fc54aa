package presence

import (
	"context"
	"time"

	"cdnhost/pkg/metrics"
	"cdnhost/pkg/types"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
)

// Node is the part of the client presence tokens are published through.
type Node interface {
	AddObject(ctx context.Context, data []byte) (cid.Cid, error)
	PinObject(ctx context.Context, id cid.Cid) error
}

// WindowAt returns the one-minute session window containing t.
func WindowAt(t time.Time) types.SessionWindow {
	secs := t.Unix()
	w := secs / types.SessionWindowSeconds
	if secs < 0 && secs%types.SessionWindowSeconds != 0 {
		w--
	}
	return types.SessionWindow(w)
}

// WindowsFrom returns window and the windows that follow it, one per live
// token.
func WindowsFrom(window types.SessionWindow) []types.SessionWindow {
	windows := make([]types.SessionWindow, types.LiveWindows)
	for i := range windows {
		windows[i] = window + types.SessionWindow(i)
	}
	return windows
}

// TokensAt returns the tokens that should be live at t.
func TokensAt(t time.Time) []types.PresenceToken {
	windows := WindowsFrom(WindowAt(t))
	tokens := make([]types.PresenceToken, len(windows))
	for i, w := range windows {
		tokens[i] = w.Token()
	}
	return tokens
}

// Announcement is one token and the object it was published as.
type Announcement struct {
	Window types.SessionWindow
	Token  types.PresenceToken
	CID    cid.Cid
	Err    error
}

// Publication is the outcome of one publishing cycle.
type Publication struct {
	Window        types.SessionWindow
	Announcements []Announcement
}

// Published counts the tokens that were added and pinned.
func (p Publication) Published() int {
	n := 0
	for _, a := range p.Announcements {
		if a.Err == nil {
			n++
		}
	}
	return n
}

// Publisher keeps this node discoverable through presence tokens. Peers
// whose clocks run up to two minutes behind still compute a token that is
// already published.
type Publisher struct {
	node    Node
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewPublisher(node Node, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Publisher{node: node, metrics: m, logger: logger}
}

// PublishCurrentWindow adds and pins the tokens for the window containing now
// and the windows after it. A token that fails is logged and skipped.
func (p *Publisher) PublishCurrentWindow(ctx context.Context, now time.Time) Publication {
	window := WindowAt(now)
	pub := Publication{Window: window}

	for _, w := range WindowsFrom(window) {
		a := Announcement{Window: w, Token: w.Token()}
		a.CID, a.Err = p.publish(ctx, a.Token)

		if a.Err != nil {
			p.metrics.PresenceFailures.Inc()
			p.logger.Warn("Failed to publish presence token",
				zap.Int64("window", int64(w)),
				zap.String("token", string(a.Token)),
				zap.Error(a.Err))
		} else {
			p.metrics.PresencePublished.Inc()
			p.logger.Debug("Published presence token",
				zap.Int64("window", int64(w)),
				zap.String("cid", a.CID.String()))
		}
		pub.Announcements = append(pub.Announcements, a)
	}

	p.metrics.PresenceWindow.Set(float64(window))
	return pub
}

func (p *Publisher) publish(ctx context.Context, token types.PresenceToken) (cid.Cid, error) {
	id, err := p.node.AddObject(ctx, token.Bytes())
	if err != nil {
		return cid.Undef, err
	}
	if err := p.node.PinObject(ctx, id); err != nil {
		return id, err
	}
	return id, nil
}
