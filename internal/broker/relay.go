// Package broker relays versions from sources to servers and products from
// servers to sinks. It never looks inside the messages it forwards.
package broker

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SWAI-Ltd/monto/internal/transport"
)

// PollTimeout bounds each wait for inbound messages, and with it the time
// Run takes to notice Stop.
const PollTimeout = 500 * time.Millisecond

var ackPayload = []byte("ack")

// Poller reports which inbound endpoints have a message waiting, by position.
type Poller interface {
	Poll(timeout time.Duration) ([]bool, error)
}

// Path pairs an inbound reply endpoint with the broadcast endpoint its
// messages are forwarded to.
type Path struct {
	Name string
	In   transport.ReplyEndpoint
	Out  transport.BroadcastEndpoint
}

// PathStats counts what happened to messages arriving on one path.
type PathStats struct {
	Received  int64
	Empty     int64
	Acked     int64
	Forwarded int64
	Dropped   int64
	Errors    int64
}

// Stats is a snapshot of both paths.
type Stats struct {
	Sources PathStats
	Servers PathStats
}

type pathCounters struct {
	received, empty, acked, forwarded, dropped, errors atomic.Int64
}

func (c *pathCounters) snapshot() PathStats {
	return PathStats{
		Received:  c.received.Load(),
		Empty:     c.empty.Load(),
		Acked:     c.acked.Load(),
		Forwarded: c.forwarded.Load(),
		Dropped:   c.dropped.Load(),
		Errors:    c.errors.Load(),
	}
}

// Relay is the broker's event loop. All endpoint I/O happens on the
// goroutine calling Run; Stop and Stats may be called from anywhere.
type Relay struct {
	poller  Poller
	paths   [2]Path
	timeout time.Duration
	logger  *slog.Logger

	running atomic.Bool
	stats   [2]pathCounters
}

// NewRelay creates a relay polling sources.In and servers.In, in that order.
func NewRelay(poller Poller, sources, servers Path, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		poller:  poller,
		paths:   [2]Path{sources, servers},
		timeout: PollTimeout,
		logger:  logger,
	}
	r.running.Store(true)
	return r
}

// Run relays until Stop is called or the endpoints are closed underneath
// it. It returns nil after Stop.
func (r *Relay) Run() error {
	for r.running.Load() {
		ready, err := r.poller.Poll(r.timeout)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			r.logger.Warn("poll failed", "error", err)
			continue
		}

		for i := range r.paths {
			if i >= len(ready) || !ready[i] {
				continue
			}
			if err := r.relay(i); errors.Is(err, transport.ErrClosed) {
				return err
			}
		}
	}
	return nil
}

// relay moves one message along path i: receive, ack the sender, forward.
// The sender is acknowledged before the forward is attempted.
func (r *Relay) relay(i int) error {
	p, c := &r.paths[i], &r.stats[i]

	msg, err := p.In.Recv()
	if errors.Is(err, transport.ErrNoMessage) {
		return nil
	}
	if err != nil {
		c.errors.Add(1)
		r.logger.Warn("receive failed", "path", p.Name, "addr", p.In.Addr(), "error", err)
		return err
	}
	c.received.Add(1)
	if len(msg) == 0 {
		c.empty.Add(1)
		return nil
	}

	if err := p.In.Send(ackPayload); err != nil {
		c.errors.Add(1)
		c.dropped.Add(1)
		r.logger.Warn("ack failed, message dropped", "path", p.Name, "addr", p.In.Addr(), "error", err)
		return err
	}
	c.acked.Add(1)

	if err := p.Out.Send(msg); err != nil {
		c.errors.Add(1)
		c.dropped.Add(1)
		r.logger.Warn("forward failed, message dropped", "path", p.Name, "addr", p.Out.Addr(), "error", err)
		return err
	}
	c.forwarded.Add(1)
	return nil
}

// Stop makes Run return after the current poll. It is safe to call more
// than once and before Run.
func (r *Relay) Stop() {
	r.running.Store(false)
}

// Stats returns the current counters.
func (r *Relay) Stats() Stats {
	return Stats{Sources: r.stats[0].snapshot(), Servers: r.stats[1].snapshot()}
}
