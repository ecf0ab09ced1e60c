package transport

import (
	"errors"
	"fmt"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// mixedPollSlice is how long a poll over both ZeroMQ and QUIC endpoints
// waits on one kind before checking the other.
const mixedPollSlice = 10 * time.Millisecond

// Poller waits for any of a fixed set of reply endpoints to have a request.
type Poller struct {
	n      int
	zmq    *zmq.Poller
	zmqIdx map[*zmq.Socket]int
	quic   map[int]*quicReply
	wake   chan struct{}
}

// NewPoller builds a poller over eps. Readiness is reported by position.
func NewPoller(eps ...ReplyEndpoint) (*Poller, error) {
	if len(eps) == 0 {
		return nil, errors.New("transport: poller needs at least one endpoint")
	}
	p := &Poller{
		n:      len(eps),
		zmqIdx: make(map[*zmq.Socket]int),
		quic:   make(map[int]*quicReply),
		wake:   make(chan struct{}, 1),
	}
	for i, ep := range eps {
		switch ep := ep.(type) {
		case *zmqSocket:
			if p.zmq == nil {
				p.zmq = zmq.NewPoller()
			}
			p.zmq.Add(ep.sock, zmq.POLLIN)
			p.zmqIdx[ep.sock] = i
		case *quicReply:
			ep.watch(p.wake)
			p.quic[i] = ep
		default:
			return nil, fmt.Errorf("transport: cannot poll endpoint of type %T", ep)
		}
	}
	return p, nil
}

// Poll blocks up to timeout and returns which endpoints have a request
// waiting. A timeout returns a slice with no entry set and a nil error.
func (p *Poller) Poll(timeout time.Duration) ([]bool, error) {
	ready := make([]bool, p.n)
	if len(p.quic) == 0 {
		_, err := p.pollZMQ(ready, timeout)
		return ready, err
	}

	deadline := time.Now().Add(timeout)
	for {
		found, err := p.pollQUIC(ready)
		if err != nil {
			return ready, err
		}
		if p.zmq != nil {
			zany, err := p.pollZMQ(ready, 0)
			if err != nil {
				return ready, err
			}
			found = found || zany
		}
		if found {
			return ready, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ready, nil
		}
		if p.zmq != nil && remaining > mixedPollSlice {
			remaining = mixedPollSlice
		}
		timer := time.NewTimer(remaining)
		select {
		case <-p.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (p *Poller) pollZMQ(ready []bool, timeout time.Duration) (bool, error) {
	polled, err := p.zmq.Poll(timeout)
	if err != nil {
		err = zmqError(err)
		if errors.Is(err, ErrNoMessage) {
			return false, nil
		}
		return false, err
	}
	for _, item := range polled {
		if i, ok := p.zmqIdx[item.Socket]; ok && item.Events&zmq.POLLIN != 0 {
			ready[i] = true
		}
	}
	return len(polled) > 0, nil
}

func (p *Poller) pollQUIC(ready []bool) (bool, error) {
	found := false
	for i, ep := range p.quic {
		if ep.isClosed() {
			return false, ErrClosed
		}
		if ep.ready() {
			ready[i] = true
			found = true
		}
	}
	return found, nil
}
