// Package transport provides the broker's bound endpoints.
//
// Addresses starting with quic:// are served over QUIC; every other address
// (tcp://, ipc://, inproc://, ...) is handed to ZeroMQ, which decides whether
// it supports the scheme. Endpoints are not safe for concurrent use: the
// broker drives all of them from a single goroutine.
package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	zmq "github.com/pebbe/zmq4"
)

// Endpoint is a communication endpoint that must be bound before use.
type Endpoint interface {
	// Addr returns the bound address, or the configured one before Bind.
	Addr() string
	Bind() error
	Close() error
}

// ReplyEndpoint enforces receive-then-reply turn taking with its peers.
type ReplyEndpoint interface {
	Endpoint
	// Recv returns one request without blocking. ErrNoMessage means nothing
	// was waiting.
	Recv() ([]byte, error)
	// Send replies to the request most recently returned by Recv.
	Send(msg []byte) error
}

// BroadcastEndpoint publishes to whichever subscribers are connected.
type BroadcastEndpoint interface {
	Endpoint
	Send(msg []byte) error
}

// SchemeQUIC selects the QUIC transport.
const SchemeQUIC = "quic://"

// Context owns the ZeroMQ context and tracks every endpoint created from it.
type Context struct {
	ctx    context.Context
	cancel context.CancelFunc
	zctx   *zmq.Context

	mu     sync.Mutex
	open   int
	closed bool
}

// NewContext allocates a messaging context. Cancelling ctx stops the
// background accept loops of QUIC endpoints.
func NewContext(ctx context.Context) (*Context, error) {
	zctx, err := zmq.NewContext()
	if err != nil {
		return nil, fmt.Errorf("zmq context: %w", err)
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Context{ctx: cctx, cancel: cancel, zctx: zctx}, nil
}

// NewReply creates an unbound reply endpoint for addr.
func (c *Context) NewReply(addr string) (ReplyEndpoint, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	if isQUIC(addr) {
		return newQUICReply(c.ctx, addr, c.release), nil
	}
	ep, err := newZMQEndpoint(c.zctx, zmq.REP, addr, c.release)
	if err != nil {
		c.release()
		return nil, err
	}
	return ep, nil
}

// NewBroadcast creates an unbound broadcast endpoint for addr.
func (c *Context) NewBroadcast(addr string) (BroadcastEndpoint, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	if isQUIC(addr) {
		return newQUICBroadcast(c.ctx, addr, c.release), nil
	}
	ep, err := newZMQEndpoint(c.zctx, zmq.PUB, addr, c.release)
	if err != nil {
		c.release()
		return nil, err
	}
	return ep, nil
}

// Open reports how many endpoints are created and not yet closed.
func (c *Context) Open() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Term stops the context. Endpoints must be closed first; Term blocks until
// libzmq has released them.
func (c *Context) Term() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	return c.zctx.Term()
}

func (c *Context) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &categoryError{cat: CategoryContextTerminated, msg: "transport context terminated", err: ErrClosed}
	}
	c.open++
	return nil
}

func (c *Context) release() {
	c.mu.Lock()
	c.open--
	c.mu.Unlock()
}

func isQUIC(addr string) bool {
	return strings.HasPrefix(addr, SchemeQUIC)
}
