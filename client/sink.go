package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/proto"
	"github.com/SWAI-Ltd/monto/internal/transport"
)

// Sink receives products from the broker's to_sinks endpoint.
type Sink struct {
	sub  transport.Subscriber
	opts options

	mu     sync.Mutex
	closed bool
}

// NewSink subscribes to cfg.ToSinks. Only products published after it
// returns are delivered.
func NewSink(ctx context.Context, cfg *config.Config, opts ...Option) (*Sink, error) {
	sub, err := transport.DialSubscribe(ctx, cfg.ToSinks)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.ToSinks, err)
	}
	return &Sink{sub: sub, opts: newOptions(opts)}, nil
}

// Recv returns the next payload, opened when sealing is configured. A
// payload that cannot be opened is reported as ErrInvalid; any other error
// comes from the subscription itself.
func (s *Sink) Recv(ctx context.Context) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	raw, err := s.sub.Recv(ctx)
	if err != nil {
		if s.isClosed() {
			return nil, ErrClosed
		}
		return nil, err
	}
	plain, err := s.opts.open(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return plain, nil
}

// RecvProduct returns the next product in an accepted language. Products in
// other languages are skipped; undecodable payloads are returned as
// ErrInvalid.
func (s *Sink) RecvProduct(ctx context.Context) (*proto.Product, error) {
	for {
		data, err := s.Recv(ctx)
		if err != nil {
			return nil, err
		}
		p, err := proto.DecodeProduct(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		if s.opts.accepts(p.Language) {
			return p, nil
		}
	}
}

func (s *Sink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close unsubscribes. Cancel any pending Recv first.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sub.Close()
}
