package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/proto"
	"github.com/SWAI-Ltd/monto/internal/transport"
)

// Handler derives products from a version. Returning no products is fine;
// an error is logged and the version skipped.
type Handler func(ctx context.Context, v *proto.Version) ([]proto.Product, error)

// Server receives versions from to_servers and answers with products on
// from_servers.
type Server struct {
	sub  transport.Subscriber
	req  transport.Requester
	opts options

	mu     sync.Mutex
	closed bool
}

// NewServer subscribes to cfg.ToServers and connects to cfg.FromServers.
func NewServer(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	sub, err := transport.DialSubscribe(ctx, cfg.ToServers)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", cfg.ToServers, err)
	}
	req, err := transport.DialRequest(ctx, cfg.FromServers)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("connect to %s: %w", cfg.FromServers, err)
	}
	return &Server{sub: sub, req: req, opts: newOptions(opts)}, nil
}

// Serve calls h for every accepted version until ctx is done or the server
// is closed. Versions that cannot be opened or decoded are logged and
// skipped.
func (s *Server) Serve(ctx context.Context, h Handler) error {
	log := s.opts.logger
	for {
		raw, err := s.sub.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if s.isClosed() {
				return ErrClosed
			}
			return err
		}

		plain, err := s.opts.open(raw)
		if err != nil {
			log.Warn("dropping version", "error", err)
			continue
		}
		v, err := proto.DecodeVersion(plain)
		if err != nil {
			log.Warn("dropping version", "error", err)
			continue
		}
		if !s.opts.accepts(v.Language) {
			log.Debug("ignoring version", "source", v.Source, "language", v.Language)
			continue
		}

		products, err := h(ctx, v)
		if err != nil {
			log.Warn("handler failed", "source", v.Source, "error", err)
			continue
		}
		for i := range products {
			if err := s.SendProduct(ctx, &products[i]); err != nil {
				if errors.Is(err, ErrClosed) || ctx.Err() != nil {
					return err
				}
				log.Warn("sending product failed", "source", v.Source, "product", products[i].Product, "error", err)
			}
		}
	}
}

// SendProduct validates p, encodes it and sends it to the broker.
func (s *Server) SendProduct(ctx context.Context, p *proto.Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sealed, err := s.opts.seal(data)
	if err != nil {
		return err
	}
	return request(ctx, s.req, sealed)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close disconnects both sockets. Serve should have returned first.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return errors.Join(s.req.Close(), s.sub.Close())
}
