package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/proto"
	"github.com/SWAI-Ltd/monto/internal/transport"
)

// Source publishes versions to the broker's from_sources endpoint.
type Source struct {
	req  transport.Requester
	opts options

	mu     sync.Mutex
	closed bool
}

// NewSource connects to cfg.FromSources.
func NewSource(ctx context.Context, cfg *config.Config, opts ...Option) (*Source, error) {
	req, err := transport.DialRequest(ctx, cfg.FromSources)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.FromSources, err)
	}
	return &Source{req: req, opts: newOptions(opts)}, nil
}

// PublishVersion validates v, encodes it as JSON and sends it. The language
// is sent in lower case; v itself is not modified.
func (s *Source) PublishVersion(ctx context.Context, v *proto.Version) error {
	if err := v.Validate(); err != nil {
		return err
	}
	out := *v
	out.Language = strings.ToLower(v.Language)
	data, err := json.Marshal(&out)
	if err != nil {
		return err
	}
	return s.Send(ctx, data)
}

// Send publishes payload as is and waits for the broker's ack.
func (s *Source) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(payload) == 0 {
		return ErrEmpty
	}
	sealed, err := s.opts.seal(payload)
	if err != nil {
		return err
	}
	return request(ctx, s.req, sealed)
}

// Close disconnects from the broker.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.req.Close()
}
