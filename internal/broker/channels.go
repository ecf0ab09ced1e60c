package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/SWAI-Ltd/monto/internal/config"
	"github.com/SWAI-Ltd/monto/internal/transport"
)

// Role names one of the four broker endpoints.
type Role int

const (
	RoleFromSources Role = iota
	RoleToServers
	RoleFromServers
	RoleToSinks
)

func (r Role) String() string {
	switch r {
	case RoleFromSources:
		return "from_sources"
	case RoleToServers:
		return "to_servers"
	case RoleFromServers:
		return "from_servers"
	case RoleToSinks:
		return "to_sinks"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// BindError reports the first endpoint that could not be created or bound.
type BindError struct {
	Role     Role
	Addr     string
	Category transport.Category
	Err      error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s: %s (%s: %v)", e.Category.Reason(), e.Addr, e.Role, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ChannelSet is the broker's four bound endpoints and the context owning them.
type ChannelSet struct {
	SourceIn  transport.ReplyEndpoint
	ServerOut transport.BroadcastEndpoint
	ServerIn  transport.ReplyEndpoint
	SinkOut   transport.BroadcastEndpoint

	tctx      *transport.Context
	created   []transport.Endpoint
	closeOnce sync.Once
	closeErr  error
}

// OpenChannels creates the four endpoints in order (from_sources,
// to_servers, from_servers, to_sinks) and binds them in the same order. On
// failure everything created so far is released and a *BindError returned.
func OpenChannels(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ChannelSet, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tctx, err := transport.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	return openChannels(tctx, cfg, logger)
}

func openChannels(tctx *transport.Context, cfg *config.Config, logger *slog.Logger) (*ChannelSet, error) {
	cs := &ChannelSet{tctx: tctx}

	addrs := cfg.Addrs()
	for role := RoleFromSources; role <= RoleToSinks; role++ {
		ep, err := cs.create(role, addrs[role])
		if err != nil {
			cs.Close()
			return nil, newBindError(role, addrs[role], err)
		}
		cs.created = append(cs.created, ep)
	}

	for role, ep := range cs.created {
		if err := ep.Bind(); err != nil {
			cs.Close()
			return nil, newBindError(Role(role), addrs[role], err)
		}
	}

	logger.Info("listening for requests from sources", "addr", cs.SourceIn.Addr())
	logger.Info("responding to servers", "addr", cs.ServerOut.Addr())
	logger.Info("listening for responses from servers", "addr", cs.ServerIn.Addr())
	logger.Info("responding to sinks", "addr", cs.SinkOut.Addr())
	return cs, nil
}

func (cs *ChannelSet) create(role Role, addr string) (transport.Endpoint, error) {
	switch role {
	case RoleFromSources, RoleFromServers:
		ep, err := cs.tctx.NewReply(addr)
		if err != nil {
			return nil, err
		}
		if role == RoleFromSources {
			cs.SourceIn = ep
		} else {
			cs.ServerIn = ep
		}
		return ep, nil
	default:
		ep, err := cs.tctx.NewBroadcast(addr)
		if err != nil {
			return nil, err
		}
		if role == RoleToServers {
			cs.ServerOut = ep
		} else {
			cs.SinkOut = ep
		}
		return ep, nil
	}
}

func newBindError(role Role, addr string, err error) *BindError {
	return &BindError{Role: role, Addr: addr, Category: transport.Classify(err), Err: err}
}

// Addrs returns the bound addresses in creation order.
func (cs *ChannelSet) Addrs() [4]string {
	return [4]string{cs.SourceIn.Addr(), cs.ServerOut.Addr(), cs.ServerIn.Addr(), cs.SinkOut.Addr()}
}

// Open reports how many endpoints are still open.
func (cs *ChannelSet) Open() int {
	return cs.tctx.Open()
}

// Relay builds the relay loop over this channel set.
func (cs *ChannelSet) Relay(logger *slog.Logger) (*Relay, error) {
	poller, err := transport.NewPoller(cs.SourceIn, cs.ServerIn)
	if err != nil {
		return nil, err
	}
	return NewRelay(poller,
		Path{Name: "sources", In: cs.SourceIn, Out: cs.ServerOut},
		Path{Name: "servers", In: cs.ServerIn, Out: cs.SinkOut},
		logger,
	), nil
}

// Close closes the endpoints in reverse creation order and terminates the
// context. Only the first call has an effect.
func (cs *ChannelSet) Close() error {
	cs.closeOnce.Do(func() {
		var errs []error
		for i := len(cs.created) - 1; i >= 0; i-- {
			if err := cs.created[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := cs.tctx.Term(); err != nil {
			errs = append(errs, err)
		}
		cs.closeErr = errors.Join(errs...)
	})
	return cs.closeErr
}
