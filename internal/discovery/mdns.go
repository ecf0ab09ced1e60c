// Package discovery advertises a broker's endpoints over mDNS and lets
// clients find them without a configuration file.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/betamos/zeroconf"

	"github.com/SWAI-Ltd/monto/internal/config"
)

const (
	ServiceType = "_monto._tcp"

	// fallbackPort is advertised when from_sources has no network port
	// (ipc://, inproc://). Clients use the TXT records, which carry the
	// full endpoint addresses.
	fallbackPort = 5000
)

// TXT record keys, one per endpoint.
const (
	keyFromSources = "from_sources"
	keyToServers   = "to_servers"
	keyFromServers = "from_servers"
	keyToSinks     = "to_sinks"
)

// Advertiser publishes the broker until closed.
type Advertiser struct {
	client *zeroconf.Client
}

// Advertise publishes the broker under name with its four addresses.
func Advertise(name string, addrs [4]string) (*Advertiser, error) {
	svc := zeroconf.NewService(zeroconf.NewType(ServiceType), name, uint16(ServicePort(addrs[0])))
	svc.Text = EncodeText(addrs)

	client, err := zeroconf.New().Publish(svc).Open()
	if err != nil {
		return nil, fmt.Errorf("zeroconf: %w", err)
	}
	return &Advertiser{client: client}, nil
}

// Close stops advertising
func (a *Advertiser) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

// Lookup browses for a broker named name (any broker when name is empty)
// and returns a config populated with its addresses. It blocks until one is
// found or ctx is done.
func Lookup(ctx context.Context, name string) (*config.Config, error) {
	found := make(chan *config.Config, 1)
	client, err := zeroconf.New().
		Browse(func(e zeroconf.Event) {
			if name != "" && e.Name != name {
				return
			}
			cfg, ok := DecodeText(e.Text)
			if !ok {
				return
			}
			select {
			case found <- cfg:
			default:
			}
		}, zeroconf.NewType(ServiceType)).
		Open()
	if err != nil {
		return nil, fmt.Errorf("zeroconf: %w", err)
	}
	defer client.Close()

	select {
	case cfg := <-found:
		return cfg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("lookup broker %q: %w", name, ctx.Err())
	}
}

// ServicePort returns the port of a bound tcp:// or quic:// address, the
// one advertised in the SRV record. Other addresses get fallbackPort.
func ServicePort(addr string) int {
	var hostport string
	switch {
	case strings.HasPrefix(addr, "tcp://"):
		hostport = strings.TrimPrefix(addr, "tcp://")
	case strings.HasPrefix(addr, "quic://"):
		hostport = strings.TrimPrefix(addr, "quic://")
	default:
		return fallbackPort
	}
	_, p, err := net.SplitHostPort(hostport)
	if err != nil {
		return fallbackPort
	}
	port, err := strconv.Atoi(p)
	if err != nil || port < 1 || port > 65535 {
		return fallbackPort
	}
	return port
}

// EncodeText renders the addresses as key=value TXT records.
func EncodeText(addrs [4]string) []string {
	return []string{
		keyFromSources + "=" + addrs[0],
		keyToServers + "=" + addrs[1],
		keyFromServers + "=" + addrs[2],
		keyToSinks + "=" + addrs[3],
	}
}

// DecodeText reverses EncodeText. It reports false unless all four keys are present.
func DecodeText(text []string) (*config.Config, bool) {
	cfg := config.Default()
	seen := 0
	for _, rec := range text {
		key, value, ok := strings.Cut(rec, "=")
		if !ok || value == "" {
			continue
		}
		switch key {
		case keyFromSources:
			cfg.FromSources = value
		case keyToServers:
			cfg.ToServers = value
		case keyFromServers:
			cfg.FromServers = value
		case keyToSinks:
			cfg.ToSinks = value
		default:
			continue
		}
		seen++
	}
	return cfg, seen == 4
}
