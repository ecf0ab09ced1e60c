package config

// Config holds the four broker endpoints and the settings that go with them.
type Config struct {
	FromSources string // reply endpoint receiving versions from sources
	ToServers   string // broadcast endpoint publishing versions to servers
	FromServers string // reply endpoint receiving products from servers
	ToSinks     string // broadcast endpoint publishing products to sinks

	// Threads is parsed and validated but the relay is single threaded.
	Threads int

	Discovery DiscoveryConfig
}

// DiscoveryConfig controls mDNS advertisement of the broker.
type DiscoveryConfig struct {
	Enabled bool
	Name    string
}

// fileConfig mirrors the JSON document. Pointer fields distinguish absent
// keys from zero values.
type fileConfig struct {
	Connections *struct {
		FromSources *string `json:"from_sources"`
		ToServers   *string `json:"to_servers"`
		FromServers *string `json:"from_servers"`
		ToSinks     *string `json:"to_sinks"`
	} `json:"connections"`
	Threads   *int `json:"threads"`
	Discovery *struct {
		Enabled *bool   `json:"enabled"`
		Name    *string `json:"name"`
	} `json:"discovery"`
}

// Addrs returns the endpoints in creation order.
func (c *Config) Addrs() [4]string {
	return [4]string{c.FromSources, c.ToServers, c.FromServers, c.ToSinks}
}

func (c *Config) overlay(f *fileConfig) {
	if conn := f.Connections; conn != nil {
		setAddr(&c.FromSources, conn.FromSources)
		setAddr(&c.ToServers, conn.ToServers)
		setAddr(&c.FromServers, conn.FromServers)
		setAddr(&c.ToSinks, conn.ToSinks)
	}
	if f.Threads != nil {
		c.Threads = *f.Threads
	}
	if d := f.Discovery; d != nil {
		if d.Enabled != nil {
			c.Discovery.Enabled = *d.Enabled
		}
		if d.Name != nil {
			c.Discovery.Name = *d.Name
		}
	}
}

func setAddr(dst *string, v *string) {
	if v != nil {
		*dst = TruncateAddr(*v)
	}
}

// TruncateAddr cuts addr to MaxAddrLen bytes. Longer values are silently
// shortened, never rejected.
func TruncateAddr(addr string) string {
	if len(addr) > MaxAddrLen {
		return addr[:MaxAddrLen]
	}
	return addr
}
