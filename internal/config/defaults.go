package config

// Default values used for keys absent from the configuration file.
const (
	DefaultFromSources   = "tcp://127.0.0.1:5000"
	DefaultToServers     = "tcp://127.0.0.1:5001"
	DefaultFromServers   = "tcp://127.0.0.1:5002"
	DefaultToSinks       = "tcp://127.0.0.1:5003"
	DefaultThreads       = 1
	DefaultDiscoveryName = "monto"

	// DefaultFile is the configuration file name inside the home directory.
	DefaultFile = "~/.monto"

	// MaxAddrLen is the longest address kept from the file, in bytes.
	MaxAddrLen = 49
)

// Default returns a Config populated entirely with defaults.
func Default() *Config {
	return &Config{
		FromSources: DefaultFromSources,
		ToServers:   DefaultToServers,
		FromServers: DefaultFromServers,
		ToSinks:     DefaultToSinks,
		Threads:     DefaultThreads,
		Discovery: DiscoveryConfig{
			Name: DefaultDiscoveryName,
		},
	}
}
