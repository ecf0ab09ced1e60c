package config

import (
	"errors"
	"fmt"
)

// Validate checks that every address is set and the remaining values are usable.
func (c *Config) Validate() error {
	names := [4]string{"connections.from_sources", "connections.to_servers", "connections.from_servers", "connections.to_sinks"}
	for i, addr := range c.Addrs() {
		if addr == "" {
			return fmt.Errorf("%s is required", names[i])
		}
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be >= 1, got %d", c.Threads)
	}
	if c.Discovery.Enabled && c.Discovery.Name == "" {
		return errors.New("discovery.name is required when discovery is enabled")
	}
	return nil
}
