package sse

import "time"

// Config holds SSE connection settings.
type Config struct {
	// KeepAliveInterval is how often to write keep-alive comments so
	// intermediaries don't close an idle stream.
	KeepAliveInterval time.Duration
}

// DefaultConfig returns the default SSE configuration. 10 seconds stays
// under common proxy idle timeouts.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
	}
}
