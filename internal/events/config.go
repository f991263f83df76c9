package events

import "time"

// Config holds configuration for SSE connections.
type Config struct {
	// KeepAliveInterval is how often to send keep-alive pings to prevent
	// idle-proxy timeouts during a long-running LLM call.
	KeepAliveInterval time.Duration
}

// DefaultConfig returns the default SSE configuration.
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
	}
}
