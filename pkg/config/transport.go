package config

import "fmt"

// TransportConfig tunes the WebSocket chat stream.
type TransportConfig struct {
	// IdlePingSeconds is the ping interval on idle connections.
	IdlePingSeconds int `yaml:"idle_ping_seconds,omitempty"`

	// MaxFrameBytes bounds a single inbound frame.
	MaxFrameBytes int64 `yaml:"max_frame_bytes,omitempty"`

	// SendQueueSize bounds the per-session outbound queue. A full queue
	// blocks node execution (backpressure), it never drops frames.
	SendQueueSize int `yaml:"send_queue_size,omitempty"`

	// SessionRetentionSeconds keeps disconnected sessions resumable.
	SessionRetentionSeconds int `yaml:"session_retention_seconds,omitempty"`
}

func (c *TransportConfig) SetDefaults() {
	if c.IdlePingSeconds == 0 {
		c.IdlePingSeconds = 30
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = 1 << 20 // 1 MiB
	}
	if c.SendQueueSize == 0 {
		c.SendQueueSize = 64
	}
	if c.SessionRetentionSeconds == 0 {
		c.SessionRetentionSeconds = 1800
	}
}

func (c *TransportConfig) Validate() error {
	if c.IdlePingSeconds < 1 {
		return fmt.Errorf("idle_ping_seconds must be positive, got %d", c.IdlePingSeconds)
	}
	if c.MaxFrameBytes < 1024 {
		return fmt.Errorf("max_frame_bytes must be at least 1024, got %d", c.MaxFrameBytes)
	}
	if c.SendQueueSize < 1 {
		return fmt.Errorf("send_queue_size must be positive, got %d", c.SendQueueSize)
	}
	return nil
}

// ServerConfig configures the HTTP server hosting the chat stream.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}
