package server

import (
	"net/http"
	"time"
)

// Config holds configuration for the collaboration server.
type Config struct {
	// Addr is the listen address. Default: ":8080".
	Addr string

	// ReadTimeout is the maximum time to wait for a message from the
	// client before the connection is considered dead. Pongs extend it.
	// Default: 60 seconds.
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait when sending an event.
	// Default: 10 seconds.
	WriteTimeout time.Duration

	// HeartbeatInterval is the time between server pings.
	// Default: 30 seconds.
	HeartbeatInterval time.Duration

	// ShutdownTimeout bounds graceful shutdown. Default: 10 seconds.
	ShutdownTimeout time.Duration

	// MaxMessageSize is the maximum size of an incoming websocket message.
	// Default: 64KB.
	MaxMessageSize int64

	// HistoryLimit is how many trailing messages snapshots carry. The full
	// log is retained in memory regardless. Default: 50.
	HistoryLimit int

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int

	// SweepInterval is how often the registry reclaims sessions whose
	// connections have all died. Default: 30 seconds.
	SweepInterval time.Duration

	// EnableCompression enables websocket per-message compression.
	// Default: true.
	EnableCompression bool

	// CheckOrigin validates the Origin header on upgrade. The default
	// accepts any origin; the platform fronts this service with its own
	// gateway.
	CheckOrigin func(*http.Request) bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:              ":8080",
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxMessageSize:    64 * 1024, // 64KB
		HistoryLimit:      50,
		SweepInterval:     30 * time.Second,
		EnableCompression: true,
		CheckOrigin:       func(*http.Request) bool { return true },
	}
}

// normalize fills in defaults for any unset fields.
func (c *Config) normalize() {
	defaults := DefaultConfig()
	if c.Addr == "" {
		c.Addr = defaults.Addr
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = defaults.HistoryLimit
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = defaults.SweepInterval
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
}
