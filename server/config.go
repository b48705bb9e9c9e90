// File: server/config.go
// Package server provides the WebSocket listener and connection registry.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"crypto/tls"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds server-side configuration.
type Config struct {
	// Address is the TCP bind address, e.g. ":9000".
	Address string `env:"WSPEER_SERVER_ADDRESS" envDefault:":9000"`

	// MaxMessageSize caps a reassembled message's payload in bytes; larger
	// messages close the connection with 1009. Zero means no cap.
	MaxMessageSize int64 `env:"WSPEER_MAX_MESSAGE_SIZE" envDefault:"0"`

	// ShutdownTimeout is the maximum time to wait for connections to
	// drain during graceful shutdown before they are forcefully closed.
	ShutdownTimeout time.Duration `env:"WSPEER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// TLSConfig optionally wraps the listener in TLS.
	TLSConfig *tls.Config `env:"-"`

	// Keepalive configures TCP keepalive probing on accepted sockets.
	KeepaliveEnable   bool          `env:"WSPEER_KEEPALIVE" envDefault:"false"`
	KeepaliveIdle     time.Duration `env:"WSPEER_KEEPALIVE_IDLE" envDefault:"60s"`
	KeepaliveInterval time.Duration `env:"WSPEER_KEEPALIVE_INTERVAL" envDefault:"10s"`
	KeepaliveCount    int           `env:"WSPEER_KEEPALIVE_COUNT" envDefault:"5"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:           ":9000",
		ShutdownTimeout:   30 * time.Second,
		KeepaliveIdle:     60 * time.Second,
		KeepaliveInterval: 10 * time.Second,
		KeepaliveCount:    5,
	}
}

// ConfigFromEnv builds a Config from WSPEER_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
