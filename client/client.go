// File: client/client.go
// Package client dials WebSocket servers and runs the client side of the
// protocol engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/momentics/wspeer/api"
	"github.com/momentics/wspeer/metrics"
	"github.com/momentics/wspeer/protocol"
	"github.com/momentics/wspeer/transport"
)

// dialTimeout bounds the TCP connect; the WebSocket handshake has its own
// 30 s budget measured from dial completion.
const dialTimeout = 30 * time.Second

// Config holds client-side configuration.
type Config struct {
	// Address is the host or IP to dial.
	Address string `env:"WSPEER_CLIENT_ADDRESS" envDefault:"127.0.0.1"`

	// Port is the remote TCP port.
	Port int `env:"WSPEER_CLIENT_PORT" envDefault:"9000"`

	// Host is the Host header value; empty means address:port.
	Host string `env:"WSPEER_CLIENT_HOST"`

	// Endpoint is the request path of the upgrade request.
	Endpoint string `env:"WSPEER_CLIENT_ENDPOINT" envDefault:"/"`

	// MaxMessageSize caps a reassembled message's payload in bytes.
	MaxMessageSize int64 `env:"WSPEER_MAX_MESSAGE_SIZE" envDefault:"0"`

	// Secure dials through TLS. TLSConfig refines it and may be nil.
	Secure    bool        `env:"WSPEER_CLIENT_SECURE" envDefault:"false"`
	TLSConfig *tls.Config `env:"-"`

	// Keepalive configures TCP keepalive probing on the dialed socket.
	KeepaliveEnable   bool          `env:"WSPEER_KEEPALIVE" envDefault:"false"`
	KeepaliveIdle     time.Duration `env:"WSPEER_KEEPALIVE_IDLE" envDefault:"60s"`
	KeepaliveInterval time.Duration `env:"WSPEER_KEEPALIVE_INTERVAL" envDefault:"10s"`
	KeepaliveCount    int           `env:"WSPEER_KEEPALIVE_COUNT" envDefault:"5"`
}

// DefaultConfig returns sensible defaults for a local endpoint.
func DefaultConfig() Config {
	return Config{
		Address:           "127.0.0.1",
		Port:              9000,
		Endpoint:          "/",
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

// Option customizes a Dial.
type Option func(*dialSettings)

type dialSettings struct {
	log *slog.Logger
	met *metrics.Metrics
}

// WithLogger sets the connection logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *dialSettings) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetrics attaches a metrics set to the connection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *dialSettings) { d.met = m }
}

// Dial connects to the configured server, performs the upgrade handshake
// and returns the open connection. It blocks until the handshake succeeds
// or fails; OnOpen has already fired on success.
func Dial(cfg Config, cb protocol.Callbacks, opts ...Option) (*protocol.Conn, error) {
	settings := dialSettings{log: slog.Default()}
	for _, o := range opts {
		o(&settings)
	}

	addr := net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	raw, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	if cfg.KeepaliveEnable {
		ka := transport.Keepalive{
			Enable:   true,
			Idle:     cfg.KeepaliveIdle,
			Interval: cfg.KeepaliveInterval,
			Count:    cfg.KeepaliveCount,
		}
		if err := transport.ConfigureKeepalive(raw, ka); err != nil {
			settings.log.Warn("keepalive configuration failed", slog.String("error", err.Error()))
		}
	}

	var tr api.Transport
	if cfg.Secure || cfg.TLSConfig != nil {
		tr = transport.WrapTLSClient(raw, cfg.TLSConfig, cfg.Address)
	} else {
		tr = transport.Wrap(raw)
	}

	host := cfg.Host
	if host == "" {
		host = addr
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "/"
	}

	req, key := protocol.BuildClientHandshake(host, endpoint)
	if _, err := tr.Write(req); err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	conn := protocol.NewConn(api.RoleClient, tr, cb,
		protocol.WithClientKey(key),
		protocol.WithLogger(settings.log),
		protocol.WithMetrics(settings.met),
		protocol.WithMaxMessageSize(cfg.MaxMessageSize),
	)
	go conn.Run()

	select {
	case <-conn.Opened():
		return conn, nil
	case <-conn.Done():
		return nil, api.ErrHandshake
	}
}
