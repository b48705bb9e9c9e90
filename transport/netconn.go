// File: transport/netconn.go
// Package transport adapts net.Conn streams to the protocol engine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The engine sees a reliable, ordered duplex byte stream and nothing
// else: TLS wrapping and TCP keepalive live here, below the protocol.

package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// NetConn implements api.Transport over a net.Conn.
type NetConn struct {
	conn net.Conn
}

// Wrap adapts an established net.Conn.
func Wrap(conn net.Conn) *NetConn {
	return &NetConn{conn: conn}
}

// WrapTLSClient runs a client TLS handshake over conn and adapts the
// secured stream. cfg may be nil; the server name is filled in when the
// config does not carry one.
func WrapTLSClient(conn net.Conn, cfg *tls.Config, serverName string) *NetConn {
	if cfg == nil {
		cfg = &tls.Config{}
	}
	if cfg.ServerName == "" {
		cfg = cfg.Clone()
		cfg.ServerName = serverName
	}
	return &NetConn{conn: tls.Client(conn, cfg)}
}

// Read fills p with available bytes.
func (n *NetConn) Read(p []byte) (int, error) {
	return n.conn.Read(p)
}

// Write sends the whole buffer. A short write is surfaced as an error by
// the net package, which satisfies the full-buffer-or-error contract.
func (n *NetConn) Write(p []byte) (int, error) {
	return n.conn.Write(p)
}

// Close shuts the stream down and unblocks pending reads.
func (n *NetConn) Close() error {
	return n.conn.Close()
}

// RemoteAddr returns the peer address string.
func (n *NetConn) RemoteAddr() string {
	return n.conn.RemoteAddr().String()
}

// LocalAddr returns the local address string.
func (n *NetConn) LocalAddr() string {
	return n.conn.LocalAddr().String()
}

// SetReadDeadline bounds the next Read; the zero time clears it.
func (n *NetConn) SetReadDeadline(t time.Time) error {
	return n.conn.SetReadDeadline(t)
}

// Keepalive configures TCP-level keepalive probing on a dialed or accepted
// socket.
type Keepalive struct {
	Enable   bool
	Idle     time.Duration // idle time before the first probe
	Interval time.Duration // gap between probes
	Count    int           // unanswered probes before the peer is dead
}

// ConfigureKeepalive applies ka to conn. conn must be a *net.TCPConn or
// a *tls.Conn carrying one.
func ConfigureKeepalive(conn net.Conn, ka Keepalive) error {
	if tc, ok := conn.(*tls.Conn); ok {
		conn = tc.NetConn()
	}
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("keepalive: not a TCP connection (%T)", conn)
	}
	if !ka.Enable {
		return tcp.SetKeepAlive(false)
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return err
	}
	return setKeepaliveOptions(tcp, ka)
}
