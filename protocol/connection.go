// File: protocol/connection.go
// Package protocol implements the core WebSocket connection state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Conn owns one transport stream and drives it with exactly one reader
// goroutine and one writer goroutine. The protocol engine between the two
// suspension points is synchronous: user callbacks fire from the reader in
// frame-arrival order and never concurrently with each other.

package protocol

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/wspeer/api"
	"github.com/momentics/wspeer/metrics"
	"github.com/momentics/wspeer/pool"
)

const (
	// handshakeTimeout bounds the upgrade exchange, measured from Run.
	handshakeTimeout = 30 * time.Second

	// closingGrace bounds the wait for the peer's CLOSE echo after a
	// locally initiated close.
	closingGrace = 5 * time.Second

	readChunkSize = 4096
)

// Callbacks is the user-facing surface of a connection. Any field may be
// nil. OnOpen precedes every OnMessage; OnClose follows all other
// callbacks and fires exactly once, whatever path closed the connection.
type Callbacks struct {
	OnOpen    func(c *Conn)
	OnMessage func(c *Conn, dataType api.DataType, payload []byte)
	OnClose   func(c *Conn)
}

// Conn is one WebSocket connection, server- or client-side.
type Conn struct {
	id        string
	role      api.Role
	transport api.Transport
	callbacks Callbacks
	log       *slog.Logger
	met       *metrics.Metrics

	state atomic.Int32

	// Ingress state, touched only by the reader goroutine.
	acc *pool.Accumulator
	asm assembler

	out        outbox
	writerDone chan struct{}

	// Egress fragmentation bookkeeping.
	fragMu   sync.Mutex
	fragOpen bool

	// clientKey is the Sec-WebSocket-Key sent in the upgrade request;
	// empty on server connections.
	clientKey string

	sentClose     atomic.Bool
	handshakeDone chan struct{}
	done          chan struct{}
	closeOnce     sync.Once

	udMu     sync.Mutex
	userData any
}

// Option customizes a Conn at construction.
type Option func(*Conn)

// WithLogger sets the base logger; connection attributes are added on top.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics attaches a metrics set to the connection.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Conn) { c.met = m }
}

// WithMaxMessageSize caps a reassembled message's payload; larger
// messages close the connection with 1009. Zero means no cap.
func WithMaxMessageSize(n int64) Option {
	return func(c *Conn) { c.asm.maxMessageSize = n }
}

// WithClientKey records the handshake key a client connection must verify
// the server's Sec-WebSocket-Accept against.
func WithClientKey(key string) Option {
	return func(c *Conn) { c.clientKey = key }
}

// NewConn wraps a connected transport in a WebSocket connection. The
// connection starts in the handshake state; Run drives it.
func NewConn(role api.Role, tr api.Transport, cb Callbacks, opts ...Option) *Conn {
	c := &Conn{
		id:            uuid.NewString(),
		role:          role,
		transport:     tr,
		callbacks:     cb,
		log:           slog.Default(),
		acc:           pool.NewAccumulator(),
		writerDone:    make(chan struct{}),
		handshakeDone: make(chan struct{}),
		done:          make(chan struct{}),
	}
	c.out.init()
	c.state.Store(int32(api.StateHandshake))
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(
		slog.String("conn", c.id),
		slog.String("role", role.String()),
		slog.String("remote", tr.RemoteAddr()),
	)
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Role returns the endpoint role fixed at construction.
func (c *Conn) Role() api.Role { return c.role }

// State returns the current connection state.
func (c *Conn) State() api.State { return api.State(c.state.Load()) }

// IsConnected reports whether the connection has not yet fully closed.
func (c *Conn) IsConnected() bool { return c.State() != api.StateClosed }

// RemoteAddr returns the peer address string.
func (c *Conn) RemoteAddr() string { return c.transport.RemoteAddr() }

// LocalAddr returns the local address string.
func (c *Conn) LocalAddr() string { return c.transport.LocalAddr() }

// SetUserData attaches an opaque value to the connection.
func (c *Conn) SetUserData(v any) {
	c.udMu.Lock()
	c.userData = v
	c.udMu.Unlock()
}

// UserData returns the value set with SetUserData.
func (c *Conn) UserData() any {
	c.udMu.Lock()
	defer c.udMu.Unlock()
	return c.userData
}

// Done returns a channel closed when the connection reaches the closed
// state.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Opened returns a channel closed when the handshake completes and the
// connection reaches the open state.
func (c *Conn) Opened() <-chan struct{} { return c.handshakeDone }

// Abort forcibly closes the transport without a closing handshake. The
// reader observes the closed stream and tears the connection down.
func (c *Conn) Abort() {
	_ = c.transport.Close()
}

// Run drives the connection until it closes. It blocks; callers dedicate
// a goroutine to it. The handshake must complete within its timeout or
// the connection drops without a close frame.
func (c *Conn) Run() {
	defer c.teardown()
	go c.writeLoop()

	_ = c.transport.SetReadDeadline(time.Now().Add(handshakeTimeout))

	buf := make([]byte, readChunkSize)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			c.acc.Append(buf[:n])
			if !c.process() {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// process consumes buffered ingress bytes until it needs more. It returns
// false when the connection must stop reading and tear down.
func (c *Conn) process() bool {
	if c.asm.expired(time.Now()) {
		c.log.Warn("fragmented message timed out, dropping connection")
		return false
	}

	for {
		switch c.State() {
		case api.StateHandshake:
			advanced, fatal := c.processHandshake()
			if fatal {
				return false
			}
			if !advanced {
				return true
			}

		case api.StateOpen:
			f, consumed, err := ParseFrame(c.acc.Bytes())
			if err != nil {
				c.log.Warn("frame parse error", slog.String("error", err.Error()))
				c.failConnection(CloseProtocolError)
				return false
			}
			if f == nil {
				return true
			}
			c.acc.Consume(consumed)
			c.met.Frame(c.role.String(), f.Opcode.String(), "in")
			if !c.handleFrame(f) {
				return false
			}

		case api.StateClosing:
			// Drain only far enough to observe the peer's CLOSE.
			f, consumed, err := ParseFrame(c.acc.Bytes())
			if err != nil || (f != nil && f.Opcode == OpcodeClose) {
				return false
			}
			if f == nil {
				return true
			}
			c.acc.Consume(consumed)

		default:
			return false
		}
	}
}

// processHandshake advances the upgrade exchange. advanced means the
// connection moved to the open state; fatal means the connection drops
// without a WebSocket close frame.
func (c *Conn) processHandshake() (advanced, fatal bool) {
	if c.role == api.RoleServer {
		resp, consumed, err := ServerHandshake(c.acc.Bytes())
		if err != nil {
			c.log.Warn("handshake rejected", slog.String("error", err.Error()))
			return false, true
		}
		if resp == nil {
			return false, false
		}
		c.acc.Consume(consumed)
		if c.out.push(resp) != nil {
			return false, true
		}
	} else {
		consumed, err := CheckServerHandshake(c.acc.Bytes(), c.clientKey)
		if err != nil {
			c.log.Warn("handshake reply rejected", slog.String("error", err.Error()))
			return false, true
		}
		if consumed == 0 {
			return false, false
		}
		c.acc.Consume(consumed)
	}

	c.state.Store(int32(api.StateOpen))
	_ = c.transport.SetReadDeadline(time.Time{})
	c.met.ConnOpened(c.role.String())
	c.log.Debug("connection open")
	if c.callbacks.OnOpen != nil {
		c.callbacks.OnOpen(c)
	}
	close(c.handshakeDone)
	return true, false
}

// handleFrame dispatches one fully buffered frame in the open state. It
// returns false when the connection must tear down.
func (c *Conn) handleFrame(f *Frame) bool {
	// Masking policy is role-inverted: clients mask, servers do not.
	if f.Masked != (c.role == api.RoleServer) {
		c.log.Warn("mask policy violation", slog.String("opcode", f.Opcode.String()))
		c.failConnection(CloseProtocolError)
		return false
	}

	if f.Opcode.IsControl() {
		return c.handleControl(f)
	}

	msg, code := c.asm.push(f)
	if code != 0 {
		c.failConnection(code)
		return false
	}
	if msg != nil {
		c.met.Message(c.role.String(), msg.Type.String(), "in")
		if c.callbacks.OnMessage != nil {
			c.callbacks.OnMessage(c, msg.Type, msg.Payload)
		}
	}
	return true
}

// handleControl processes PING, PONG and CLOSE without disturbing a
// pending fragmented message.
func (c *Conn) handleControl(f *Frame) bool {
	if v := validateControl(f); v != 0 {
		c.failConnection(v)
		return false
	}

	switch f.Opcode {
	case OpcodePing:
		c.enqueueControl(OpcodePong, f.Payload)
		return true

	case OpcodePong:
		// Unsolicited or solicited alike: discarded.
		return true

	default: // OpcodeClose
		echo, violation := parseClosePayload(f.Payload)
		if violation != 0 {
			c.failConnection(violation)
			return false
		}
		c.met.Close(c.role.String(), uint16(echo))
		c.state.Store(int32(api.StateClosing))
		if c.sentClose.CompareAndSwap(false, true) {
			c.enqueueControl(OpcodeClose, closePayload(echo))
		}
		return false
	}
}

// failConnection emits a CLOSE carrying code and moves to the closing
// state. The caller stops reading; the queued frame is flushed during
// teardown.
func (c *Conn) failConnection(code CloseCode) {
	if s := c.State(); s != api.StateOpen && s != api.StateClosing {
		return
	}
	c.state.Store(int32(api.StateClosing))
	if c.sentClose.CompareAndSwap(false, true) {
		c.met.Close(c.role.String(), uint16(code))
		c.enqueueControl(OpcodeClose, closePayload(code))
	}
}

// enqueueControl encodes and queues a control frame, masked per role.
func (c *Conn) enqueueControl(op Opcode, payload []byte) {
	frame := EncodeFrame(op, true, c.role == api.RoleClient, payload)
	if c.out.push(frame) == nil {
		c.met.Frame(c.role.String(), op.String(), "out")
	}
}

// writeLoop drains the outbox into the transport. Each queued buffer is
// one whole frame, so writes never interleave frame fragments.
func (c *Conn) writeLoop() {
	defer close(c.writerDone)
	for {
		frame, ok := c.out.pop()
		if ok {
			if _, err := c.transport.Write(frame); err != nil {
				c.log.Debug("transport write failed", slog.String("error", err.Error()))
				_ = c.transport.Close()
				return
			}
			continue
		}
		if c.out.isClosed() {
			return
		}
		<-c.out.wake
	}
}

// teardown moves the connection to its terminal state: the outbox is
// flushed, the transport closed, and OnClose fires exactly once. After
// teardown no further callbacks run and no further frames are sent.
func (c *Conn) teardown() {
	c.closeOnce.Do(func() {
		wasOpen := c.State() == api.StateOpen || c.State() == api.StateClosing
		c.state.Store(int32(api.StateClosed))
		c.out.close()
		select {
		case <-c.writerDone:
		case <-time.After(time.Second):
		}
		_ = c.transport.Close()
		c.asm.reset()
		close(c.done)
		if wasOpen {
			c.met.ConnClosed(c.role.String())
		}
		c.log.Debug("connection closed")
		if c.callbacks.OnClose != nil {
			c.callbacks.OnClose(c)
		}
		c.acc.Release()
	})
}
