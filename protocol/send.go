// File: protocol/send.go
// Package protocol implements the egress surface of a connection.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"time"

	"github.com/momentics/wspeer/api"
)

// Send transmits one complete data message as a single frame (FIN set).
// It fails while a fragmented send is open so user data streams never
// interleave on the wire.
func (c *Conn) Send(dataType api.DataType, payload []byte) error {
	op, err := opcodeFor(dataType)
	if err != nil {
		return err
	}
	c.fragMu.Lock()
	defer c.fragMu.Unlock()
	if c.fragOpen {
		return api.ErrFragmentInProgress
	}
	if err := c.sendFrame(op, true, payload); err != nil {
		return err
	}
	c.met.Message(c.role.String(), dataType.String(), "out")
	return nil
}

// SendFragmentedStart opens a fragmented message with its first, non-FIN
// frame. Continue with SendFragmentedCont.
func (c *Conn) SendFragmentedStart(dataType api.DataType, payload []byte) error {
	op, err := opcodeFor(dataType)
	if err != nil {
		return err
	}
	c.fragMu.Lock()
	defer c.fragMu.Unlock()
	if c.fragOpen {
		return api.ErrFragmentInProgress
	}
	if err := c.sendFrame(op, false, payload); err != nil {
		return err
	}
	c.fragOpen = true
	return nil
}

// SendFragmentedCont continues a fragmented message; fin marks the last
// fragment.
func (c *Conn) SendFragmentedCont(fin bool, payload []byte) error {
	c.fragMu.Lock()
	defer c.fragMu.Unlock()
	if !c.fragOpen {
		return api.ErrNoFragmentStarted
	}
	if err := c.sendFrame(OpcodeContinuation, fin, payload); err != nil {
		return err
	}
	if fin {
		c.fragOpen = false
	}
	return nil
}

// Close initiates the closing handshake with the given code. The reader
// keeps draining briefly for the peer's echoed CLOSE; the connection then
// reaches the closed state and OnClose fires.
//
// An invalid code is never sent: the connection closes with a protocol
// error instead and ErrInvalidCloseCode is returned.
func (c *Conn) Close(code CloseCode) error {
	if !code.Valid() {
		c.failConnection(CloseProtocolError)
		_ = c.transport.SetReadDeadline(time.Now().Add(closingGrace))
		return api.ErrInvalidCloseCode
	}

	switch c.State() {
	case api.StateOpen:
		c.state.Store(int32(api.StateClosing))
		if c.sentClose.CompareAndSwap(false, true) {
			c.met.Close(c.role.String(), uint16(code))
			c.enqueueControl(OpcodeClose, closePayload(code))
		}
		// Bound the wait for the echo; EOF or the echo finishes the
		// teardown on the reader side.
		_ = c.transport.SetReadDeadline(time.Now().Add(closingGrace))
		return nil

	case api.StateHandshake:
		// No close frame before the handshake completes.
		return c.transport.Close()

	default:
		return api.ErrClosed
	}
}

// sendFrame encodes and queues one data frame, masked per role. Egress is
// allowed only while the connection is open.
func (c *Conn) sendFrame(op Opcode, fin bool, payload []byte) error {
	if c.State() != api.StateOpen {
		return api.ErrClosed
	}
	frame := EncodeFrame(op, fin, c.role == api.RoleClient, payload)
	if err := c.out.push(frame); err != nil {
		return err
	}
	c.met.Frame(c.role.String(), op.String(), "out")
	return nil
}

func opcodeFor(dataType api.DataType) (Opcode, error) {
	switch dataType {
	case api.DataTypeText:
		return OpcodeText, nil
	case api.DataTypeBinary:
		return OpcodeBinary, nil
	default:
		return 0, api.ErrInvalidDataType
	}
}
