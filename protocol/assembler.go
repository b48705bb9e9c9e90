// File: protocol/assembler.go
// Package protocol implements fragmented message reassembly.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// At most one fragmented message may be in flight per connection. The
// assembler enforces the RFC 6455 interleaving rules, validates TEXT
// payloads incrementally across fragment boundaries, and ages out pending
// messages that never complete.

package protocol

import (
	"time"

	"github.com/momentics/wspeer/api"
	"github.com/momentics/wspeer/internal/utf8"
)

// reassemblyTimeout is the wall-clock budget for a fragmented message,
// measured from the first non-FIN fragment. The timestamp is monotonic and
// checked opportunistically when new bytes arrive.
const reassemblyTimeout = 30 * time.Second

// Message is a complete data message ready for delivery to user code.
type Message struct {
	Type    api.DataType
	Payload []byte
}

// assembler reassembles fragmented data frames into messages.
type assembler struct {
	maxMessageSize int64

	active   bool
	dataType api.DataType
	payload  []byte
	utf8     utf8.Validator
	started  time.Time
}

// push feeds one fully buffered data frame (TEXT, BINARY or CONTINUATION)
// into the assembler. It returns a complete message when one is ready, or
// a nonzero close code when the frame violates the protocol. Control
// frames never reach the assembler and do not disturb a pending message.
func (a *assembler) push(f *Frame) (*Message, CloseCode) {
	switch f.Opcode {
	case OpcodeText, OpcodeBinary:
		if a.active {
			// A new data message cannot start while one is pending.
			return nil, CloseProtocolError
		}
		dataType := api.DataTypeBinary
		if f.Opcode == OpcodeText {
			dataType = api.DataTypeText
		}
		if a.maxMessageSize > 0 && f.Length > a.maxMessageSize {
			return nil, CloseMessageTooBig
		}

		if f.Fin {
			if dataType == api.DataTypeText {
				var v utf8.Validator
				if v.Feed(f.Payload) != utf8.OK {
					return nil, CloseInvalidFramePayloadData
				}
			}
			return &Message{Type: dataType, Payload: f.Payload}, 0
		}

		a.active = true
		a.dataType = dataType
		a.payload = f.Payload
		a.utf8.Reset()
		a.started = time.Now()
		if dataType == api.DataTypeText && a.utf8.Feed(f.Payload) == utf8.Fail {
			a.reset()
			return nil, CloseInvalidFramePayloadData
		}
		return nil, 0

	case OpcodeContinuation:
		if !a.active {
			return nil, CloseProtocolError
		}
		if a.maxMessageSize > 0 && int64(len(a.payload))+f.Length > a.maxMessageSize {
			a.reset()
			return nil, CloseMessageTooBig
		}
		a.payload = append(a.payload, f.Payload...)
		if a.dataType == api.DataTypeText {
			state := a.utf8.Feed(f.Payload)
			if state == utf8.Fail || (f.Fin && state != utf8.OK) {
				a.reset()
				return nil, CloseInvalidFramePayloadData
			}
		}
		if !f.Fin {
			return nil, 0
		}
		msg := &Message{Type: a.dataType, Payload: a.payload}
		a.reset()
		return msg, 0

	default:
		return nil, CloseProtocolError
	}
}

// expired reports whether a pending message has outlived its reassembly
// budget at time now.
func (a *assembler) expired(now time.Time) bool {
	return a.active && now.Sub(a.started) > reassemblyTimeout
}

// reset discards any pending message.
func (a *assembler) reset() {
	a.active = false
	a.payload = nil
	a.utf8.Reset()
	a.started = time.Time{}
}
