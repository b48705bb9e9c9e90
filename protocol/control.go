// File: protocol/control.go
// Package protocol implements control frame validation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// PING, PONG and CLOSE may interleave the fragments of a data message and
// are handled without disturbing reassembly. Validation is split out here
// as pure functions; the replies themselves are emitted by the connection.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/wspeer/internal/utf8"
)

// validateControl checks the constraints every control frame shares:
// FIN must be set and the payload must fit in a single unextended frame.
// It returns the close code a violation demands, or zero.
func validateControl(f *Frame) CloseCode {
	if !f.Fin || f.Length > maxControlPayload {
		return CloseProtocolError
	}
	if f.Opcode == OpcodeClose && f.Length == 1 {
		// A close payload is either empty or holds at least the 16-bit code.
		return CloseProtocolError
	}
	return 0
}

// parseClosePayload decodes a CLOSE frame payload that already passed
// validateControl. It returns the code to echo and, when the payload is
// itself in violation, the code to fail the connection with instead.
//
// An empty payload means "no status": the echo carries 1000. A present
// code must belong to the valid partition, and any trailing reason bytes
// must be complete, valid UTF-8.
func parseClosePayload(p []byte) (echo CloseCode, violation CloseCode) {
	if len(p) == 0 {
		return CloseNormalClosure, 0
	}
	code := CloseCode(binary.BigEndian.Uint16(p[:2]))
	if !code.Valid() {
		return 0, CloseProtocolError
	}
	if len(p) > 2 {
		var v utf8.Validator
		if v.Feed(p[2:]) != utf8.OK {
			return 0, CloseInvalidFramePayloadData
		}
	}
	return code, 0
}

// closePayload builds a CLOSE frame payload carrying code.
func closePayload(code CloseCode) []byte {
	var p [2]byte
	binary.BigEndian.PutUint16(p[:], uint16(code))
	return p[:]
}
