// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations for the wspeer endpoint library.

package api

// Role distinguishes the two endpoint kinds of a WebSocket session.
// The role is fixed at construction and determines the masking policy:
// clients mask egress frames and require unmasked ingress, servers the
// inverse.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "unknown"
	}
}

// DataType is the application-visible kind of a data message.
type DataType int

const (
	DataTypeText DataType = iota + 1
	DataTypeBinary
)

func (t DataType) String() string {
	switch t {
	case DataTypeText:
		return "text"
	case DataTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// State enumerates the lifecycle of a WebSocket connection.
// States only move forward, Handshake -> Open -> Closing -> Closed; a
// connection may skip straight to Closed (a failed handshake, or the
// transport ending while open). Closed is terminal.
type State int32

const (
	StateHandshake State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshake:
		return "handshake"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
