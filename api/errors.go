// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values shared across the wspeer library.

package api

import "errors"

var (
	// ErrClosed is returned for operations on a closed connection or server.
	ErrClosed = errors.New("connection is closed")
	// ErrHandshake is returned when the HTTP upgrade handshake fails.
	ErrHandshake = errors.New("websocket handshake failed")
	// ErrHandshakeTimeout names a handshake that did not complete within
	// its deadline. No function in this module returns it: client.Dial
	// reports a timed-out handshake as ErrHandshake.
	ErrHandshakeTimeout = errors.New("websocket handshake timeout")
	// ErrInvalidCloseCode is returned when user code attempts to close a
	// connection with a code outside the RFC 6455 valid set.
	ErrInvalidCloseCode = errors.New("invalid close code")
	// ErrFragmentInProgress is returned when a send would interleave with an
	// unfinished fragmented send on the same connection.
	ErrFragmentInProgress = errors.New("fragmented send in progress")
	// ErrNoFragmentStarted is returned by a fragmented continuation without a
	// preceding fragmented start.
	ErrNoFragmentStarted = errors.New("no fragmented send started")
	// ErrInvalidDataType is returned for data types other than text or binary.
	ErrInvalidDataType = errors.New("invalid data type")
)
