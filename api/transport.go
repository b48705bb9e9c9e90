// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Transport abstraction consumed by the protocol engine. The engine only
// ever blocks inside Read and Write; everything between those calls is
// synchronous.

package api

import "time"

// Transport abstracts a byte-oriented, reliable, ordered duplex stream.
// Implementations are expected to be safe for one concurrent reader and one
// concurrent writer.
type Transport interface {
	// Read fills p with available bytes. A return of (0, nil) does not mean
	// EOF; EOF is reported as io.EOF.
	Read(p []byte) (int, error)

	// Write sends the whole buffer or reports an error. Partial writes are
	// surfaced as errors by implementations.
	Write(p []byte) (int, error)

	// Close shuts the stream down and unblocks pending reads.
	Close() error

	// RemoteAddr returns the peer address string (host:port).
	RemoteAddr() string

	// LocalAddr returns the local address string (host:port).
	LocalAddr() string

	// SetReadDeadline bounds the next Read; the zero time clears it.
	SetReadDeadline(t time.Time) error
}
