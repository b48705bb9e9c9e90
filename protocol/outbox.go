// File: protocol/outbox.go
// Package protocol implements the egress frame queue.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every frame is encoded into one contiguous buffer before it is queued,
// and a single writer goroutine drains the queue, so frames reach the
// transport atomically and in enqueue order no matter how many goroutines
// send on the connection.

package protocol

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/wspeer/api"
)

// outbox is an unbounded FIFO of encoded frames. Pushes never block user
// code; the writer goroutine owns the transport end.
type outbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	wake   chan struct{}
	closed bool
}

func (o *outbox) init() {
	o.q = queue.New()
	o.wake = make(chan struct{}, 1)
}

// push enqueues one encoded frame and nudges the writer.
func (o *outbox) push(frame []byte) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return api.ErrClosed
	}
	o.q.Add(frame)
	o.mu.Unlock()
	o.notify()
	return nil
}

// pop removes the head frame, if any.
func (o *outbox) pop() ([]byte, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.q.Length() == 0 {
		return nil, false
	}
	return o.q.Remove().([]byte), true
}

// close rejects further pushes. Frames already queued are still drained
// by the writer before it exits.
func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.notify()
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *outbox) notify() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
