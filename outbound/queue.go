// File: outbound/queue.go
//
// Package outbound implements the per-connection outbound buffer FIFO
// shared by the client and upstream handlers: at most one pooled
// buffer is ever in flight on a socket at a time, per the broker's
// "Per-client outbound queue" invariant. Backed by
// github.com/eapache/queue, the same ring buffer the dispatcher uses
// for its event queue.
package outbound

import (
	"sync"

	"github.com/adamnew123456/tabserver/api"
	"github.com/eapache/queue"
)

// Queue is a FIFO of pooled buffers with an Idle/InFlight state. It is
// safe for concurrent use: a connection's own callback path and the
// dispatcher thread (when enqueuing a forwarded message) both push to
// it.
type Queue struct {
	mu       sync.Mutex
	q        *queue.Queue
	inFlight bool
}

// New constructs an empty outbound Queue.
func New() *Queue {
	return &Queue{q: queue.New()}
}

// Enqueue appends buf. If the queue was idle, buf becomes the in-flight
// buffer and is returned as ready with start=true so the caller can
// start the send immediately; otherwise start is false and buf will be
// sent once everything ahead of it completes.
func (o *Queue) Enqueue(buf api.Buffer) (ready api.Buffer, start bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.q.Add(buf)
	if o.inFlight {
		return api.Buffer{}, false
	}
	o.inFlight = true
	return o.q.Peek().(api.Buffer), true
}

// Completed releases the buffer at the head of the queue (the one that
// just finished sending) and returns the next buffer to send, if any.
func (o *Queue) Completed() (next api.Buffer, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.q.Length() == 0 {
		o.inFlight = false
		return api.Buffer{}, false
	}
	done := o.q.Peek().(api.Buffer)
	o.q.Remove()
	done.Release()

	if o.q.Length() == 0 {
		o.inFlight = false
		return api.Buffer{}, false
	}
	return o.q.Peek().(api.Buffer), true
}
