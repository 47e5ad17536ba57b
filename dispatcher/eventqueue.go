// File: dispatcher/eventqueue.go
package dispatcher

import (
	"sync"

	"github.com/eapache/queue"
)

// eventQueue is a blocking MPSC queue: any number of producers call
// push concurrently, a single consumer calls pop and suspends when the
// queue is empty. Backed by github.com/eapache/queue's ring buffer
// (grounded on the teacher's internal/concurrency/executor.go, which
// drives the same library for its task queue) with a condvar added on
// top so the consumer blocks instead of busy-polling.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	q      *queue.Queue
	closed bool
}

func newEventQueue() *eventQueue {
	eq := &eventQueue{q: queue.New()}
	eq.cond = sync.NewCond(&eq.mu)
	return eq
}

func (eq *eventQueue) push(e Event) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	if eq.closed {
		return
	}
	eq.q.Add(e)
	eq.cond.Signal()
}

// pop blocks until an event is available or the queue is closed with
// nothing left to drain, in which case ok is false.
func (eq *eventQueue) pop() (Event, bool) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	for eq.q.Length() == 0 {
		if eq.closed {
			return Event{}, false
		}
		eq.cond.Wait()
	}
	e := eq.q.Peek().(Event)
	eq.q.Remove()
	return e, true
}

func (eq *eventQueue) close() {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	eq.closed = true
	eq.cond.Broadcast()
}
