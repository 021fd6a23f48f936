package engine

import "sync"

// eventQueue is the unbounded FIFO between Publish and the Run loop.
// Publish runs on the store writer's goroutine, so push never blocks.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	head    int
	done    bool
	ready   chan struct{} // capacity 1; closed by close
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// push appends ev, numbering it from seq when seq is non-nil. Numbering
// under the lock keeps Seq in FIFO order across concurrent writers.
// Returns false once the queue is closed.
func (q *eventQueue) push(ev Event, seq *Sequence) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.done {
		return false
	}
	if seq != nil {
		ev.Seq = seq.Next()
	}
	q.pending = append(q.pending, ev)

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest event without blocking.
func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.pending) {
		return Event{}, false
	}
	ev := q.pending[q.head]
	q.pending[q.head] = Event{}
	q.head++
	if q.head == len(q.pending) {
		q.pending = q.pending[:0]
		q.head = 0
	}
	return ev, true
}

// wait fires when events may be pending, and stays fired after close.
func (q *eventQueue) wait() <-chan struct{} {
	return q.ready
}

func (q *eventQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) - q.head
}

func (q *eventQueue) closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

// close rejects further pushes and wakes the Run loop. Pending events
// stay poppable.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.done {
		q.done = true
		close(q.ready)
	}
}
