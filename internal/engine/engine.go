package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbruinekool/singularity/internal/store"
)

// Handler reacts to one event. Handlers run on the engine goroutine and
// must hand any network I/O off to their own goroutines.
type Handler func(ctx context.Context, ev Event) error

// Engine is the single-consumer event loop between the store and its
// observers.
//
// The store publishes each committed batch to the engine (Engine
// implements store.Publisher). The engine converts the batch into events,
// numbers them, and queues them. Run dequeues events
// one at a time and routes each to the handlers registered for its type,
// then to the handlers registered for every type.
//
// Thread-safety model:
//   - Publish(), Enqueue(), Handle(), HandleAll(): safe from any goroutine
//   - Run(), Drain(): must be called from exactly one goroutine
type Engine struct {
	seq   *Sequence
	queue *eventQueue

	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
}

// New creates an Engine with an empty queue and no handlers.
func New() *Engine {
	return &Engine{
		seq:      NewSequence(0),
		queue:    newEventQueue(),
		handlers: make(map[EventType][]Handler),
	}
}

// Handle registers h for events of type t. Handlers for the same type run
// in registration order.
func (e *Engine) Handle(t EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = append(e.handlers[t], h)
}

// HandleAll registers h for every event type.
func (e *Engine) HandleAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Publish implements store.Publisher. It never blocks.
func (e *Engine) Publish(b store.Batch) {
	for _, ev := range FromBatch(b) {
		e.Enqueue(ev)
	}
}

// Enqueue stamps ev with the next sequence number and submits it for
// processing. Returns false if the engine has been stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.push(ev, e.seq)
}

// QueueLen returns the number of events waiting to be processed.
func (e *Engine) QueueLen() int {
	return e.queue.size()
}

// Run starts the event loop.
// Blocks until context is cancelled or Stop() is called.
//
// ERROR HANDLING: a failing handler is logged with the event's context and
// processing continues with the next handler and the next event. Handlers
// never retry.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		event, ok := e.queue.pop()
		if ok {
			e.processEvent(ctx, event)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.close()
			return ctx.Err()

		case <-e.queue.wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately.
			if e.queue.closed() && e.queue.size() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain processes every queued event and returns how many it handled.
// Used by one-shot CLI commands and tests in place of Run.
func (e *Engine) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		event, ok := e.queue.pop()
		if !ok {
			return n
		}
		e.processEvent(ctx, event)
		n++
	}
	return n
}

// Stop gracefully shuts down the engine.
// Closes the event queue, which will cause Run() to return.
func (e *Engine) Stop() {
	e.queue.close()
}

// processEvent routes an event to its handlers.
func (e *Engine) processEvent(ctx context.Context, event Event) {
	e.mu.RLock()
	typed := append([]Handler(nil), e.handlers[event.Type]...)
	all := append([]Handler(nil), e.all...)
	e.mu.RUnlock()

	slog.Debug("processing event",
		"seq", event.Seq,
		"type", event.Type,
		"collection", event.Collection,
		"row_id", event.RowID,
	)

	for _, h := range append(typed, all...) {
		if err := callHandler(ctx, h, event); err != nil {
			logEventError(event, err)
		}
	}
}

// callHandler runs h, converting a panic into an error so one broken
// handler cannot stop the loop.
func callHandler(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{Value: r}
		}
	}()
	return h(ctx, event)
}

// logEventError logs a handler failure with the event context needed to
// investigate it.
func logEventError(event Event, err error) {
	switch event.Type {
	case EventStateTransitioned:
		slog.Error("state transition handling failed",
			"error", err,
			"seq", event.Seq,
			"collection", event.Collection,
			"row_id", event.RowID,
			"old", fmt.Sprint(event.Old),
			"new", fmt.Sprint(event.New),
		)
	default:
		slog.Error("event handling failed",
			"error", err,
			"seq", event.Seq,
			"event_type", event.Type,
			"collection", event.Collection,
			"row_id", event.RowID,
		)
	}
}
