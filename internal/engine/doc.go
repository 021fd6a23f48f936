// Package engine turns committed store changes into an ordered stream of
// events and routes them to handlers.
//
// ARCHITECTURE:
//
// Single-Consumer Event Loop:
// The store calls Engine.Publish after every successful commit. Publish
// converts the batch into events (FromBatch), stamps each with a
// monotonic sequence number, and appends it to an unbounded
// FIFO queue without blocking the writer. Engine.Run dequeues one event
// at a time and calls the handlers registered for it.
//
// Event Processing Flow:
//  1. A store transaction commits (operator edit, inbound patch, import)
//  2. Store publishes the change batch to the engine
//  3. FromBatch derives OrderChanged, StateTransitioned, CellsChanged,
//     RowInserted, RowDeleted and PatchApplied events
//  4. Run routes each event to its handlers in registration order
//
// Handlers run on the engine goroutine. Anything that performs network
// I/O (the playout dispatcher, the websocket feed) must hand the work off
// to its own goroutine, so one slow remote never delays later events.
//
// Since events are published only after commit, no handler ever observes
// a rolled-back write or half of a renumber.
package engine
