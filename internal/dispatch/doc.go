// Package dispatch mirrors rundown animation transitions to the remote
// renderer.
//
// A Dispatcher listens for StateTransitioned events from the engine. For
// each valid transition it reads the row, resolves the outbound payload
// against the connection's field schema, and sends one PATCH to
// <remote>/controlapps/{appToken}/control on its own goroutine. Delivery
// is best effort: at most one attempt, no retry, no queueing. Remote
// failures are logged and counted but never roll back local state.
//
// Push is the synchronous entry point used by operators to resend the
// current field values of a row, optionally with its state.
package dispatch
