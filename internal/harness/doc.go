// Package harness replays rundown sessions described in YAML and checks
// them against assertions and golden snapshots.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	clock: 1000000            # fake wall clock start, unix ms
//	off_air_payload: empty    # or "resolved"
//	setup:
//	  - op: connection
//	    path: connections/studio.json
//	  - op: insert
//	    collection: rundown
//	    appToken: tok-studio
//	    subCompositionId: sc-lower
//	flow:
//	  - op: patch
//	    body: [{id: 1, state: In}]
//	  - op: delete
//	    collection: rundown
//	    row: 9
//	    expect: {error: not_found}
//	assertions:
//	  - type: event_contains
//	    event: StateTransitioned
//	    row: 1
//	  - type: final_state
//	    collection: rundown
//	    row: 1
//	    expect: {status: In}
//
// Operations: connection, insert, insert_after, duplicate, move, delete,
// renumber, set, patch, push, advance (moves the clock) and renderer
// (sets the fake renderer's response code).
//
// # Assertion Types
//
//   - event_contains: an engine event of a type, optionally on a row
//   - event_order: event types appear in the given order
//   - event_count: an event type appears exactly N times
//   - dispatch_count: N dispatch notices, optionally of one outcome
//   - final_state: a row holds the expected cells (subset match)
//   - order: a collection lists exactly the given rows
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store, a fake wall clock
// (testutil.FakeClock) and an httptest renderer. Concurrent dispatches
// within one step are reported sorted, so identical scenarios render
// byte-identical snapshots for golden comparison.
package harness
