// Package store provides SQLite-backed storage for rundown collections and
// connections.
//
// The store holds:
//   - Rows: one table for every ordered collection, keyed by (collection, id)
//   - Connections: remote control apps with their raw model documents
//
// # Transactions
//
// Every mutation runs inside Update, which begins a transaction, runs the
// callback, and commits. Any error or panic rolls the transaction back, so
// a half-renumbered collection is never visible. Reads that need a
// consistent snapshot use View.
//
// Changes recorded by a transaction are handed to the Publisher only after
// a successful commit. Observers (the event engine, and through it the
// playout dispatcher) therefore never react to writes that were rolled
// back, and never block the writer on network I/O.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One open connection: SQLite has a single writer anyway
package store
