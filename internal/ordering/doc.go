// Package ordering keeps the rows of a collection in a consistent total
// order under insert, duplicate, move, and delete.
//
// The algorithms are written once against the Table interface and run
// inside a single store transaction, so no reader ever observes a
// half-applied renumber. Collections differ only in their Policy:
//
//   - Dense: delete renumbers the remaining rows to 0..n-1
//   - Sparse: delete leaves the vacated slot empty
//
// Order values are used for relative sequencing only. Rows are sorted by
// (order, id), so ties and non-numeric values never make the sort fail.
package ordering
