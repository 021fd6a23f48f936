package store

import (
	"errors"
	"fmt"

	"github.com/rbruinekool/singularity/internal/model"
)

// Origin tags a committed batch with what caused it.
type Origin string

const (
	// OriginOperator marks writes made through the operator surface.
	OriginOperator Origin = "operator"
	// OriginPatch marks writes made by the inbound patch reconciler.
	OriginPatch Origin = "patch"
	// OriginImport marks connection imports and seeding.
	OriginImport Origin = "import"
)

// ChangeKind distinguishes the kinds of recorded changes.
type ChangeKind int

const (
	// RowInserted records a new row. New holds its cells.
	RowInserted ChangeKind = iota + 1
	// RowDeleted records a removed row. Old holds its last cells.
	RowDeleted
	// OrderChanged records a new order value. Old/New hold int64 orders.
	OrderChanged
	// CellChanged records one column write on an existing row.
	CellChanged
)

func (k ChangeKind) String() string {
	switch k {
	case RowInserted:
		return "row_inserted"
	case RowDeleted:
		return "row_deleted"
	case OrderChanged:
		return "order_changed"
	case CellChanged:
		return "cell_changed"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is one mutation recorded inside a transaction.
type Change struct {
	Kind       ChangeKind
	Collection model.Collection
	RowID      int64
	Column     string // CellChanged only
	Old        any
	New        any
}

// Batch is the set of changes committed by one transaction.
type Batch struct {
	Origin  Origin
	Changes []Change
}

// Publisher receives committed batches. Publish is called after commit on
// the writer's goroutine and must not block on I/O.
type Publisher interface {
	Publish(Batch)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(Batch)

// Publish calls f(b).
func (f PublisherFunc) Publish(b Batch) {
	f(b)
}

// ErrReadOnly is returned when a write is attempted inside View.
var ErrReadOnly = errors.New("write in read-only transaction")

// ErrUnknownCollection is returned for collection names the store does not know.
var ErrUnknownCollection = errors.New("unknown collection")

// TxError reports a transaction that failed and was rolled back.
type TxError struct {
	Op  string // "begin", "apply", or "commit"
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err refers to a missing row or connection.
func IsNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}
