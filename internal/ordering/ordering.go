package ordering

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/rbruinekool/singularity/internal/model"
)

// Policy selects what happens to order values when a row is deleted.
type Policy int

const (
	// Sparse leaves the deleted row's slot permanently vacant.
	Sparse Policy = iota
	// Dense renumbers the remaining rows to 0..n-1 after a delete.
	Dense
)

func (p Policy) String() string {
	switch p {
	case Sparse:
		return "sparse"
	case Dense:
		return "dense"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Entry is a row id with its current order value.
type Entry struct {
	ID    int64
	Order int64
}

// Table is the transaction-scoped view of one collection. T is the row
// content inserted alongside a new order value.
type Table[T any] interface {
	// Entries returns every row of the collection, in any order.
	Entries() ([]Entry, error)
	// SetOrder assigns a new order value to an existing row.
	SetOrder(id, order int64) error
	// Insert adds a row at the given order and returns its id.
	Insert(order int64, row T) (int64, error)
	// Delete removes a row. Missing rows report model.ErrNotFound.
	Delete(id int64) error
}

// Collection applies the ordering algorithms with a fixed Policy.
type Collection[T any] struct {
	Policy Policy
}

// Coerce reads a raw stored order value. Anything that is not a number
// sorts as 0.
func Coerce(raw any) int64 {
	if n, ok := model.Int64(raw); ok {
		return n
	}
	return 0
}

// Sort orders entries ascending by order, breaking ties by id.
func Sort(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// Sequence returns the ids of entries in ascending order.
func Sequence(entries []Entry) []int64 {
	sorted := slices.Clone(entries)
	Sort(sorted)
	ids := make([]int64, len(sorted))
	for i, e := range sorted {
		ids[i] = e.ID
	}
	return ids
}

// InsertAtFront inserts row at order 0 and shifts every existing row by +1.
func (c Collection[T]) InsertAtFront(t Table[T], row T) (int64, error) {
	entries, err := t.Entries()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := t.SetOrder(e.ID, e.Order+1); err != nil {
			return 0, err
		}
	}
	return t.Insert(0, row)
}

// InsertAfter inserts row immediately after sourceID. Every row ordered
// after the source shifts by +1.
func (c Collection[T]) InsertAfter(t Table[T], sourceID int64, row T) (int64, error) {
	entries, err := t.Entries()
	if err != nil {
		return 0, err
	}
	idx := slices.IndexFunc(entries, func(e Entry) bool { return e.ID == sourceID })
	if idx < 0 {
		return 0, fmt.Errorf("row %d: %w", sourceID, model.ErrNotFound)
	}
	sourceOrder := entries[idx].Order

	for _, e := range entries {
		if e.Order > sourceOrder {
			if err := t.SetOrder(e.ID, e.Order+1); err != nil {
				return 0, err
			}
		}
	}
	return t.Insert(sourceOrder+1, row)
}

// Move relocates fromID next to toID and renumbers the whole collection
// to 0..n-1. A row that started before its target lands after it;
// otherwise it lands before it. Moving a row onto itself does nothing.
func (c Collection[T]) Move(t Table[T], fromID, toID int64) error {
	if fromID == toID {
		return nil
	}
	entries, err := t.Entries()
	if err != nil {
		return err
	}
	seq := Sequence(entries)

	fromIdx := slices.Index(seq, fromID)
	if fromIdx < 0 {
		return fmt.Errorf("row %d: %w", fromID, model.ErrNotFound)
	}
	toIdx := slices.Index(seq, toID)
	if toIdx < 0 {
		return fmt.Errorf("row %d: %w", toID, model.ErrNotFound)
	}

	seq = slices.Delete(seq, fromIdx, fromIdx+1)
	at := slices.Index(seq, toID)
	if fromIdx < toIdx {
		at++
	}
	seq = slices.Insert(seq, at, fromID)

	return assign(t, entries, seq)
}

// Delete removes id. Under the Dense policy the remaining rows are
// renumbered in the same transaction.
func (c Collection[T]) Delete(t Table[T], id int64) error {
	if err := t.Delete(id); err != nil {
		return err
	}
	if c.Policy != Dense {
		return nil
	}
	return c.Renumber(t)
}

// Renumber compacts the collection to 0..n-1, preserving relative order.
func (c Collection[T]) Renumber(t Table[T]) error {
	entries, err := t.Entries()
	if err != nil {
		return err
	}
	return assign(t, entries, Sequence(entries))
}

// assign writes order = index for every id in seq whose value changes.
func assign[T any](t Table[T], entries []Entry, seq []int64) error {
	current := make(map[int64]int64, len(entries))
	for _, e := range entries {
		current[e.ID] = e.Order
	}
	for i, id := range seq {
		if current[id] == int64(i) {
			continue
		}
		if err := t.SetOrder(id, int64(i)); err != nil {
			return err
		}
	}
	return nil
}
