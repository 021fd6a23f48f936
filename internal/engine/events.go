package engine

import (
	"fmt"

	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/store"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventOrderChanged reports that one or more rows of a collection got
	// new order values in a single commit. RowIDs lists them.
	EventOrderChanged EventType = iota + 1
	// EventStateTransitioned reports a write of the status column on an
	// existing rundown row. Old and New hold the raw column values.
	EventStateTransitioned
	// EventCellsChanged reports column writes on one existing row.
	EventCellsChanged
	// EventRowInserted reports a new row.
	EventRowInserted
	// EventRowDeleted reports a removed row.
	EventRowDeleted
	// EventPatchApplied reports a committed inbound patch batch. RowIDs
	// lists the rows it touched.
	EventPatchApplied
)

func (t EventType) String() string {
	switch t {
	case EventOrderChanged:
		return "OrderChanged"
	case EventStateTransitioned:
		return "StateTransitioned"
	case EventCellsChanged:
		return "CellsChanged"
	case EventRowInserted:
		return "RowInserted"
	case EventRowDeleted:
		return "RowDeleted"
	case EventPatchApplied:
		return "PatchApplied"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// MarshalText renders the type by name in JSON feeds.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a name written by MarshalText.
func (t *EventType) UnmarshalText(b []byte) error {
	for c := EventOrderChanged; c <= EventPatchApplied; c++ {
		if c.String() == string(b) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

// Event is a committed store change, stamped with a logical sequence
// number when enqueued.
type Event struct {
	Seq        int64            `json:"seq"`
	Type       EventType        `json:"type"`
	Origin     store.Origin     `json:"origin"`
	Collection model.Collection `json:"collection"`
	RowID      int64            `json:"rowId,omitempty"`
	RowIDs     []int64          `json:"rowIds,omitempty"`
	Columns    []string         `json:"columns,omitempty"`
	Old        any              `json:"old,omitempty"`
	New        any              `json:"new,omitempty"`
}

// FromBatch converts a committed batch into events, in the order the
// changes were recorded. Within one batch:
//   - order changes collapse into one OrderChanged per collection
//   - cell changes collapse into one CellsChanged per row
//   - a status write on an existing rundown row also yields StateTransitioned
//   - a patch-origin batch ends with one PatchApplied
//
// Status values set on rows inserted by the same batch are not transitions.
func FromBatch(b store.Batch) []Event {
	var (
		out       []Event
		orderIdx  = make(map[model.Collection]int)
		cellIdx   = make(map[rowKey]int)
		inserted  = make(map[rowKey]bool)
		patched   []int64
		patchSeen = make(map[int64]bool)
	)

	for _, c := range b.Changes {
		key := rowKey{c.Collection, c.RowID}
		switch c.Kind {
		case store.RowInserted:
			inserted[key] = true
			out = append(out, Event{Type: EventRowInserted, Origin: b.Origin, Collection: c.Collection, RowID: c.RowID})

		case store.RowDeleted:
			out = append(out, Event{Type: EventRowDeleted, Origin: b.Origin, Collection: c.Collection, RowID: c.RowID, Old: c.Old})

		case store.OrderChanged:
			if i, ok := orderIdx[c.Collection]; ok {
				out[i].RowIDs = append(out[i].RowIDs, c.RowID)
				continue
			}
			orderIdx[c.Collection] = len(out)
			out = append(out, Event{Type: EventOrderChanged, Origin: b.Origin, Collection: c.Collection, RowIDs: []int64{c.RowID}})

		case store.CellChanged:
			if c.Collection == model.Rundown && c.Column == model.ColumnStatus && !inserted[key] {
				out = append(out, Event{
					Type:       EventStateTransitioned,
					Origin:     b.Origin,
					Collection: c.Collection,
					RowID:      c.RowID,
					Old:        c.Old,
					New:        c.New,
				})
			}
			if i, ok := cellIdx[key]; ok {
				out[i].Columns = append(out[i].Columns, c.Column)
			} else {
				cellIdx[key] = len(out)
				out = append(out, Event{Type: EventCellsChanged, Origin: b.Origin, Collection: c.Collection, RowID: c.RowID, Columns: []string{c.Column}})
			}
			if b.Origin == store.OriginPatch && !patchSeen[c.RowID] {
				patchSeen[c.RowID] = true
				patched = append(patched, c.RowID)
			}
		}
	}

	if b.Origin == store.OriginPatch && len(patched) > 0 {
		out = append(out, Event{Type: EventPatchApplied, Origin: b.Origin, Collection: model.Rundown, RowIDs: patched})
	}
	return out
}

type rowKey struct {
	c  model.Collection
	id int64
}
