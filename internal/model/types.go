package model

import (
	"errors"
	"maps"
	"slices"
)

// ErrNotFound is returned (wrapped) when a referenced row or connection
// does not exist.
var ErrNotFound = errors.New("not found")

// Collection names an ordered set of rows.
type Collection string

const (
	// Rundown holds the controllable on-air items.
	Rundown Collection = "rundown"
	// Variables holds operator-defined variables.
	Variables Collection = "variables"
	// Tables holds rows of imported data tables.
	Tables Collection = "tables"
)

// Collections lists every known collection in a stable order.
var Collections = []Collection{Rundown, Variables, Tables}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	return slices.Contains(Collections, c)
}

// State is the animation state of a rundown row.
type State string

const (
	// StateOut1 is the primary off-air state.
	StateOut1 State = "Out1"
	// StateIn is the on-air (live) state.
	StateIn State = "In"
	// StateOut2 is the secondary off-air state.
	StateOut2 State = "Out2"
)

// States lists the recognized animation states.
var States = []State{StateOut1, StateIn, StateOut2}

// ParseState returns the State held by v. Only the three exact string
// values are recognized; anything else (including other types) is rejected.
func ParseState(v any) (State, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	st := State(s)
	if !slices.Contains(States, st) {
		return "", false
	}
	return st, true
}

// OnAir reports whether the state puts the item on air.
func (s State) OnAir() bool {
	return s == StateIn
}

// Well-known cell columns.
const (
	ColumnID          = "id"
	ColumnState       = "state"
	ColumnStatus      = "status"
	ColumnLayer       = "layer"
	ColumnName        = "name"
	ColumnTemplate    = "template"
	ColumnType        = "type"
	ColumnSubcompID   = "subcompId"
	ColumnOrder       = "order"
	ColumnAppToken    = "appToken"
	ColumnAppLabel    = "appLabel"
	ColumnRundownID   = "rundownId"
	ColumnLastUpdated = "lastUpdated"
)

var reservedColumns = map[string]bool{
	ColumnID:        true,
	ColumnState:     true,
	ColumnStatus:    true,
	ColumnLayer:     true,
	ColumnName:      true,
	ColumnTemplate:  true,
	ColumnType:      true,
	ColumnSubcompID: true,
	ColumnOrder:     true,
	ColumnAppToken:  true,
	ColumnAppLabel:  true,
	ColumnRundownID: true,
}

// IsReserved reports whether col is bookkeeping rather than payload.
func IsReserved(col string) bool {
	return reservedColumns[col]
}

// aliases maps external patch field names to internal columns.
var aliases = map[string]string{
	"subCompositionId":   ColumnSubcompID,
	"subCompositionName": ColumnTemplate,
	"rundownName":        ColumnName,
	"state":              ColumnStatus,
}

// TranslateAlias returns the internal column for an external field name.
// Names without an alias are returned unchanged.
func TranslateAlias(key string) string {
	if col, ok := aliases[key]; ok {
		return col
	}
	return key
}

// Cells is the flat column -> scalar map of a row.
type Cells map[string]any

// Clone returns a shallow copy of the cells. A nil receiver yields an
// empty, non-nil map.
func (c Cells) Clone() Cells {
	out := make(Cells, len(c))
	maps.Copy(out, c)
	return out
}

// Has reports whether the column exists on the row.
func (c Cells) Has(col string) bool {
	_, ok := c[col]
	return ok
}

// String returns the column as a non-empty string.
func (c Cells) String(col string) (string, bool) {
	s, ok := c[col].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// SortedKeys returns the column names in ascending order.
func (c Cells) SortedKeys() []string {
	return slices.Sorted(maps.Keys(c))
}

// Row is one entry of a collection.
type Row struct {
	ID    int64 `json:"id"`
	Order int64 `json:"order"`
	Cells Cells `json:"cells"`
}

// State returns the row's animation state, if it holds a valid one.
func (r Row) State() (State, bool) {
	return ParseState(r.Cells[ColumnStatus])
}

// SubCompositionID returns the remote subcomposition the row drives.
func (r Row) SubCompositionID() (string, bool) {
	return r.Cells.String(ColumnSubcompID)
}

// AppToken returns the token of the connection owning the row.
func (r Row) AppToken() (string, bool) {
	return r.Cells.String(ColumnAppToken)
}

// Payload returns every non-reserved cell.
func (r Row) Payload() map[string]any {
	out := make(map[string]any)
	for k, v := range r.Cells {
		if !IsReserved(k) {
			out[k] = v
		}
	}
	return out
}
