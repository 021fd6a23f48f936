// Package reconcile validates externally sourced patch batches and applies
// them to the rundown in one transaction.
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/store"
)

const (
	keyID      = "id"
	keyPayload = "payload"
)

// Result describes a committed batch.
type Result struct {
	Updated int     `json:"updated"`
	RowIDs  []int64 `json:"rowIds"`
}

// Message is the human-readable summary returned to the caller.
func (r Result) Message() string {
	if r.Updated == 1 {
		return "Updated 1 item"
	}
	return fmt.Sprintf("Updated %d items", r.Updated)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNow overrides the wall clock used for lastUpdated.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// Reconciler applies inbound patch batches to the rundown.
type Reconciler struct {
	store *store.Store
	now   func() time.Time
}

// New creates a Reconciler writing to s.
func New(s *store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{store: s, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// item is a validated patch item.
type item struct {
	id     int64
	fields map[string]any
}

// Apply validates body and, if every item is valid, applies all of them in
// one transaction. Nothing is written when any item is invalid (a
// *ValidationError listing each problem) or when the transaction fails (a
// *store.TxError).
func (r *Reconciler) Apply(ctx context.Context, body []byte) (Result, error) {
	raw, err := decode(body)
	if err != nil {
		return Result{}, err
	}

	list, ok := raw.([]any)
	if !ok {
		return Result{}, &ValidationError{Details: []string{"Request body must be an array of patch items"}}
	}

	snapshot, err := r.snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read rundown: %w", err)
	}

	items, details := validate(list, snapshot)
	if len(details) > 0 {
		return Result{}, &ValidationError{Details: details}
	}

	var res Result
	err = r.store.Update(ctx, store.OriginPatch, func(tx *store.Tx) error {
		for _, it := range items {
			// Existence is re-checked here; a row deleted since the
			// snapshot aborts the whole batch.
			row, err := tx.Row(model.Rundown, it.id)
			if err != nil {
				return err
			}
			if err := tx.MergeCells(model.Rundown, it.id, r.updates(row, it.fields)); err != nil {
				return err
			}
			if !slices.Contains(res.RowIDs, it.id) {
				res.RowIDs = append(res.RowIDs, it.id)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res.Updated = len(items)
	slog.Info("patch applied", "items", res.Updated, "rows", len(res.RowIDs))
	return res, nil
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	// Trailing data after the first value is malformed too.
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidJSON)
	}
	return raw, nil
}

func (r *Reconciler) snapshot(ctx context.Context) (map[int64]model.Row, error) {
	rows, err := r.store.Rows(ctx, model.Rundown)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]model.Row, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// validate checks every item against the snapshot and collects all
// problems rather than stopping at the first.
func validate(list []any, snapshot map[int64]model.Row) ([]item, []string) {
	var (
		items   []item
		details []string
	)
	for i, v := range list {
		obj, ok := v.(map[string]any)
		if !ok {
			details = append(details, fmt.Sprintf("Item at index %d must be an object", i))
			continue
		}
		fields := normalizeKeys(obj)

		num, ok := fields[keyID].(json.Number)
		if !ok {
			details = append(details, fmt.Sprintf("Item at index %d must have a numeric id", i))
			continue
		}
		id, ok := rowID(num)
		if !ok {
			details = append(details, fmt.Sprintf("Row with id %s not found", num))
			continue
		}
		if _, ok := snapshot[id]; !ok {
			details = append(details, fmt.Sprintf("Row with id %d not found", id))
			continue
		}

		if bad, ok := invalidState(fields); ok {
			details = append(details, fmt.Sprintf(
				"Invalid state %s for row %d: must be one of %s",
				display(bad), id, stateList(),
			))
			continue
		}
		items = append(items, item{id: id, fields: fields})
	}
	return items, details
}

// invalidState returns the first value the item would write to the status
// column that is not a valid state. The column is reachable through the
// state alias, a literal status key and a status entry in the payload.
// Payload keys are not aliased, so payload.state is an ordinary cell.
func invalidState(fields map[string]any) (any, bool) {
	values := []any{}
	for _, k := range []string{model.ColumnState, model.ColumnStatus} {
		if v, ok := fields[k]; ok {
			values = append(values, v)
		}
	}
	if obj, ok := fields[keyPayload].(map[string]any); ok {
		if v, ok := normalizeKeys(obj)[model.ColumnStatus]; ok {
			values = append(values, v)
		}
	}
	for _, v := range values {
		if _, ok := model.ParseState(v); !ok {
			return v, true
		}
	}
	return nil, false
}

// rowID accepts any integral JSON number, including forms like 1.0 or 1e2.
func rowID(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// updates computes the columns one item writes onto row.
//   - payload entries become columns; non-scalar entries are dropped
//   - other keys are translated through the alias table and written only
//     when the row already has that column
//   - lastUpdated always advances
func (r *Reconciler) updates(row model.Row, fields map[string]any) model.Cells {
	out := model.Cells{}
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		switch k {
		case keyID:
			continue
		case keyPayload:
			obj, ok := v.(map[string]any)
			if !ok {
				slog.Debug("ignoring non-object payload", "row_id", row.ID)
				continue
			}
			obj = normalizeKeys(obj)
			for _, pk := range sortedKeys(obj) {
				pv := obj[pk]
				if !model.IsScalar(pv) {
					slog.Debug("dropping non-scalar payload entry", "row_id", row.ID, "key", pk)
					continue
				}
				out[pk] = model.NormalizeNumber(pv)
			}
		default:
			col := model.TranslateAlias(k)
			if !row.Cells.Has(col) {
				slog.Debug("ignoring field without column", "row_id", row.ID, "key", k)
				continue
			}
			if !model.IsScalar(v) {
				slog.Debug("dropping non-scalar field", "row_id", row.ID, "key", k)
				continue
			}
			out[col] = model.NormalizeNumber(v)
		}
	}
	out[model.ColumnLastUpdated] = nextTimestamp(row, r.now())
	return out
}

// nextTimestamp returns a lastUpdated value strictly greater than the
// row's current one.
func nextTimestamp(row model.Row, now time.Time) int64 {
	ts := now.UnixMilli()
	if prev, ok := model.Int64(row.Cells[model.ColumnLastUpdated]); ok && ts <= prev {
		ts = prev + 1
	}
	return ts
}

// normalizeKeys returns obj with every key in Unicode NFC. When two keys
// collide after normalization the one already in NFC wins.
func normalizeKeys(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for _, k := range sortedKeys(obj) {
		nk := norm.NFC.String(k)
		if _, taken := out[nk]; taken && nk != k {
			continue
		}
		out[nk] = obj[k]
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func display(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func stateList() string {
	names := make([]string, len(model.States))
	for i, s := range model.States {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
