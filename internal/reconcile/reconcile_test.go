package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/store"
)

type recorder struct {
	batches []store.Batch
}

func (r *recorder) Publish(b store.Batch) {
	r.batches = append(r.batches, b)
}

func setup(t *testing.T, nowMS int64) (*store.Store, *Reconciler, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithPublisher(rec))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	r := New(s, WithNow(func() time.Time { return time.UnixMilli(nowMS) }))
	return s, r, rec
}

func addRow(t *testing.T, s *store.Store, cells model.Cells) int64 {
	t.Helper()
	id, err := s.InsertAtFront(context.Background(), model.Rundown, cells)
	require.NoError(t, err)
	return id
}

func row(t *testing.T, s *store.Store, id int64) model.Row {
	t.Helper()
	r, err := s.Row(context.Background(), model.Rundown, id)
	require.NoError(t, err)
	return r
}

func TestApply_PayloadAndAliases(t *testing.T) {
	s, r, _ := setup(t, 5_000)
	id := addRow(t, s, model.Cells{
		model.ColumnStatus:    "Out1",
		model.ColumnName:      "Old name",
		model.ColumnSubcompID: "sc-1",
	})

	res, err := r.Apply(context.Background(), []byte(`[
		{"id": 1, "state": "In", "rundownName": "New name",
		 "subCompositionName": "ignored, no template column",
		 "payload": {"title": "Hello", "count": 3, "live": true, "nested": {"x": 1}, "list": [1]}}
	]`))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []int64{id}, res.RowIDs)
	assert.Equal(t, "Updated 1 item", res.Message())

	got := row(t, s, id)
	assert.Equal(t, "In", got.Cells[model.ColumnStatus])
	assert.Equal(t, "New name", got.Cells[model.ColumnName])
	assert.Equal(t, "Hello", got.Cells["title"])
	assert.Equal(t, int64(3), got.Cells["count"])
	assert.Equal(t, true, got.Cells["live"])
	assert.False(t, got.Cells.Has("nested"))
	assert.False(t, got.Cells.Has("list"))
	assert.False(t, got.Cells.Has(model.ColumnTemplate))
	assert.Equal(t, int64(5_000), got.Cells[model.ColumnLastUpdated])
}

func TestApply_PublishesPatchOrigin(t *testing.T) {
	s, r, rec := setup(t, 1)
	addRow(t, s, model.Cells{model.ColumnStatus: "Out1"})
	rec.batches = nil

	_, err := r.Apply(context.Background(), []byte(`[{"id":1,"state":"In"}]`))
	require.NoError(t, err)

	require.Len(t, rec.batches, 1)
	assert.Equal(t, store.OriginPatch, rec.batches[0].Origin)
}

func TestApply_LastUpdatedStrictlyIncreases(t *testing.T) {
	s, r, _ := setup(t, 1_000)
	id := addRow(t, s, model.Cells{model.ColumnLastUpdated: int64(9_999)})

	_, err := r.Apply(context.Background(), []byte(`[{"id":1}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), row(t, s, id).Cells[model.ColumnLastUpdated])

	_, err = r.Apply(context.Background(), []byte(`[{"id":1}]`))
	require.NoError(t, err)
	assert.Equal(t, int64(10_001), row(t, s, id).Cells[model.ColumnLastUpdated])
}

func TestApply_OneInvalidItemRejectsBatch(t *testing.T) {
	s, r, rec := setup(t, 1)
	a := addRow(t, s, model.Cells{"title": "A"})
	addRow(t, s, model.Cells{"title": "B"})
	rec.batches = nil

	_, err := r.Apply(context.Background(), []byte(`[
		{"id": 1, "payload": {"title": "changed"}},
		{"id": 99, "payload": {"title": "nope"}},
		{"id": 2, "payload": {"title": "changed"}}
	]`))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{"Row with id 99 not found"}, ve.Details)
	assert.True(t, IsValidation(err))
	assert.Equal(t, "A", row(t, s, a).Cells["title"])
	assert.Empty(t, rec.batches)
}

func TestApply_BogusState(t *testing.T) {
	s, r, _ := setup(t, 1)
	id := addRow(t, s, model.Cells{model.ColumnStatus: "Out1"})

	_, err := r.Apply(context.Background(), []byte(`[{"id":1,"state":"Bogus"}]`))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Details, 1)
	assert.Equal(t, `Invalid state "Bogus" for row 1: must be one of Out1, In, Out2`, ve.Details[0])
	assert.Equal(t, "Out1", row(t, s, id).Cells[model.ColumnStatus])
}

func TestApply_StatusColumnOnlyTakesValidStates(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"payload status", `[{"id":1,"payload":{"status":"Bogus","title":"x"}}]`},
		{"literal status key", `[{"id":1,"status":"Bogus"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r, rec := setup(t, 1)
			id := addRow(t, s, model.Cells{model.ColumnStatus: "Out1", "title": "A"})
			rec.batches = nil

			_, err := r.Apply(context.Background(), []byte(tt.body))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, []string{`Invalid state "Bogus" for row 1: must be one of Out1, In, Out2`}, ve.Details)
			cells := row(t, s, id).Cells
			assert.Equal(t, "Out1", cells[model.ColumnStatus])
			assert.Equal(t, "A", cells["title"])
			assert.NotContains(t, cells, model.ColumnLastUpdated)
			assert.Empty(t, rec.batches)
		})
	}
}

func TestApply_PayloadStatusTransitions(t *testing.T) {
	s, r, _ := setup(t, 1)
	id := addRow(t, s, model.Cells{model.ColumnStatus: "Out1"})

	_, err := r.Apply(context.Background(), []byte(`[{"id":1,"payload":{"status":"In","state":"kept as a cell"}}]`))
	require.NoError(t, err)

	cells := row(t, s, id).Cells
	assert.Equal(t, "In", cells[model.ColumnStatus])
	assert.Equal(t, "kept as a cell", cells[model.ColumnState])
}

func TestApply_CollectsEveryProblem(t *testing.T) {
	s, r, _ := setup(t, 1)
	addRow(t, s, model.Cells{})

	_, err := r.Apply(context.Background(), []byte(`[
		"not an object",
		{"name": "no id"},
		{"id": "1"},
		{"id": 1.5},
		{"id": 1, "state": 3}
	]`))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{
		"Item at index 0 must be an object",
		"Item at index 1 must have a numeric id",
		"Item at index 2 must have a numeric id",
		"Row with id 1.5 not found",
		"Invalid state 3 for row 1: must be one of Out1, In, Out2",
	}, ve.Details)
}

func TestApply_NotAnArray(t *testing.T) {
	_, r, _ := setup(t, 1)

	_, err := r.Apply(context.Background(), []byte(`{"id":1}`))

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"Request body must be an array of patch items"}, ve.Details)
}

func TestApply_InvalidJSON(t *testing.T) {
	_, r, _ := setup(t, 1)

	for _, body := range []string{``, `[{"id":`, `[] x`} {
		_, err := r.Apply(context.Background(), []byte(body))
		assert.ErrorIs(t, err, ErrInvalidJSON, "body %q", body)
	}
}

func TestApply_IntegralFloatID(t *testing.T) {
	s, r, _ := setup(t, 1)
	id := addRow(t, s, model.Cells{})

	_, err := r.Apply(context.Background(), []byte(`[{"id":1.0,"payload":{"x":"y"}}]`))
	require.NoError(t, err)
	assert.Equal(t, "y", row(t, s, id).Cells["x"])
}

func TestApply_EmptyBatch(t *testing.T) {
	_, r, rec := setup(t, 1)

	res, err := r.Apply(context.Background(), []byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)
	assert.Empty(t, rec.batches)
}

func TestApply_NFCKeys(t *testing.T) {
	s, r, _ := setup(t, 1)
	id := addRow(t, s, model.Cells{})

	// "e" + combining acute accent normalizes to the precomposed form.
	_, err := r.Apply(context.Background(), []byte(`[{"id":1,"payload":{"cafe\u0301":"x"}}]`))
	require.NoError(t, err)
	got := row(t, s, id)
	assert.Equal(t, "x", got.Cells["caf\u00e9"])
	assert.False(t, got.Cells.Has("cafe\u0301"))
}

func TestApply_RowDeletedInsideTransactionAbortsBatch(t *testing.T) {
	s, r, _ := setup(t, 1)
	a := addRow(t, s, model.Cells{"title": "A"})
	b := addRow(t, s, model.Cells{"title": "B"})

	items, details := validate([]any{
		map[string]any{"id": jsonNumber(a)},
		map[string]any{"id": jsonNumber(b)},
	}, map[int64]model.Row{a: {ID: a}, b: {ID: b}})
	require.Empty(t, details)
	require.NoError(t, s.Delete(context.Background(), model.Rundown, b))

	err := s.Update(context.Background(), store.OriginPatch, func(tx *store.Tx) error {
		for _, it := range items {
			current, err := tx.Row(model.Rundown, it.id)
			if err != nil {
				return err
			}
			if err := tx.MergeCells(model.Rundown, it.id, r.updates(current, it.fields)); err != nil {
				return err
			}
		}
		return nil
	})

	var txErr *store.TxError
	require.ErrorAs(t, err, &txErr)
	assert.True(t, store.IsNotFound(err))
	assert.False(t, row(t, s, a).Cells.Has(model.ColumnLastUpdated), "first item must be rolled back")
}

func TestNextTimestamp(t *testing.T) {
	now := time.UnixMilli(100)
	assert.Equal(t, int64(100), nextTimestamp(model.Row{Cells: model.Cells{}}, now))
	assert.Equal(t, int64(100), nextTimestamp(model.Row{Cells: model.Cells{"lastUpdated": int64(50)}}, now))
	assert.Equal(t, int64(201), nextTimestamp(model.Row{Cells: model.Cells{"lastUpdated": int64(200)}}, now))
	assert.Equal(t, int64(100), nextTimestamp(model.Row{Cells: model.Cells{"lastUpdated": "junk"}}, now))
}

func jsonNumber(id int64) any {
	return json.Number(strconv.FormatInt(id, 10))
}
