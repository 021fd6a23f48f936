package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/ordering"
)

// Tx is a transaction-scoped handle passed to Update and View callbacks.
// It must not be used after the callback returns.
type Tx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
	changes  []Change
}

func (tx *Tx) record(c Change) {
	tx.changes = append(tx.changes, c)
}

func (tx *Tx) writable() error {
	if tx.readOnly {
		return ErrReadOnly
	}
	return nil
}

func checkCollection(c model.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return nil
}

// Rows returns every row of the collection in order (order ASC, id ASC).
// Returns an empty slice (not nil) if the collection is empty.
func (tx *Tx) Rows(c model.Collection) ([]model.Row, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	rows, err := tx.tx.QueryContext(tx.ctx, `
		SELECT id, ord, cells
		FROM rows
		WHERE collection = ?
	`, string(c))
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []model.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	sortRows(out)
	if out == nil {
		out = []model.Row{}
	}
	return out, nil
}

// Row returns a single row. Missing rows wrap model.ErrNotFound.
func (tx *Tx) Row(c model.Collection, id int64) (model.Row, error) {
	if err := checkCollection(c); err != nil {
		return model.Row{}, err
	}
	row := tx.tx.QueryRowContext(tx.ctx, `
		SELECT id, ord, cells
		FROM rows
		WHERE collection = ? AND id = ?
	`, string(c), id)

	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Row{}, fmt.Errorf("%s row %d: %w", c, id, model.ErrNotFound)
	}
	return r, err
}

// SetCells replaces the cells of an existing row. One CellChanged is
// recorded per column whose value differs, including removed columns.
func (tx *Tx) SetCells(c model.Collection, id int64, cells model.Cells) error {
	if err := tx.writable(); err != nil {
		return err
	}
	current, err := tx.Row(c, id)
	if err != nil {
		return err
	}

	next, err := normalizeCells(cells)
	if err != nil {
		return err
	}
	data, err := marshalCells(next)
	if err != nil {
		return err
	}

	if _, err := tx.tx.ExecContext(tx.ctx, `
		UPDATE rows SET cells = ? WHERE collection = ? AND id = ?
	`, data, string(c), id); err != nil {
		return fmt.Errorf("update cells: %w", err)
	}

	for _, col := range next.SortedKeys() {
		old, had := current.Cells[col]
		if had && reflect.DeepEqual(old, next[col]) {
			continue
		}
		tx.record(Change{Kind: CellChanged, Collection: c, RowID: id, Column: col, Old: old, New: next[col]})
	}
	for _, col := range current.Cells.SortedKeys() {
		if !next.Has(col) {
			tx.record(Change{Kind: CellChanged, Collection: c, RowID: id, Column: col, Old: current.Cells[col]})
		}
	}
	return nil
}

// MergeCells writes the given columns onto an existing row, keeping the
// others.
func (tx *Tx) MergeCells(c model.Collection, id int64, cells model.Cells) error {
	current, err := tx.Row(c, id)
	if err != nil {
		return err
	}
	next := current.Cells.Clone()
	for k, v := range cells {
		next[k] = v
	}
	return tx.SetCells(c, id, next)
}

// Ordered returns the ordering algorithms bound to the collection's
// policy, and the table view they operate on.
func (tx *Tx) Ordered(c model.Collection) (ordering.Collection[model.Cells], ordering.Table[model.Cells], error) {
	if err := checkCollection(c); err != nil {
		return ordering.Collection[model.Cells]{}, nil, err
	}
	return ordering.Collection[model.Cells]{Policy: PolicyFor(c)}, &rowTable{tx: tx, c: c}, nil
}

// PolicyFor returns the contiguity policy of a collection. The rundown
// keeps vacated slots; variables and tables stay dense.
func PolicyFor(c model.Collection) ordering.Policy {
	if c == model.Rundown {
		return ordering.Sparse
	}
	return ordering.Dense
}

// rowTable implements ordering.Table for one collection inside a Tx.
type rowTable struct {
	tx *Tx
	c  model.Collection
}

func (t *rowTable) Entries() ([]ordering.Entry, error) {
	rows, err := t.tx.tx.QueryContext(t.tx.ctx, `
		SELECT id, ord FROM rows WHERE collection = ? ORDER BY id
	`, string(t.c))
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []ordering.Entry
	for rows.Next() {
		var id int64
		var raw any
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, ordering.Entry{ID: id, Order: ordering.Coerce(raw)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return out, nil
}

func (t *rowTable) SetOrder(id, order int64) error {
	if err := t.tx.writable(); err != nil {
		return err
	}
	var raw any
	err := t.tx.tx.QueryRowContext(t.tx.ctx, `
		SELECT ord FROM rows WHERE collection = ? AND id = ?
	`, string(t.c), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s row %d: %w", t.c, id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read order: %w", err)
	}

	if _, err := t.tx.tx.ExecContext(t.tx.ctx, `
		UPDATE rows SET ord = ? WHERE collection = ? AND id = ?
	`, order, string(t.c), id); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	t.tx.record(Change{Kind: OrderChanged, Collection: t.c, RowID: id, Old: ordering.Coerce(raw), New: order})
	return nil
}

func (t *rowTable) Insert(order int64, cells model.Cells) (int64, error) {
	if err := t.tx.writable(); err != nil {
		return 0, err
	}
	var id int64
	if err := t.tx.tx.QueryRowContext(t.tx.ctx, `
		INSERT INTO row_ids (collection, last_id) VALUES (?, 1)
		ON CONFLICT (collection) DO UPDATE SET last_id = last_id + 1
		RETURNING last_id
	`, string(t.c)).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}

	next, err := normalizeCells(cells)
	if err != nil {
		return 0, err
	}
	data, err := marshalCells(next)
	if err != nil {
		return 0, err
	}

	if _, err := t.tx.tx.ExecContext(t.tx.ctx, `
		INSERT INTO rows (collection, id, ord, cells) VALUES (?, ?, ?, ?)
	`, string(t.c), id, order, data); err != nil {
		return 0, fmt.Errorf("insert row: %w", err)
	}
	t.tx.record(Change{Kind: RowInserted, Collection: t.c, RowID: id, New: next})
	return id, nil
}

func (t *rowTable) Delete(id int64) error {
	if err := t.tx.writable(); err != nil {
		return err
	}
	current, err := t.tx.Row(t.c, id)
	if err != nil {
		return err
	}
	if _, err := t.tx.tx.ExecContext(t.tx.ctx, `
		DELETE FROM rows WHERE collection = ? AND id = ?
	`, string(t.c), id); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	t.tx.record(Change{Kind: RowDeleted, Collection: t.c, RowID: id, Old: current.Cells})
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (model.Row, error) {
	var (
		r        model.Row
		rawOrder any
		data     string
	)
	if err := s.Scan(&r.ID, &rawOrder, &data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Row{}, err
		}
		return model.Row{}, fmt.Errorf("scan row: %w", err)
	}
	r.Order = ordering.Coerce(rawOrder)
	cells, err := unmarshalCells(data)
	if err != nil {
		return model.Row{}, fmt.Errorf("row %d: %w", r.ID, err)
	}
	r.Cells = cells
	return r, nil
}

// sortRows orders rows the same way the ordering package does.
func sortRows(rows []model.Row) {
	entries := make([]ordering.Entry, len(rows))
	byID := make(map[int64]model.Row, len(rows))
	for i, r := range rows {
		entries[i] = ordering.Entry{ID: r.ID, Order: r.Order}
		byID[r.ID] = r
	}
	for i, id := range ordering.Sequence(entries) {
		rows[i] = byID[id]
	}
}
