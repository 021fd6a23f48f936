package store

import (
	"context"
	"fmt"

	"github.com/rbruinekool/singularity/internal/model"
)

// InsertAtFront adds a row at order 0, shifting every existing row of the
// collection down by one, in a single transaction. Returns the new id.
func (s *Store) InsertAtFront(ctx context.Context, c model.Collection, cells model.Cells) (int64, error) {
	var id int64
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		coll, table, err := tx.Ordered(c)
		if err != nil {
			return err
		}
		id, err = coll.InsertAtFront(table, cells)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert at front: %w", err)
	}
	return id, nil
}

// InsertAfter adds a row immediately after sourceID. Returns the new id.
func (s *Store) InsertAfter(ctx context.Context, c model.Collection, sourceID int64, cells model.Cells) (int64, error) {
	var id int64
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		coll, table, err := tx.Ordered(c)
		if err != nil {
			return err
		}
		id, err = coll.InsertAfter(table, sourceID, cells)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert after %d: %w", sourceID, err)
	}
	return id, nil
}

// Duplicate copies a row and inserts the copy right after it. A copied
// animation state is reset to Out1 so the duplicate never starts on air.
func (s *Store) Duplicate(ctx context.Context, c model.Collection, id int64) (int64, error) {
	var newID int64
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		src, err := tx.Row(c, id)
		if err != nil {
			return err
		}
		cells := src.Cells.Clone()
		if cells.Has(model.ColumnStatus) {
			cells[model.ColumnStatus] = string(model.StateOut1)
		}

		coll, table, err := tx.Ordered(c)
		if err != nil {
			return err
		}
		newID, err = coll.InsertAfter(table, id, cells)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("duplicate %d: %w", id, err)
	}
	return newID, nil
}

// Move places fromID next to toID and renumbers the collection.
func (s *Store) Move(ctx context.Context, c model.Collection, fromID, toID int64) error {
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		coll, table, err := tx.Ordered(c)
		if err != nil {
			return err
		}
		return coll.Move(table, fromID, toID)
	})
	if err != nil {
		return fmt.Errorf("move %d onto %d: %w", fromID, toID, err)
	}
	return nil
}

// Delete removes a row, renumbering afterwards for dense collections.
func (s *Store) Delete(ctx context.Context, c model.Collection, id int64) error {
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		coll, table, err := tx.Ordered(c)
		if err != nil {
			return err
		}
		return coll.Delete(table, id)
	})
	if err != nil {
		return fmt.Errorf("delete %d: %w", id, err)
	}
	return nil
}

// Renumber compacts a collection's orders to 0..n-1.
func (s *Store) Renumber(ctx context.Context, c model.Collection) error {
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		coll, table, err := tx.Ordered(c)
		if err != nil {
			return err
		}
		return coll.Renumber(table)
	})
	if err != nil {
		return fmt.Errorf("renumber %s: %w", c, err)
	}
	return nil
}

// MergeCells writes columns onto an existing row, keeping the others.
// Writing the status column here is what drives animation dispatch.
func (s *Store) MergeCells(ctx context.Context, c model.Collection, id int64, cells model.Cells) error {
	err := s.Update(ctx, OriginOperator, func(tx *Tx) error {
		return tx.MergeCells(c, id, cells)
	})
	if err != nil {
		return fmt.Errorf("set cells on %d: %w", id, err)
	}
	return nil
}
