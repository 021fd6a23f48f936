package store

import (
	"context"

	"github.com/rbruinekool/singularity/internal/model"
)

// Rows returns every row of a collection in order.
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) Rows(ctx context.Context, c model.Collection) ([]model.Row, error) {
	var out []model.Row
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Rows(c)
		return err
	})
	return out, err
}

// Row returns a single row. Missing rows wrap model.ErrNotFound.
func (s *Store) Row(ctx context.Context, c model.Collection, id int64) (model.Row, error) {
	var out model.Row
	err := s.View(ctx, func(tx *Tx) error {
		var err error
		out, err = tx.Row(c, id)
		return err
	})
	return out, err
}
