package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rbruinekool/singularity/internal/model"
)

// createTestStore creates a new store in a temporary directory for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fixedNow returns a clock frozen at the given unix millisecond.
func fixedNow(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

// recorder collects published batches.
type recorder struct {
	mu      sync.Mutex
	batches []Batch
}

func (r *recorder) Publish(b Batch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, b)
}

func (r *recorder) all() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Batch, len(r.batches))
	copy(out, r.batches)
	return out
}

// seedRows inserts rows at the front in reverse so the result reads in the
// given order, and returns their ids in that order.
func seedRows(t *testing.T, s *Store, c model.Collection, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, len(names))
	for i := len(names) - 1; i >= 0; i-- {
		id, err := s.InsertAtFront(context.Background(), c, model.Cells{model.ColumnName: names[i]})
		if err != nil {
			t.Fatalf("InsertAtFront(%q) failed: %v", names[i], err)
		}
		ids[i] = id
	}
	return ids
}

// names returns the name column of each row in order.
func names(t *testing.T, s *Store, c model.Collection) []string {
	t.Helper()
	rows, err := s.Rows(context.Background(), c)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i], _ = r.Cells.String(model.ColumnName)
	}
	return out
}

// orders returns the order value of each row in order.
func orders(t *testing.T, s *Store, c model.Collection) []int64 {
	t.Helper()
	rows, err := s.Rows(context.Background(), c)
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.Order
	}
	return out
}
