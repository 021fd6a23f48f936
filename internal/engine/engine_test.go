package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/store"
)

func setupTestStore(t *testing.T, e *Engine) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithPublisher(e))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// collect registers a HandleAll handler and returns the received events.
func collect(e *Engine) func() []Event {
	var mu sync.Mutex
	var got []Event
	e.HandleAll(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})
	return func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), got...)
	}
}

func TestEngine_New(t *testing.T) {
	e := New()

	assert.NotNil(t, e.seq)
	assert.NotNil(t, e.queue)
	assert.Equal(t, 0, e.QueueLen())
}

func TestEngine_EnqueueStampsSequence(t *testing.T) {
	e := New()
	e.seq = NewSequence(41)
	got := collect(e)

	e.Enqueue(Event{Type: EventRowInserted, RowID: 1})
	e.Enqueue(Event{Type: EventRowInserted, RowID: 2})
	assert.Equal(t, 2, e.Drain(context.Background()))

	events := got()
	require.Len(t, events, 2)
	assert.Equal(t, int64(42), events[0].Seq)
	assert.Equal(t, int64(43), events[1].Seq)
}

func TestEngine_RoutesByType(t *testing.T) {
	e := New()
	var transitions, deletes int
	e.Handle(EventStateTransitioned, func(context.Context, Event) error {
		transitions++
		return nil
	})
	e.Handle(EventRowDeleted, func(context.Context, Event) error {
		deletes++
		return nil
	})

	e.Enqueue(Event{Type: EventStateTransitioned})
	e.Enqueue(Event{Type: EventStateTransitioned})
	e.Enqueue(Event{Type: EventRowDeleted})
	e.Drain(context.Background())

	assert.Equal(t, 2, transitions)
	assert.Equal(t, 1, deletes)
}

func TestEngine_HandlerErrorDoesNotStopProcessing(t *testing.T) {
	e := New()
	e.Handle(EventCellsChanged, func(context.Context, Event) error {
		return errors.New("boom")
	})
	e.Handle(EventCellsChanged, func(context.Context, Event) error {
		panic("broken handler")
	})
	got := collect(e)

	e.Enqueue(Event{Type: EventCellsChanged, RowID: 1})
	e.Enqueue(Event{Type: EventCellsChanged, RowID: 2})
	e.Drain(context.Background())

	assert.Len(t, got(), 2)
}

func TestEngine_StoreCommitPublishesEvents(t *testing.T) {
	e := New()
	got := collect(e)
	s := setupTestStore(t, e)
	ctx := context.Background()

	id, err := s.InsertAtFront(ctx, model.Rundown, model.Cells{"status": "Out1"})
	require.NoError(t, err)
	require.NoError(t, s.MergeCells(ctx, model.Rundown, id, model.Cells{"status": "In"}))
	e.Drain(ctx)

	var types []EventType
	for _, ev := range got() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventRowInserted, EventStateTransitioned, EventCellsChanged}, types)
}

func TestEngine_RolledBackWritePublishesNothing(t *testing.T) {
	e := New()
	s := setupTestStore(t, e)
	ctx := context.Background()

	err := s.Update(ctx, store.OriginOperator, func(tx *store.Tx) error {
		coll, table, err := tx.Ordered(model.Rundown)
		if err != nil {
			return err
		}
		if _, err := coll.InsertAtFront(table, model.Cells{}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	assert.Equal(t, 0, e.QueueLen())
}

func TestEngine_Run_StopsOnCancel(t *testing.T) {
	e := New()
	got := collect(e)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Enqueue(Event{Type: EventRowInserted, RowID: 1})
	require.Eventually(t, func() bool { return len(got()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, e.Enqueue(Event{Type: EventRowInserted}), "enqueue after stop should fail")
}

func TestEngine_Run_StopsOnStop(t *testing.T) {
	e := New()

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	e.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestIsHandlerPanic(t *testing.T) {
	err := callHandler(context.Background(), func(context.Context, Event) error {
		panic("x")
	}, Event{})

	assert.True(t, IsHandlerPanic(err))
	assert.False(t, IsHandlerPanic(errors.New("plain")))
}
