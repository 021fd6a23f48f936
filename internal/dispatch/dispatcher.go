package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rbruinekool/singularity/internal/engine"
	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/payload"
)

// DefaultTimeout bounds each outbound call.
const DefaultTimeout = 10 * time.Second

// OffAirPayload selects what an Out1/Out2 transition sends as payload.
type OffAirPayload string

const (
	// OffAirEmpty sends an empty payload when taking an item off air.
	OffAirEmpty OffAirPayload = "empty"
	// OffAirResolved sends the resolved field values for every state.
	OffAirResolved OffAirPayload = "resolved"
)

// Valid reports whether p is a known policy.
func (p OffAirPayload) Valid() bool {
	return p == OffAirEmpty || p == OffAirResolved
}

// Store is the read access the dispatcher needs.
type Store interface {
	Row(ctx context.Context, c model.Collection, id int64) (model.Row, error)
	Connection(ctx context.Context, appToken string) (model.Connection, error)
}

// Notice reports the result of one dispatch attempt.
type Notice struct {
	DispatchID       string        `json:"dispatchId"`
	RowID            int64         `json:"rowId"`
	AppToken         string        `json:"appToken,omitempty"`
	SubCompositionID string        `json:"subCompositionId,omitempty"`
	State            model.State   `json:"state,omitempty"`
	Outcome          string        `json:"outcome"`
	Error            string        `json:"error,omitempty"`
	Duration         time.Duration `json:"durationNs"`
}

// PushOptions controls a direct push.
type PushOptions struct {
	// IncludeState sends the row's current state alongside the payload.
	IncludeState bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.timeout = d
		}
	}
}

// WithOffAirPayload sets the off-air payload policy.
func WithOffAirPayload(p OffAirPayload) Option {
	return func(x *Dispatcher) {
		x.offAir = p
	}
}

// WithNow overrides the wall clock used for timer resolution.
func WithNow(now func() time.Time) Option {
	return func(x *Dispatcher) {
		x.now = now
	}
}

// WithIDGenerator overrides the dispatch id generator.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(x *Dispatcher) {
		x.ids = g
	}
}

// WithNotify registers a callback invoked after every attempt. It runs on
// the dispatching goroutine and must not block.
func WithNotify(fn func(Notice)) Option {
	return func(x *Dispatcher) {
		x.notify = fn
	}
}

// Dispatcher turns animation state transitions into outbound calls.
type Dispatcher struct {
	store   Store
	client  *Client
	timeout time.Duration
	offAir  OffAirPayload
	now     func() time.Time
	ids     engine.IDGenerator
	notify  func(Notice)

	wg sync.WaitGroup
}

// New creates a Dispatcher reading from s and calling the renderer via c.
func New(s Store, c *Client, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   s,
		client:  c,
		timeout: DefaultTimeout,
		offAir:  OffAirEmpty,
		now:     time.Now,
		ids:     engine.UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register subscribes the dispatcher to state transitions.
func (d *Dispatcher) Register(e *engine.Engine) {
	e.Handle(engine.EventStateTransitioned, d.HandleTransition)
}

// HandleTransition is the engine handler for StateTransitioned. It returns
// immediately; the outbound call runs on its own goroutine.
func (d *Dispatcher) HandleTransition(ctx context.Context, ev engine.Event) error {
	if ev.Collection != model.Rundown {
		return nil
	}
	state, ok := model.ParseState(ev.New)
	if !ok {
		slog.Debug("ignoring unknown animation state",
			"row_id", ev.RowID,
			"state", fmt.Sprint(ev.New),
		)
		return nil
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.transition(ctx, ev.RowID, state)
	}()
	return nil
}

// Wait blocks until every in-flight transition call has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) transition(ctx context.Context, rowID int64, state model.State) {
	row, err := d.store.Row(ctx, model.Rundown, rowID)
	if err != nil {
		slog.Error("dispatch aborted: row unavailable", "row_id", rowID, "error", err)
		return
	}
	includePayload := state.OnAir() || d.offAir == OffAirResolved
	// Errors are already logged, counted and reported by dispatch.
	_ = d.dispatch(ctx, row, state, includePayload)
}

// Push sends the row's resolved payload to the renderer and waits for the
// response. With IncludeState the row's current state is sent too; a row
// without a valid state is pushed without one.
func (d *Dispatcher) Push(ctx context.Context, rowID int64, opts PushOptions) error {
	row, err := d.store.Row(ctx, model.Rundown, rowID)
	if err != nil {
		return fmt.Errorf("push row %d: %w", rowID, err)
	}
	var state model.State
	if opts.IncludeState {
		if st, ok := row.State(); ok {
			state = st
		}
	}
	return d.dispatch(ctx, row, state, true)
}

// dispatch performs one attempt. An empty state is omitted from the body;
// includePayload=false sends an empty payload.
func (d *Dispatcher) dispatch(ctx context.Context, row model.Row, state model.State, includePayload bool) error {
	n := Notice{DispatchID: d.ids.Generate(), RowID: row.ID, State: state}

	subcomp, okSub := row.SubCompositionID()
	token, okTok := row.AppToken()
	n.SubCompositionID, n.AppToken = subcomp, token
	if !okSub || !okTok {
		err := fmt.Errorf("row %d has no subcomposition or connection: %w", row.ID, model.ErrNotFound)
		slog.Error("dispatch skipped", "dispatch_id", n.DispatchID, "row_id", row.ID, "error", err)
		d.finish(n, OutcomeSkipped, err)
		return err
	}

	conn, err := d.store.Connection(ctx, token)
	if err != nil {
		slog.Error("dispatch skipped", "dispatch_id", n.DispatchID, "row_id", row.ID, "app_token", token, "error", err)
		d.finish(n, OutcomeSkipped, err)
		return err
	}

	body := map[string]any{}
	if includePayload {
		body = d.resolve(row, conn, subcomp)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	timer := prometheus.NewTimer(dispatchDuration)
	dispatchInFlight.Inc()
	err = d.client.Control(callCtx, token, []ControlItem{{
		SubCompositionID: subcomp,
		State:            string(state),
		Payload:          body,
	}})
	dispatchInFlight.Dec()
	timer.ObserveDuration()
	n.Duration = time.Since(start)

	outcome := classify(err)
	switch outcome {
	case OutcomeOK:
		slog.Info("dispatched",
			"dispatch_id", n.DispatchID,
			"row_id", row.ID,
			"app_token", token,
			"subcomposition", subcomp,
			"state", string(state),
			"duration", n.Duration,
		)
	case OutcomeTimeout:
		slog.Debug("dispatch timed out",
			"dispatch_id", n.DispatchID,
			"row_id", row.ID,
			"error", err,
		)
		err = fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		slog.Error("dispatch failed",
			"dispatch_id", n.DispatchID,
			"row_id", row.ID,
			"app_token", token,
			"outcome", outcome,
			"error", err,
		)
	}
	d.finish(n, outcome, err)
	return err
}

// resolve builds the payload for row from conn's schema. An unreadable
// schema or unknown subcomposition yields an empty payload; the call still
// goes out.
func (d *Dispatcher) resolve(row model.Row, conn model.Connection, subcomp string) map[string]any {
	schema, err := conn.Schema()
	if err != nil {
		slog.Error("schema unreadable, sending empty payload", "row_id", row.ID, "app_token", conn.AppToken, "error", err)
		return map[string]any{}
	}
	fields, ok := schema.Fields(subcomp)
	if !ok {
		slog.Warn("subcomposition not in schema, sending empty payload", "row_id", row.ID, "subcomposition", subcomp)
		return map[string]any{}
	}
	return payload.Resolve(row.Cells, fields, d.now())
}

func (d *Dispatcher) finish(n Notice, outcome string, err error) {
	dispatchTotal.WithLabelValues(outcome).Inc()
	n.Outcome = outcome
	if err != nil {
		n.Error = err.Error()
	}
	if d.notify != nil {
		d.notify(n)
	}
}
