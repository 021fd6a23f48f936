package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rbruinekool/singularity/internal/connection"
	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/engine"
	"github.com/rbruinekool/singularity/internal/model"
	"github.com/rbruinekool/singularity/internal/reconcile"
	"github.com/rbruinekool/singularity/internal/store"
	"github.com/rbruinekool/singularity/internal/testutil"
)

// Harness wires a fresh store, engine, dispatcher and reconciler against
// a fake renderer, all driven by a fake wall clock.
type Harness struct {
	store      *store.Store
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	reconciler *reconcile.Reconciler
	clock      *testutil.FakeClock
	renderer   *renderer
	dir        string

	mu      sync.Mutex
	tracing bool
	step    int
	events  []TraceEvent
	notices []TraceEvent
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database and fake renderer
// 2. Execute setup steps (must succeed, not traced)
// 3. Execute flow steps, tracing events, requests and dispatch notices
// 4. Snapshot every collection
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Setup {
		if _, err := h.execute(ctx, step); err != nil {
			return nil, fmt.Errorf("setup step %d (%s): %w", i, step.Op, err)
		}
		h.settle(ctx)
	}

	for i, step := range scenario.Flow {
		h.beginStep(i + 1)
		summary, err := h.execute(ctx, step)
		h.settle(ctx)

		if err != nil {
			summary = "error=" + classify(err)
		}
		result.Steps = append(result.Steps, StepResult{Op: describeStep(step), Summary: summary})
		result.Trace = append(result.Trace, h.endStep()...)

		if msg := checkExpect(i, step, summary, err); msg != "" {
			result.AddError(msg)
		}
		slog.Debug("flow step completed", "step", i, "op", step.Op, "summary", summary)
	}

	for _, c := range model.Collections {
		rows, err := h.store.Rows(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", c, err)
		}
		result.State[c] = rows
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	start := scenario.Clock
	if start == 0 {
		start = DefaultClock
	}
	h := &Harness{
		engine:   engine.New(),
		clock:    testutil.NewFakeClock(start),
		renderer: newRenderer(),
		dir:      scenario.dir,
	}

	st, err := store.Open(":memory:", store.WithPublisher(h.engine), store.WithClock(h.clock.Now))
	if err != nil {
		h.renderer.close()
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	h.store = st

	offAir := dispatch.OffAirEmpty
	if scenario.OffAirPayload != "" {
		offAir = dispatch.OffAirPayload(scenario.OffAirPayload)
	}
	h.dispatcher = dispatch.New(st, dispatch.NewClient(h.renderer.url(), nil),
		dispatch.WithNow(h.clock.Now),
		dispatch.WithIDGenerator(testutil.NewSequentialIDs("dispatch")),
		dispatch.WithOffAirPayload(offAir),
		dispatch.WithNotify(h.notice),
	)
	h.dispatcher.Register(h.engine)
	h.engine.HandleAll(h.event)
	h.reconciler = reconcile.New(st, reconcile.WithNow(h.clock.Now))
	return h, nil
}

func (h *Harness) close() {
	h.dispatcher.Wait()
	h.renderer.close()
	h.store.Close()
}

// settle drains the engine and waits for every dispatch it started.
func (h *Harness) settle(ctx context.Context) {
	h.engine.Drain(ctx)
	h.dispatcher.Wait()
}

func (h *Harness) beginStep(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracing = true
	h.step = n
	h.events = nil
	h.notices = nil
	h.renderer.reset()
}

// endStep returns the step's trace: events in engine order, then requests
// and notices each sorted by text, since dispatches run concurrently.
func (h *Harness) endStep() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := slices.Clone(h.events)
	requests := h.renderer.take()
	slices.Sort(requests)
	for _, r := range requests {
		out = append(out, TraceEvent{Step: h.step, Kind: KindRequest, Text: r})
	}
	notices := slices.Clone(h.notices)
	slices.SortFunc(notices, func(a, b TraceEvent) int { return strings.Compare(a.Text, b.Text) })
	return append(out, notices...)
}

func (h *Harness) event(_ context.Context, ev engine.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.tracing {
		return nil
	}
	h.events = append(h.events, TraceEvent{
		Step:  h.step,
		Kind:  KindEvent,
		Type:  ev.Type.String(),
		RowID: ev.RowID,
		Text:  describeEvent(ev),
	})
	return nil
}

func (h *Harness) notice(n dispatch.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.tracing {
		return
	}
	state := string(n.State)
	if state == "" {
		state = "-"
	}
	h.notices = append(h.notices, TraceEvent{
		Step:  h.step,
		Kind:  KindDispatch,
		Type:  n.Outcome,
		RowID: n.RowID,
		Text:  fmt.Sprintf("row=%d state=%s outcome=%s", n.RowID, state, n.Outcome),
	})
}

// execute runs one step and returns a short summary of its result.
func (h *Harness) execute(ctx context.Context, s Step) (string, error) {
	c := model.Collection(s.Collection)
	switch s.Op {
	case OpConnection:
		return h.connection(ctx, s)

	case OpInsert:
		cells := model.Cells{}
		if s.AppToken != "" || s.SubCompositionID != "" {
			conn, err := h.store.Connection(ctx, s.AppToken)
			if err != nil {
				return "", err
			}
			if cells, err = conn.ItemCells(s.SubCompositionID); err != nil {
				return "", err
			}
		}
		for k, v := range s.Cells {
			cells[k] = v
		}
		id, err := h.store.InsertAtFront(ctx, c, cells)
		return fmt.Sprintf("id=%d", id), err

	case OpInsertAfter:
		id, err := h.store.InsertAfter(ctx, c, s.Row, model.Cells(s.Cells))
		return fmt.Sprintf("id=%d", id), err

	case OpDuplicate:
		id, err := h.store.Duplicate(ctx, c, s.Row)
		return fmt.Sprintf("id=%d", id), err

	case OpMove:
		return "ok", h.store.Move(ctx, c, s.From, s.To)

	case OpDelete:
		return "ok", h.store.Delete(ctx, c, s.Row)

	case OpRenumber:
		return "ok", h.store.Renumber(ctx, c)

	case OpSet:
		return "ok", h.store.MergeCells(ctx, c, s.Row, model.Cells(s.Cells))

	case OpPatch:
		body, err := json.Marshal(s.Body)
		if err != nil {
			return "", fmt.Errorf("encode patch body: %w", err)
		}
		res, err := h.reconciler.Apply(ctx, body)
		return fmt.Sprintf("updated=%d", res.Updated), err

	case OpPush:
		return "ok", h.dispatcher.Push(ctx, s.Row, dispatch.PushOptions{IncludeState: s.State})

	case OpAdvance:
		h.clock.Advance(time.Duration(s.Ms) * time.Millisecond)
		return fmt.Sprintf("now=%d", h.clock.Now().UnixMilli()), nil

	case OpRenderer:
		h.renderer.respondWith(s.Status)
		return fmt.Sprintf("status=%d", s.Status), nil
	}
	return "", fmt.Errorf("unknown op %q", s.Op)
}

func (h *Harness) connection(ctx context.Context, s Step) (string, error) {
	if s.Path != "" {
		path := s.Path
		if !filepath.IsAbs(path) && h.dir != "" {
			path = filepath.Join(h.dir, path)
		}
		conn, err := connection.Import(ctx, h.store, path)
		if err != nil {
			return "", err
		}
		return "token=" + conn.AppToken, nil
	}

	raw, err := json.Marshal(s.Model)
	if err != nil {
		return "", fmt.Errorf("encode connection model: %w", err)
	}
	if s.Model == nil {
		raw = []byte("{}")
	}
	err = h.store.PutConnection(ctx, model.Connection{AppToken: s.AppToken, Label: s.Label, Model: raw})
	return "token=" + s.AppToken, err
}

// classify maps a step error to the class scenarios expect.
func classify(err error) string {
	switch {
	case errors.Is(err, reconcile.ErrInvalidJSON):
		return ErrClassInvalidJSON
	case reconcile.IsValidation(err):
		return ErrClassValidation
	case dispatch.IsStatusError(err), dispatch.IsTimeout(err):
		return ErrClassRemote
	case store.IsNotFound(err):
		return ErrClassNotFound
	default:
		return ErrClassOther
	}
}

func checkExpect(i int, s Step, summary string, err error) string {
	want := ""
	if s.Expect != nil {
		want = s.Expect.Error
	}
	got := ""
	if err != nil {
		got = classify(err)
	}
	if want != got {
		if err != nil {
			return fmt.Sprintf("flow[%d] %s: expected error %q, got %q (%v)", i, s.Op, want, got, err)
		}
		return fmt.Sprintf("flow[%d] %s: expected error %q, got success (%s)", i, s.Op, want, summary)
	}
	if s.Expect != nil && s.Expect.ID != 0 {
		if wantID := fmt.Sprintf("id=%d", s.Expect.ID); summary != wantID {
			return fmt.Sprintf("flow[%d] %s: expected %s, got %s", i, s.Op, wantID, summary)
		}
	}
	return ""
}

// renderer is a fake remote renderer recording every control request.
type renderer struct {
	srv *httptest.Server

	mu       sync.Mutex
	status   int
	requests []string
}

func newRenderer() *renderer {
	r := &renderer{status: http.StatusOK}
	r.srv = httptest.NewServer(http.HandlerFunc(r.serve))
	return r
}

func (r *renderer) serve(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	text := req.Method + " " + req.URL.Path + " " + describeControl(body)

	r.mu.Lock()
	r.requests = append(r.requests, text)
	status := r.status
	r.mu.Unlock()

	w.WriteHeader(status)
}

func (r *renderer) url() string { return r.srv.URL }

func (r *renderer) close() { r.srv.Close() }

func (r *renderer) respondWith(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
}

func (r *renderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}

func (r *renderer) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.requests
	r.requests = nil
	return out
}

// describeControl renders a control body as "<subcomposition> <state> <payload>".
func describeControl(body []byte) string {
	var items []struct {
		SubCompositionID string                     `json:"subCompositionId"`
		State            string                     `json:"state"`
		Payload          map[string]json.RawMessage `json:"payload"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&items); err != nil {
		return "<undecodable body>"
	}
	parts := make([]string, len(items))
	for i, it := range items {
		state := it.State
		if state == "" {
			state = "-"
		}
		payload, _ := json.Marshal(it.Payload)
		if it.Payload == nil {
			payload = []byte("{}")
		}
		parts[i] = fmt.Sprintf("%s %s %s", it.SubCompositionID, state, payload)
	}
	return strings.Join(parts, "; ")
}
