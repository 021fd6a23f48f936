package harness

import (
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/rbruinekool/singularity/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step %d %s: %s\n", i+1, event.Step, event.Kind, event.Text)
		}
	}
	return buf.String()
}

func events(trace []TraceEvent) []TraceEvent {
	var out []TraceEvent
	for _, e := range trace {
		if e.Kind == KindEvent {
			out = append(out, e)
		}
	}
	return out
}

// assertEventContains checks that an event of the given type, on the
// given row when set, was traced.
func assertEventContains(trace []TraceEvent, a Assertion) error {
	for _, e := range events(trace) {
		if e.Type == a.Event && (a.Row == 0 || e.RowID == a.Row) {
			return nil
		}
	}
	want := a.Event
	if a.Row != 0 {
		want = fmt.Sprintf("%s on row %d", a.Event, a.Row)
	}
	return &AssertionError{
		Type:     AssertEventContains,
		Expected: want,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertEventOrder checks that event types appear in the given order.
// They need not be consecutive.
func assertEventOrder(trace []TraceEvent, a Assertion) error {
	evs := events(trace)
	pos := 0
	for _, want := range a.Events {
		idx := slices.IndexFunc(evs[pos:], func(e TraceEvent) bool { return e.Type == want })
		if idx < 0 {
			return &AssertionError{
				Type:     AssertEventOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%s missing after position %d", want, pos),
				Trace:    trace,
			}
		}
		pos += idx + 1
	}
	return nil
}

// assertEventCount checks that the event type appears exactly Count times.
func assertEventCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, e := range events(trace) {
		if e.Type == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertDispatchCount checks the number of dispatch notices, optionally
// restricted to one outcome.
func assertDispatchCount(result *Result, a Assertion) error {
	count := 0
	for _, d := range result.Dispatches() {
		if a.Outcome == "" || d.Type == a.Outcome {
			count++
		}
	}
	if count != a.Count {
		what := "dispatches"
		if a.Outcome != "" {
			what = fmt.Sprintf("dispatches with outcome %s", a.Outcome)
		}
		return &AssertionError{
			Type:     AssertDispatchCount,
			Expected: fmt.Sprintf("%d %s", a.Count, what),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertFinalState checks that a row holds the expected cells, using
// subset semantics.
func assertFinalState(result *Result, a Assertion) error {
	c := model.Collection(a.Collection)
	idx := slices.IndexFunc(result.State[c], func(r model.Row) bool { return r.ID == a.Row })
	if idx < 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row %d in %s", a.Row, c),
			Actual:   "row not found",
		}
	}
	row := result.State[c][idx]

	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := a.Expect[key]
		got, exists := row.Cells[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("cell %q to exist on %s row %d", key, c, a.Row),
				Actual:   fmt.Sprintf("cells present: %v", row.Cells.SortedKeys()),
			}
		}
		if !cellsEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("cell %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("cell %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

// assertOrder checks the exact row sequence of a collection.
func assertOrder(result *Result, a Assertion) error {
	c := model.Collection(a.Collection)
	got := make([]int64, 0, len(result.State[c]))
	for _, r := range result.State[c] {
		got = append(got, r.ID)
	}
	want := a.Rows
	if want == nil {
		want = []int64{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     AssertOrder,
			Expected: fmt.Sprintf("%s rows %v", c, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// cellsEqual compares a YAML-decoded expectation with a stored cell.
// Stored integers come back as int64 while YAML yields int.
func cellsEqual(want, got any) bool {
	if wn, ok := model.Int64(want); ok {
		if _, isFloat := want.(float64); !isFloat {
			gn, ok := got.(int64)
			return ok && gn == wn
		}
	}
	return reflect.DeepEqual(want, got)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEventContains:
			err = assertEventContains(result.Trace, a)
		case AssertEventOrder:
			err = assertEventOrder(result.Trace, a)
		case AssertEventCount:
			err = assertEventCount(result.Trace, a)
		case AssertDispatchCount:
			err = assertDispatchCount(result, a)
		case AssertFinalState:
			err = assertFinalState(result, a)
		case AssertOrder:
			err = assertOrder(result, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
