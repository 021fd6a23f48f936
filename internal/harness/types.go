package harness

import "github.com/rbruinekool/singularity/internal/model"

// Trace entry kinds.
const (
	KindEvent    = "event"
	KindRequest  = "request"
	KindDispatch = "dispatch"
)

// TraceEvent is one observable effect of a flow step: an engine event, an
// outbound request seen by the fake renderer, or a dispatch notice.
type TraceEvent struct {
	Step int    `json:"step"` // 1-based flow step index
	Kind string `json:"kind"`
	// Type is the engine event type for events, and the outcome for
	// dispatch notices.
	Type  string `json:"type"`
	RowID int64  `json:"row_id,omitempty"`
	Text  string `json:"text"`
}

// StepResult records what a flow step returned.
type StepResult struct {
	Op      string `json:"op"`
	Summary string `json:"summary"`
}

// Result is what a scenario run produced. Trace covers flow steps only;
// setup steps leave no trace. State is every collection after the flow.
type Result struct {
	Pass   bool                             `json:"pass"`
	Steps  []StepResult                     `json:"steps"`
	Trace  []TraceEvent                     `json:"trace"`
	Errors []string                         `json:"errors,omitempty"`
	State  map[model.Collection][]model.Row `json:"state"`
}

func NewResult() *Result {
	return &Result{
		Pass:  true,
		Steps: []StepResult{},
		Trace: []TraceEvent{},
		State: map[model.Collection][]model.Row{},
	}
}

// AddError records a failed expectation.
func (r *Result) AddError(err string) {
	r.Pass = false
	r.Errors = append(r.Errors, err)
}

// Dispatches returns the dispatch notices in the trace.
func (r *Result) Dispatches() []TraceEvent {
	var out []TraceEvent
	for _, e := range r.Trace {
		if e.Kind == KindDispatch {
			out = append(out, e)
		}
	}
	return out
}
