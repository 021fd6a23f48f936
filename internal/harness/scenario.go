package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rbruinekool/singularity/internal/dispatch"
	"github.com/rbruinekool/singularity/internal/model"
)

// DefaultClock is the fake wall clock start, in unix milliseconds, when a
// scenario does not set one.
const DefaultClock = 1_000_000

// Scenario describes a rundown session: setup steps that build the
// initial state, flow steps whose effects are traced, and assertions over
// the trace and the final collections.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock is the fake wall clock start in unix milliseconds.
	// Zero means DefaultClock.
	Clock int64 `yaml:"clock,omitempty"`

	// OffAirPayload selects what Out1/Out2 dispatches carry ("empty" or
	// "resolved"). Empty means "empty".
	OffAirPayload string `yaml:"off_air_payload,omitempty"`

	// Setup steps must succeed; their effects are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the traced steps.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`

	// dir resolves relative connection paths. Set by LoadScenario.
	dir string
}

// Step operations.
const (
	OpConnection  = "connection"
	OpInsert      = "insert"
	OpInsertAfter = "insert_after"
	OpDuplicate   = "duplicate"
	OpMove        = "move"
	OpDelete      = "delete"
	OpRenumber    = "renumber"
	OpSet         = "set"
	OpPatch       = "patch"
	OpPush        = "push"
	OpAdvance     = "advance"
	OpRenderer    = "renderer"
)

// Step is one operation against the system under test. Which fields apply
// depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// Collection is the target of row operations.
	Collection string `yaml:"collection,omitempty"`

	// Row is the target row of insert_after, duplicate, delete, set and push.
	Row int64 `yaml:"row,omitempty"`

	// From and To are the rows of a move.
	From int64 `yaml:"from,omitempty"`
	To   int64 `yaml:"to,omitempty"`

	// Path imports a connection document, relative to the scenario file.
	// AppToken, Label and Model define one inline instead.
	Path     string `yaml:"path,omitempty"`
	AppToken string `yaml:"appToken,omitempty"`
	Label    string `yaml:"label,omitempty"`
	Model    any    `yaml:"model,omitempty"`

	// SubCompositionID seeds an inserted row from the connection schema.
	SubCompositionID string `yaml:"subCompositionId,omitempty"`

	// Cells are written by insert, insert_after and set.
	Cells map[string]any `yaml:"cells,omitempty"`

	// Body is the inbound patch, encoded as JSON before it is applied.
	Body any `yaml:"body,omitempty"`

	// State makes a push include the row's current state.
	State bool `yaml:"state,omitempty"`

	// Ms advances the fake clock.
	Ms int64 `yaml:"ms,omitempty"`

	// Status sets the fake renderer's response code.
	Status int `yaml:"status,omitempty"`

	// Expect checks the step result. Nil expects success.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Error classes a step may expect.
const (
	ErrClassNotFound    = "not_found"
	ErrClassValidation  = "validation"
	ErrClassInvalidJSON = "invalid_json"
	ErrClassRemote      = "remote"
	ErrClassOther       = "error"
)

// ExpectClause specifies the expected step result.
type ExpectClause struct {
	// Error is the expected error class. Empty expects success.
	Error string `yaml:"error,omitempty"`

	// ID is the expected id of an inserted row.
	ID int64 `yaml:"id,omitempty"`
}

// Assertion types.
const (
	AssertEventContains = "event_contains"
	AssertEventOrder    = "event_order"
	AssertEventCount    = "event_count"
	AssertDispatchCount = "dispatch_count"
	AssertFinalState    = "final_state"
	AssertOrder         = "order"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "event_contains": an event of Event type (on Row, if set) was traced
	// - "event_order": event types appear in the given order
	// - "event_count": Event appears exactly Count times
	// - "dispatch_count": exactly Count dispatch notices, of Outcome if set
	// - "final_state": Row in Collection holds the Expect cells
	// - "order": Collection lists exactly Rows, in order
	Type string `yaml:"type"`

	Event   string   `yaml:"event,omitempty"`
	Events  []string `yaml:"events,omitempty"`
	Outcome string   `yaml:"outcome,omitempty"`
	Count   int      `yaml:"count,omitempty"`

	Collection string         `yaml:"collection,omitempty"`
	Row        int64          `yaml:"row,omitempty"`
	Rows       []int64        `yaml:"rows,omitempty"`
	Expect     map[string]any `yaml:"expect,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Connection paths in the scenario resolve relative to the file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.dir = filepath.Dir(path)
	return scenario, nil
}

// ParseScenario parses scenario YAML. Relative connection paths resolve
// against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Clock < 0 {
		return fmt.Errorf("clock must be non-negative")
	}
	if s.OffAirPayload != "" && !dispatch.OffAirPayload(s.OffAirPayload).Valid() {
		return fmt.Errorf("off_air_payload must be %q or %q", dispatch.OffAirEmpty, dispatch.OffAirResolved)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := validateStep(fmt.Sprintf("setup[%d]", i), step); err != nil {
			return err
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed in setup", i)
		}
	}
	for i, step := range s.Flow {
		if err := validateStep(fmt.Sprintf("flow[%d]", i), step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks the fields each operation needs.
func validateStep(where string, s Step) error {
	needCollection := func() error {
		if !model.Collection(s.Collection).Valid() {
			return fmt.Errorf("%s: unknown collection %q", where, s.Collection)
		}
		return nil
	}
	needRow := func() error {
		if s.Row <= 0 {
			return fmt.Errorf("%s: row is required for %s", where, s.Op)
		}
		return nil
	}

	switch s.Op {
	case OpConnection:
		if s.Path == "" && s.AppToken == "" {
			return fmt.Errorf("%s: connection needs path or appToken", where)
		}
	case OpInsert, OpRenumber:
		return needCollection()
	case OpInsertAfter, OpDuplicate, OpDelete, OpSet:
		if err := needCollection(); err != nil {
			return err
		}
		return needRow()
	case OpMove:
		if err := needCollection(); err != nil {
			return err
		}
		if s.From <= 0 || s.To <= 0 {
			return fmt.Errorf("%s: from and to are required for move", where)
		}
	case OpPatch:
		if s.Body == nil {
			return fmt.Errorf("%s: body is required for patch", where)
		}
	case OpPush:
		return needRow()
	case OpAdvance:
		if s.Ms <= 0 {
			return fmt.Errorf("%s: ms must be positive for advance", where)
		}
	case OpRenderer:
		if s.Status < 100 || s.Status > 599 {
			return fmt.Errorf("%s: status must be an HTTP status code", where)
		}
	case "":
		return fmt.Errorf("%s: op is required", where)
	default:
		return fmt.Errorf("%s: unknown op %q", where, s.Op)
	}

	if s.Expect != nil {
		switch s.Expect.Error {
		case "", ErrClassNotFound, ErrClassValidation, ErrClassInvalidJSON, ErrClassRemote, ErrClassOther:
		default:
			return fmt.Errorf("%s.expect: unknown error class %q", where, s.Expect.Error)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventContains, AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertDispatchCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertFinalState:
		if !model.Collection(a.Collection).Valid() {
			return fmt.Errorf("assertions[%d]: unknown collection %q", index, a.Collection)
		}
		if a.Row <= 0 {
			return fmt.Errorf("assertions[%d]: row is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertOrder:
		if !model.Collection(a.Collection).Valid() {
			return fmt.Errorf("assertions[%d]: unknown collection %q", index, a.Collection)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
