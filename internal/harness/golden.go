package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/rbruinekool/singularity/internal/engine"
	"github.com/rbruinekool/singularity/internal/model"
)

// Render formats a result as the plain-text snapshot stored in golden
// files: each flow step with its result and trace, then every collection.
func Render(name string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", name)

	for i, step := range result.Steps {
		fmt.Fprintf(&buf, "\nstep %d: %s\n", i+1, step.Op)
		fmt.Fprintf(&buf, "  result: %s\n", step.Summary)
		for _, ev := range result.Trace {
			if ev.Step == i+1 {
				fmt.Fprintf(&buf, "  %s: %s\n", ev.Kind, ev.Text)
			}
		}
	}

	for _, c := range model.Collections {
		fmt.Fprintf(&buf, "\nfinal %s:\n", c)
		rows := result.State[c]
		if len(rows) == 0 {
			buf.WriteString("  (empty)\n")
			continue
		}
		for _, row := range rows {
			fmt.Fprintf(&buf, "  %d order=%d %s\n", row.ID, row.Order, renderCells(row.Cells))
		}
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares its rendering against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the rendering doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Render(scenarioName, result))
}

func renderCells(cells model.Cells) string {
	if len(cells) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cells); err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func describeEvent(ev engine.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", ev.Type, ev.Origin, ev.Collection)
	switch ev.Type {
	case engine.EventOrderChanged, engine.EventPatchApplied:
		b.WriteString(" rows=" + joinIDs(ev.RowIDs))
	case engine.EventRowInserted, engine.EventRowDeleted:
		fmt.Fprintf(&b, " row=%d", ev.RowID)
	case engine.EventCellsChanged:
		fmt.Fprintf(&b, " row=%d columns=%s", ev.RowID, strings.Join(ev.Columns, ","))
	case engine.EventStateTransitioned:
		fmt.Fprintf(&b, " row=%d %v->%v", ev.RowID, ev.Old, ev.New)
	}
	return b.String()
}

func describeStep(s Step) string {
	switch s.Op {
	case OpConnection:
		if s.Path != "" {
			return "connection " + s.Path
		}
		return "connection " + s.AppToken
	case OpInsert:
		if s.AppToken != "" || s.SubCompositionID != "" {
			return fmt.Sprintf("insert %s %s/%s", s.Collection, s.AppToken, s.SubCompositionID)
		}
		return "insert " + s.Collection
	case OpInsertAfter, OpDuplicate, OpDelete, OpSet:
		return fmt.Sprintf("%s %s row=%d", s.Op, s.Collection, s.Row)
	case OpMove:
		return fmt.Sprintf("move %s from=%d to=%d", s.Collection, s.From, s.To)
	case OpRenumber:
		return "renumber " + s.Collection
	case OpPush:
		if s.State {
			return fmt.Sprintf("push row=%d state", s.Row)
		}
		return fmt.Sprintf("push row=%d", s.Row)
	case OpAdvance:
		return fmt.Sprintf("advance ms=%d", s.Ms)
	case OpRenderer:
		return fmt.Sprintf("renderer status=%d", s.Status)
	default:
		return s.Op
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
