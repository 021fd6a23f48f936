package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: one insert
flow:
  - op: insert
    collection: rundown
    cells: {name: A}
assertions:
  - type: order
    collection: rundown
    rows: [1]
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, OpInsert, s.Flow[0].Op)
	assert.Equal(t, "A", s.Flow[0].Cells["name"])
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, []int64{1}, s.Assertions[0].Rows)
}

func TestLoadScenario_RecordsDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, dir, s.dir)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: d\nflow: [{op: renumber, collection: rundown}]\nassertions: [{type: dispatch_count}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: n\nflow: [{op: renumber, collection: rundown}]\nassertions: [{type: dispatch_count}]\n",
			want: "description is required",
		},
		{
			name: "empty flow",
			yaml: "name: n\ndescription: d\nflow: []\nassertions: [{type: dispatch_count}]\n",
			want: "flow list is required",
		},
		{
			name: "empty assertions",
			yaml: "name: n\ndescription: d\nflow: [{op: renumber, collection: rundown}]\n",
			want: "assertions list is required",
		},
		{
			name: "unknown op",
			yaml: "name: n\ndescription: d\nflow: [{op: explode}]\nassertions: [{type: dispatch_count}]\n",
			want: `flow[0]: unknown op "explode"`,
		},
		{
			name: "unknown collection",
			yaml: "name: n\ndescription: d\nflow: [{op: renumber, collection: shows}]\nassertions: [{type: dispatch_count}]\n",
			want: `flow[0]: unknown collection "shows"`,
		},
		{
			name: "delete without row",
			yaml: "name: n\ndescription: d\nflow: [{op: delete, collection: rundown}]\nassertions: [{type: dispatch_count}]\n",
			want: "flow[0]: row is required for delete",
		},
		{
			name: "move without target",
			yaml: "name: n\ndescription: d\nflow: [{op: move, collection: rundown, from: 1}]\nassertions: [{type: dispatch_count}]\n",
			want: "from and to are required",
		},
		{
			name: "patch without body",
			yaml: "name: n\ndescription: d\nflow: [{op: patch}]\nassertions: [{type: dispatch_count}]\n",
			want: "body is required for patch",
		},
		{
			name: "bad renderer status",
			yaml: "name: n\ndescription: d\nflow: [{op: renderer, status: 42}]\nassertions: [{type: dispatch_count}]\n",
			want: "status must be an HTTP status code",
		},
		{
			name: "unknown error class",
			yaml: "name: n\ndescription: d\nflow: [{op: push, row: 1, expect: {error: boom}}]\nassertions: [{type: dispatch_count}]\n",
			want: `unknown error class "boom"`,
		},
		{
			name: "expect in setup",
			yaml: "name: n\ndescription: d\nsetup: [{op: push, row: 1, expect: {error: remote}}]\nflow: [{op: push, row: 1}]\nassertions: [{type: dispatch_count}]\n",
			want: "expect is not allowed in setup",
		},
		{
			name: "bad off air policy",
			yaml: "name: n\ndescription: d\noff_air_payload: full\nflow: [{op: push, row: 1}]\nassertions: [{type: dispatch_count}]\n",
			want: "off_air_payload must be",
		},
		{
			name: "unknown assertion",
			yaml: "name: n\ndescription: d\nflow: [{op: push, row: 1}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "final_state without expect",
			yaml: "name: n\ndescription: d\nflow: [{op: push, row: 1}]\nassertions: [{type: final_state, collection: rundown, row: 1}]\n",
			want: "expect is required for final_state",
		},
		{
			name: "event_order without events",
			yaml: "name: n\ndescription: d\nflow: [{op: push, row: 1}]\nassertions: [{type: event_order}]\n",
			want: "events list is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
