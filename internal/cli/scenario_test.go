package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

const passingScenario = `name: quick_insert
description: One insert into an empty collection.
flow:
  - {op: insert, collection: variables, cells: {name: score}}
assertions:
  - type: order
    collection: variables
    rows: [1]
`

const failingScenario = `name: wrong_order
description: Front inserts reverse the expected order.
flow:
  - {op: insert, collection: variables, cells: {name: a}}
  - {op: insert, collection: variables, cells: {name: b}}
assertions:
  - type: order
    collection: variables
    rows: [1, 2]
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestScenarioCommandMissingArgs(t *testing.T) {
	_, err := runCLI(t, "", "scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestScenarioCommandNonExistentPath(t *testing.T) {
	_, err := runCLI(t, "", "scenario", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestScenarioCommandEmptyDir(t *testing.T) {
	out, err := runCLI(t, "", "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestScenarioCommandEmptyDirJSON(t *testing.T) {
	out, err := runCLI(t, "", "--format", "json", "scenario", t.TempDir())
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   ScenarioRunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
	assert.Empty(t, resp.Data.Scenarios)
}

func TestScenarioCommand_HarnessGoldens(t *testing.T) {
	out, err := runCLI(t, "", "scenario", harnessScenarios, "--golden", harnessGolden)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ duplicate_shifts_orders")
	assert.Contains(t, out, "✓ patch_goes_on_air")
	assert.Contains(t, out, "✓ push_reports_remote_failure")
	assert.Contains(t, out, "3 passed, 0 failed, 3 total")
}

func TestScenarioCommand_Filter(t *testing.T) {
	out, err := runCLI(t, "", "--format", "json", "scenario", harnessScenarios,
		"--golden", harnessGolden, "--filter", "patch_*")
	require.NoError(t, err, out)

	var resp struct {
		Data ScenarioRunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "patch_goes_on_air", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestScenarioCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "quick.yaml", passingScenario)

	out, err := runCLI(t, "", "scenario", path, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ quick_insert (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "quick_insert.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), "scenario: quick_insert")
	assert.Contains(t, string(golden), `1 order=0 {"name":"score"}`)

	out, err = runCLI(t, "", "scenario", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ quick_insert")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "quick_insert.golden"), []byte("stale\n"), 0644))
	out, err = runCLI(t, "", "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestScenarioCommand_AssertionFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, err := runCLI(t, "", "--format", "json", "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string            `json:"status"`
		Data   ScenarioRunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestScenarioCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: [unterminated\n")

	out, err := runCLI(t, "", "scenario", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a.yaml", passingScenario)
	writeScenario(t, dir, "b.yml", passingScenario)
	writeScenario(t, dir, "notes.txt", "ignored")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	writeScenario(t, filepath.Join(dir, "nested"), "c.yaml", passingScenario)

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "a*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "demo.golden"),
		goldenFilePath("", filepath.Join("scenarios", "demo_file.yaml"), "demo"))
	assert.Equal(t, filepath.Join("elsewhere", "demo.golden"),
		goldenFilePath("elsewhere", filepath.Join("scenarios", "demo_file.yaml"), "demo"))
}
