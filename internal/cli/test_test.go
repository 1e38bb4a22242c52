package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

const passingScenario = `
name: one_join
description: "A single join"
catalog: |
  event: E1: title: "Workshop"
flow:
  - op: join
    event: E1
    email: ana@x.com
    expect: {status: registered}
assertions:
  - {type: participants, event: E1, count: 1}
`

func newTestCmdWithOutput(t *testing.T, args ...string) (*bytes.Buffer, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	return buf, cmd.Execute()
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := newTestCmdWithOutput(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := newTestCmdWithOutput(t, "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	buf, err := newTestCmdWithOutput(t, t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No scenarios found")
}

func TestTestCommandBundledScenarios(t *testing.T) {
	buf, err := newTestCmdWithOutput(t, scenariosDir)
	require.NoError(t, err, buf.String())
	assert.Contains(t, buf.String(), "✓ double_scan")
	assert.Contains(t, buf.String(), "✓ All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	buf, err := newTestCmdWithOutput(t, scenariosDir, "--filter", "double_*")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "2 passed, 0 failed, 2 total")
}

func TestTestCommandJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{scenariosDir, "--filter", "bulk_issue"})
	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "bulk_issue", resp.Data.Scenarios[0].Name)
	assert.True(t, resp.Data.Scenarios[0].Pass)
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "scenarios")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one_join.yaml"), []byte(passingScenario), 0644))

	buf, err := newTestCmdWithOutput(t, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ one_join (golden updated)")

	golden, err := os.ReadFile(filepath.Join(root, "golden", "one_join.golden"))
	require.NoError(t, err)
	assert.Equal(t, "scenario: one_join\n01 main join -> ok id-0001 registered\nauthority:\nE1 id-0001 ana@x.com registered\n", string(golden))

	_, err = newTestCmdWithOutput(t, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "golden", "one_join.golden"), []byte("scenario: one_join\n"), 0644))
	buf, err = newTestCmdWithOutput(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "trace does not match golden file")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	failing := `
name: wrong_count
description: "Asserts two participants where there is one"
catalog: |
  event: E1: title: "Workshop"
flow:
  - {op: join, event: E1, email: ana@x.com}
assertions:
  - {type: participants, event: E1, count: 2}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong_count.yaml"), []byte(failing), 0644))

	buf, err := newTestCmdWithOutput(t, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "✗ wrong_count")
	assert.Contains(t, buf.String(), "expected count 2, got 1")
}
