package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runScenarioFile(t *testing.T, name string) *Result {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "scenario errors: %v", result.Errors)
	return result
}

func TestScenario_DoubleJoin(t *testing.T) {
	runScenarioFile(t, "double_join")
}

func TestScenario_DoubleScan(t *testing.T) {
	result := runScenarioFile(t, "double_scan")
	require.Len(t, result.Trace, 3)
	assert.Equal(t, "parallel", result.Trace[0].Device)
}

func TestScenario_LaggingRefresh(t *testing.T) {
	runScenarioFile(t, "lagging_refresh")
}

func TestScenario_FailedWrite(t *testing.T) {
	runScenarioFile(t, "failed_write")
}

func TestScenario_BulkIssue(t *testing.T) {
	result := runScenarioFile(t, "bulk_issue")
	assert.Len(t, result.Roster, 4)
}

func TestScenarioFiles_AllParse(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)
		assert.Equal(t, filepath.Base(path), s.Name+".yaml", "scenario name must match its file")
	}
}

func TestRun_FailedExpectationIsReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectation
description: "A join that expects the wrong status"
catalog: |
  event: E1: title: "Workshop"
flow:
  - op: join
    event: E1
    email: ana@x.com
    expect: {status: attended}
assertions:
  - {type: participants, event: E1, count: 2}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected status attended")
	assert.Contains(t, result.Errors[1], "expected count 2, got 1")
}

func TestRun_UnknownIdentityIsNotFound(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: unknown_identity
description: "Operations on an identity nobody registered"
catalog: |
  event: E1: title: "Workshop"
flow:
  - op: mark_attendance
    event: E1
    email: ghost@x.com
    expect: {error: NOT_FOUND}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "scenario errors: %v", result.Errors)
	assert.Equal(t, "01 main mark_attendance -> error NOT_FOUND", result.Trace[0].String())
	assert.Empty(t, result.Roster)
}

func TestRun_InvalidCatalog(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: bad_catalog
description: "Catalog fails validation"
catalog: |
  event: E1: title: ""
flow:
  - {op: refresh}
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog")
}

func TestResult_Render(t *testing.T) {
	r := NewResult()
	r.Trace = append(r.Trace, TraceEvent{Step: 1, Device: "main", Op: "lag", Outcome: "ok"})
	r.Roster = append(r.Roster, "E1 id-0001 ana@x.com registered")

	assert.Equal(t, "scenario: demo\n01 main lag -> ok\nauthority:\nE1 id-0001 ana@x.com registered\n",
		string(r.Render("demo")))
}
