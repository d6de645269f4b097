package reporter

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"museum-api-verifier/internal/types"
)

var sample = []types.VerificationResult{
	{Case: "collection/default", Family: types.FamilyCollectionSearch, Path: "en/collection", Params: "format=json", Outcome: types.OutcomePass, StatusCode: 200},
	{
		Case: "collection/involved-maker", Family: types.FamilyCollectionSearch, Path: "en/collection",
		Params: "format=json&involvedMaker=Rembrandt van Rijn", Outcome: types.OutcomeFail, StatusCode: 200,
		Findings: []types.RuleFinding{{
			Rule:     `every element of artObjects principalOrFirstMaker equals "Rembrandt van Rijn"`,
			Severity: "hard",
			Detail:   `1 of 10 elements violate: [0] principalOrFirstMaker is "Anonymous"`,
		}},
	},
	{
		Case: "object/unknown-id", Family: types.FamilyObjectDetail, Path: "nl/collection/aaaAAAaaa123",
		Outcome: types.OutcomeSkippedKnownIssue, StatusCode: 200,
		Notes: []string{"known issue: unknown object numbers do not return 404 upstream; reported"},
	},
	{
		Case: "usersets/page-limit", Family: types.FamilyUsersetList, Outcome: types.OutcomePass, StatusCode: 400,
		Notes: []string{"known issue no longer reproduces: status is 400"},
	},
	{Case: "userset/detail", Family: types.FamilyUsersetDetail, Outcome: types.OutcomeSkippedPrecondition, Error: "precondition unmet for userset: listing array userSets is empty"},
	{Case: "tiles/valid", Family: types.FamilyImageTiles, Outcome: types.OutcomeInfrastructureError, Error: "transport error after 1 attempt(s)"},
}

func TestBuild(t *testing.T) {
	r := New(Config{})
	report := r.Build("", sample, 1500*time.Millisecond)

	_, err := uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, Summary{
		Total:                6,
		Passed:               2,
		Failed:               1,
		Skipped:              2,
		SkippedKnownIssue:    1,
		SkippedPrecondition:  1,
		InfrastructureErrors: 1,
	}, report.Summary)

	failures := report.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "collection/involved-maker", failures[0].Case)
	assert.Equal(t, "tiles/valid", failures[1].Case)

	assert.Equal(t, "fixed", r.Build("fixed", nil, 0).RunID)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name        string
		summary     Summary
		failOnInfra bool
		want        int
	}{
		{"all pass", Summary{Passed: 3}, false, 0},
		{"skips do not fail the run", Summary{Passed: 1, Skipped: 2, SkippedKnownIssue: 2}, true, 0},
		{"contract failure", Summary{Failed: 1}, false, 1},
		{"infrastructure error tolerated", Summary{InfrastructureErrors: 1}, false, 0},
		{"infrastructure error enforced", Summary{InfrastructureErrors: 1}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Report{Summary: tt.summary}.ExitCode(tt.failOnInfra))
		})
	}
}

func TestWriteJSONAndText(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := New(Config{Format: []string{"json", "text"}, OutputDir: dir})
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC) }

	report := r.Build("run-1", sample, time.Second)
	var out bytes.Buffer
	files, err := r.Write(report, &out)
	require.NoError(t, err)

	require.Equal(t, []string{filepath.Join(dir, "report_20240501_123000.json")}, files)
	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, report.Summary, decoded.Summary)
	assert.Len(t, decoded.Results, len(sample))
	assert.Equal(t, types.OutcomeSkippedKnownIssue, decoded.Results[2].Outcome)

	text := out.String()
	assert.Contains(t, text, "run run-1 finished in 1s")
	assert.Contains(t, text, "total 6  passed 2  failed 1  skipped 2 (known issue 1, precondition 1)  infrastructure errors 1")
	assert.Contains(t, text, "FAIL  collection/involved-maker [collection-search] en/collection?format=json&involvedMaker=Rembrandt van Rijn -> 200")
	assert.Contains(t, text, `[0] principalOrFirstMaker is "Anonymous"`)
	assert.Contains(t, text, "note: known issue no longer reproduces: status is 400")
	assert.Contains(t, text, "INFRA tiles/valid")
	assert.NotContains(t, text, "collection/default", "plain passes are not listed")
}

func TestWriteTextOnly(t *testing.T) {
	dir := t.TempDir()
	r := New(Config{Format: []string{"text"}, OutputDir: dir})

	report := r.Build("run-2", sample[:1], time.Second)
	report.Triage = "Filter regression on involvedMaker."

	var out bytes.Buffer
	files, err := r.Write(report, &out)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Contains(t, out.String(), "triage:\nFilter regression on involvedMaker.")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
