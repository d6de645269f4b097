package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"museum-api-verifier/internal/types"
)

// Summary holds run-level counts
type Summary struct {
	Total                int `json:"total"`
	Passed               int `json:"passed"`
	Failed               int `json:"failed"`
	Skipped              int `json:"skipped"`
	SkippedKnownIssue    int `json:"skipped_known_issue"`
	SkippedPrecondition  int `json:"skipped_precondition"`
	InfrastructureErrors int `json:"infrastructure_errors"`
}

// Report represents one verification run
type Report struct {
	RunID     string                     `json:"run_id"`
	Timestamp time.Time                  `json:"timestamp"`
	Duration  time.Duration              `json:"duration"`
	Summary   Summary                    `json:"summary"`
	Results   []types.VerificationResult `json:"results"`
	// Triage is the optional LLM summary of failures.
	Triage string `json:"triage,omitempty"`
}

// ExitCode is non-zero when any case failed. Infrastructure errors count
// only when failOnInfra is set.
func (r Report) ExitCode(failOnInfra bool) int {
	if r.Summary.Failed > 0 {
		return 1
	}
	if failOnInfra && r.Summary.InfrastructureErrors > 0 {
		return 1
	}
	return 0
}

// Failures returns the failed and unreachable cases
func (r Report) Failures() []types.VerificationResult {
	var out []types.VerificationResult
	for _, res := range r.Results {
		if res.Outcome == types.OutcomeFail || res.Outcome == types.OutcomeInfrastructureError {
			out = append(out, res)
		}
	}
	return out
}

// Config holds the configuration for reporting
type Config struct {
	Format    []string
	OutputDir string
}

// Reporter handles the generation of run reports
type Reporter struct {
	config Config
	now    func() time.Time
}

// New creates a new instance of Reporter
func New(config Config) *Reporter {
	return &Reporter{
		config: config,
		now:    time.Now,
	}
}

// Build aggregates results into a report. An empty runID gets a fresh one.
func (r *Reporter) Build(runID string, results []types.VerificationResult, duration time.Duration) Report {
	if runID == "" {
		runID = uuid.NewString()
	}
	report := Report{
		RunID:     runID,
		Timestamp: r.now(),
		Duration:  duration,
		Results:   results,
	}

	s := &report.Summary
	s.Total = len(results)
	for _, res := range results {
		if res.Outcome.IsSkipped() {
			s.Skipped++
		}
		switch res.Outcome {
		case types.OutcomePass:
			s.Passed++
		case types.OutcomeFail:
			s.Failed++
		case types.OutcomeSkippedKnownIssue:
			s.SkippedKnownIssue++
		case types.OutcomeSkippedPrecondition:
			s.SkippedPrecondition++
		case types.OutcomeInfrastructureError:
			s.InfrastructureErrors++
		}
	}
	return report
}

// Write emits the report in every configured format: text goes to w, json
// to a timestamped file under the output directory. It returns the files
// written.
func (r *Reporter) Write(report Report, w io.Writer) ([]string, error) {
	var files []string
	for _, format := range r.config.Format {
		switch format {
		case "text":
			if err := WriteText(w, report); err != nil {
				return files, fmt.Errorf("failed to write text report: %w", err)
			}
		case "json":
			path, err := r.generateJSONReport(report)
			if err != nil {
				return files, fmt.Errorf("failed to generate JSON report: %w", err)
			}
			files = append(files, path)
		}
	}
	return files, nil
}

// generateJSONReport generates a JSON format report
func (r *Reporter) generateJSONReport(report Report) (string, error) {
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return "", err
	}

	reportPath := filepath.Join(r.config.OutputDir, fmt.Sprintf("report_%s.json", report.Timestamp.Format("20060102_150405")))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return reportPath, os.WriteFile(reportPath, data, 0644)
}

var labels = map[types.Outcome]string{
	types.OutcomePass:                "PASS",
	types.OutcomeFail:                "FAIL",
	types.OutcomeSkippedKnownIssue:   "SKIP",
	types.OutcomeSkippedPrecondition: "SKIP",
	types.OutcomeInfrastructureError: "INFRA",
}

// WriteText writes a human readable summary. Passing cases are listed only
// when they carry notes.
func WriteText(w io.Writer, report Report) error {
	s := report.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "run %s finished in %s\n", report.RunID, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  total %d  passed %d  failed %d  skipped %d (known issue %d, precondition %d)  infrastructure errors %d\n",
		s.Total, s.Passed, s.Failed, s.Skipped, s.SkippedKnownIssue, s.SkippedPrecondition, s.InfrastructureErrors)

	for _, res := range report.Results {
		if res.Outcome == types.OutcomePass && len(res.Notes) == 0 {
			continue
		}
		target := res.Path
		if res.Params != "" {
			target += "?" + res.Params
		}
		fmt.Fprintf(&b, "\n%-5s %s [%s] %s", labels[res.Outcome], res.Case, res.Family, target)
		if res.StatusCode != 0 {
			fmt.Fprintf(&b, " -> %d", res.StatusCode)
		}
		b.WriteString("\n")
		for _, f := range res.Findings {
			fmt.Fprintf(&b, "      - %s: %s\n", f.Rule, f.Detail)
		}
		if res.Error != "" {
			fmt.Fprintf(&b, "      error: %s\n", res.Error)
		}
		for _, n := range res.Notes {
			fmt.Fprintf(&b, "      note: %s\n", n)
		}
	}

	if report.Triage != "" {
		fmt.Fprintf(&b, "\ntriage:\n%s\n", report.Triage)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
