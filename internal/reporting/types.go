// Package reporting renders run results to the console and to a
// structured JSON report file.
package reporting

import "time"

// Status is the outcome of a test case or a per-target execution.
type Status string

const (
	// StatusPassed indicates the test passed on every target.
	StatusPassed Status = "PASSED"
	// StatusFailed indicates a non-zero exit on at least one target.
	StatusFailed Status = "FAILED"
	// StatusAborted indicates the test could not be executed: timeout,
	// authentication failure, or transfer failure.
	StatusAborted Status = "ABORTED"
)

// TargetResult is the outcome of one test case on one target.
type TargetResult struct {
	Target   string        `json:"target"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// CaseResult aggregates a test case across all targets.
type CaseResult struct {
	Name      string         `json:"name"`
	Category  string         `json:"category,omitempty"`
	Area      string         `json:"area,omitempty"`
	Status    Status         `json:"status"`
	StartTime time.Time      `json:"start_time"`
	Duration  time.Duration  `json:"duration"`
	Targets   []TargetResult `json:"targets"`
	// ReleasedJobs is how many background jobs were still running when
	// the case's cleanup phase released them.
	ReleasedJobs int `json:"released_jobs,omitempty"`
}

// SuiteResult is the whole run.
type SuiteResult struct {
	RunID     string        `json:"run_id"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Aborted   int           `json:"aborted"`
	Cases     []CaseResult  `json:"cases"`
}

// Reporter receives run progress and results.
type Reporter interface {
	// ReportStart is called once before the first test case.
	ReportStart(total int, targets []string)
	// ReportCaseStart is called when a test case begins.
	ReportCaseStart(name string)
	// ReportCaseResult is called when a test case finishes.
	ReportCaseResult(result CaseResult)
	// ReportSuiteResult is called once after the last test case.
	ReportSuiteResult(result SuiteResult)
}
