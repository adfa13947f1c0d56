package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vmtest/pkg/logging"
)

const timeRounding = time.Millisecond

// Summarize fills the aggregate counters of a suite result from its
// per-case results.
func Summarize(result *SuiteResult) {
	result.Total = len(result.Cases)
	result.Passed = 0
	result.Failed = 0
	result.Aborted = 0
	for _, c := range result.Cases {
		switch c.Status {
		case StatusPassed:
			result.Passed++
		case StatusFailed:
			result.Failed++
		case StatusAborted:
			result.Aborted++
		}
	}
	result.Duration = result.EndTime.Sub(result.StartTime)
}

// WriteReport persists the suite result as indented JSON.
func WriteReport(path string, result SuiteResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}

	logging.Info("Reporting", "report written to %s", path)
	return nil
}
