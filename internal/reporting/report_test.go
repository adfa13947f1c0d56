package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	start := time.Now()
	result := SuiteResult{
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Cases: []CaseResult{
			{Name: "A", Status: StatusPassed},
			{Name: "B", Status: StatusPassed},
			{Name: "C", Status: StatusFailed},
			{Name: "D", Status: StatusAborted},
		},
	}

	Summarize(&result)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Aborted)
	assert.Equal(t, 90*time.Second, result.Duration)
}

func TestWriteReport_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	result := SuiteResult{
		RunID: "run-1",
		Cases: []CaseResult{
			{
				Name:   "VERIFY-BOOT",
				Status: StatusPassed,
				Targets: []TargetResult{
					{Target: "vm-1:22", Status: StatusPassed, ExitCode: 0},
				},
			},
		},
	}
	Summarize(&result)

	require.NoError(t, WriteReport(path, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got SuiteResult
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "run-1", got.RunID)
	require.Len(t, got.Cases, 1)
	assert.Equal(t, StatusPassed, got.Cases[0].Status)
	assert.Equal(t, 1, got.Total)
}
