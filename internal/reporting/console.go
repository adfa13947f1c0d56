package reporting

import (
	"fmt"
	"strings"

	vmstrings "vmtest/pkg/strings"
)

// consoleReporter prints run progress to stdout.
type consoleReporter struct {
	verbose bool
}

// NewConsoleReporter creates a reporter for CLI runs.
func NewConsoleReporter(verbose bool) Reporter {
	return &consoleReporter{verbose: verbose}
}

func (r *consoleReporter) ReportStart(total int, targets []string) {
	fmt.Printf("🧪 Starting vmtest run: %d test case(s) on %s\n", total, strings.Join(targets, ", "))
}

func (r *consoleReporter) ReportCaseStart(name string) {
	if r.verbose {
		fmt.Printf("🎯 Starting test case: %s\n", name)
	}
}

func (r *consoleReporter) ReportCaseResult(result CaseResult) {
	icon := "✅"
	switch result.Status {
	case StatusFailed:
		icon = "❌"
	case StatusAborted:
		icon = "🚫"
	}
	fmt.Printf("%s %s (%v)\n", icon, result.Name, result.Duration.Round(timeRounding))

	if r.verbose || result.Status != StatusPassed {
		for _, target := range result.Targets {
			if target.Status == StatusPassed && !r.verbose {
				continue
			}
			detail := fmt.Sprintf("exit %d", target.ExitCode)
			if target.Error != "" {
				detail = target.Error
			}
			fmt.Printf("   • %s: %s (%s)\n", target.Target, target.Status, vmstrings.Preview(detail, vmstrings.DefaultPreviewLen))
			if r.verbose && target.Output != "" {
				fmt.Printf("     %s\n", vmstrings.Preview(target.Output, vmstrings.DefaultPreviewLen))
			}
		}
	}
	if result.ReleasedJobs > 0 {
		fmt.Printf("   🧹 released %d background job(s)\n", result.ReleasedJobs)
	}
}

func (r *consoleReporter) ReportSuiteResult(result SuiteResult) {
	fmt.Printf("\n📊 Run %s finished in %v\n", result.RunID, result.Duration.Round(timeRounding))
	fmt.Printf("   Total: %d  ✅ Passed: %d  ❌ Failed: %d  🚫 Aborted: %d\n",
		result.Total, result.Passed, result.Failed, result.Aborted)
}
