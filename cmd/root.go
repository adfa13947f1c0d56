package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"vmtest/internal/remote"
)

// Exit codes for CLI commands. They are semantic so CI pipelines can
// distinguish infrastructure problems from test failures.
const (
	// ExitCodeSuccess indicates every selected test case passed.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (bad arguments, unreadable
	// configuration, or a test failure).
	ExitCodeError = 1
	// ExitCodeAuthFailed indicates a target rejected our credentials.
	ExitCodeAuthFailed = 2
	// ExitCodeTimeout indicates a remote command exceeded its deadline.
	ExitCodeTimeout = 3
)

// rootCmd is the entry point when vmtest is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "vmtest",
	Short: "Run test suites on remote Linux machines over SSH",
	Long: `vmtest selects test cases from an XML catalog, stages their scripts
on one or more remote machines, runs them over SSH, and aggregates
the results into console output and a JSON report.`,
	// SilenceUsage keeps error output clean; usage is not helpful when a
	// remote command fails.
	SilenceUsage: true,
}

// SetVersion sets the version on the root command. Called from main to
// inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "vmtest version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes.
func getExitCode(err error) int {
	var authErr *remote.AuthenticationError
	if errors.As(err, &authErr) {
		return ExitCodeAuthFailed
	}

	var timeoutErr *remote.TimeoutError
	if errors.As(err, &timeoutErr) {
		return ExitCodeTimeout
	}

	return ExitCodeError
}
