package remote

import "fmt"

// TimeoutError indicates that a remote operation exceeded its allowed
// duration and was cancelled.
type TimeoutError struct {
	// Command is the masked command text, safe for logs.
	Command string
	Target  string
	Elapsed string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out on %s after %s: %s", e.Target, e.Elapsed, e.Command)
}

// AuthenticationError indicates the transport could not authenticate
// against the target. It is fatal and never retried.
type AuthenticationError struct {
	Target string
	Detail string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %s", e.Target, e.Detail)
}

// CommandExecutionError indicates a non-zero remote exit code after all
// retries were exhausted.
type CommandExecutionError struct {
	// Command is the masked command text, safe for logs.
	Command  string
	Target   string
	ExitCode int
	// HasExitCode is false when the exit code sentinel never appeared in
	// the command output.
	HasExitCode bool
	Output      string
}

func (e *CommandExecutionError) Error() string {
	if !e.HasExitCode {
		return fmt.Sprintf("command produced no exit code on %s: %s", e.Target, e.Command)
	}
	return fmt.Sprintf("command failed on %s with exit code %d: %s", e.Target, e.ExitCode, e.Command)
}

// TransferError indicates a file upload or download exhausted its retries.
type TransferError struct {
	Direction CopyDirection
	Target    string
	Path      string
	Attempts  int
	Err       error
}

func (e *TransferError) Error() string {
	dir := "upload"
	if e.Direction == CopyDownload {
		dir = "download"
	}
	return fmt.Sprintf("%s of %s to %s failed after %d attempts: %v", dir, e.Path, e.Target, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
