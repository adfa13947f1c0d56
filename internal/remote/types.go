package remote

import (
	"fmt"
	"strings"
	"time"
)

// Target identifies one remote machine and the credentials used to reach
// it. Targets are immutable per call; nothing in this package holds on to
// one beyond the operation it was passed to.
type Target struct {
	// Host is the address of the remote machine.
	Host string
	// Port is the SSH port (22 if zero).
	Port int
	// Username is the login user.
	Username string
	// Password is used for password authentication and for privilege
	// escalation when a command runs as root.
	Password string
	// PrivateKey is an optional PEM-encoded private key. When set it is
	// tried before password authentication.
	PrivateKey []byte
}

// Addr returns the host:port dial address for the target.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", t.Host, port)
}

// CacheKey identifies the (host, port, user) triple that scopes the
// last-command upload cache.
func (t Target) CacheKey() string {
	return fmt.Sprintf("%s:%d:%s", t.Host, t.Port, t.Username)
}

// SessionMode selects the transport session negotiation style. Some remote
// hosts only accept one of the two, so the runner can fall back from its
// preferred mode to the other across retries.
type SessionMode int

const (
	// ModeInteractive requests a PTY for the session.
	ModeInteractive SessionMode = iota
	// ModeBatch runs the session without a PTY.
	ModeBatch
)

func (m SessionMode) String() string {
	switch m {
	case ModeInteractive:
		return "interactive"
	case ModeBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// CopyDirection selects upload vs download for the copy primitive.
type CopyDirection int

const (
	CopyUpload CopyDirection = iota
	CopyDownload
)

// CommandRequest describes one remote command invocation. It is consumed
// entirely within a single Runner call and never persisted.
type CommandRequest struct {
	// Command is the shell command text to run remotely.
	Command string
	// RunAsRoot wraps the invocation in a privilege escalation prefix that
	// pipes the target's password to sudo.
	RunAsRoot bool
	// Background returns as soon as the remote session is established
	// instead of waiting for completion. The returned result carries a
	// background job ID instead of an exit code.
	Background bool
	// MaxDuration bounds the wall-clock time of one attempt. Defaults to
	// DefaultMaxDuration.
	MaxDuration time.Duration
	// MaxRetries is the total number of attempts. Defaults to
	// DefaultMaxRetries.
	MaxRetries int
	// IgnoreExitCode returns the raw output and last exit code normally
	// instead of retrying and failing on a non-zero exit.
	IgnoreExitCode bool
	// Masks lists secrets that must be redacted from any logged command
	// text.
	Masks []string
}

// CommandResult is the outcome of a Runner call. The caller owns
// interpretation (retry vs surface).
type CommandResult struct {
	// Output is the trimmed stdout of the remote command, with the exit
	// code sentinel line removed.
	Output string
	// ExitCode is the remote exit code. Only meaningful if HasExitCode.
	ExitCode int
	// HasExitCode reports whether an exit code sentinel was observed. It
	// is false when the command timed out or the sentinel never appeared.
	HasExitCode bool
	// JobID is set for background commands and refers to a record held by
	// the JobTracker.
	JobID string
}

const (
	// ExitCodeSentinel is the literal marker the remote invocation appends
	// to stdout so the exit status survives the transport layer's own
	// output framing. It is a wire-format dependency of existing remote
	// test scripts and must not change.
	ExitCodeSentinel = "AZURE-LINUX-EXIT-CODE-"

	// ShellStartedMarker on the diagnostic stream signals that a remote
	// session has been established. Background commands are considered
	// started once it appears.
	ShellStartedMarker = "Started a shell"

	// AuthFailureMarker on the diagnostic stream signals a credential
	// failure. Retrying cannot change credential validity, so it
	// short-circuits all retries.
	AuthFailureMarker = "Unable to authenticate"

	// DefaultMaxDuration bounds one command attempt when the request does
	// not say otherwise.
	DefaultMaxDuration = 300 * time.Second

	// DefaultMaxRetries is the attempt budget when the request does not
	// say otherwise.
	DefaultMaxRetries = 3

	// DefaultPollInterval is the cadence at which outstanding remote
	// operations are polled.
	DefaultPollInterval = 1 * time.Second
)

// maskSecrets redacts every mask string from text before it is logged.
// It must be applied on every path that emits command text, including
// error paths.
func maskSecrets(text string, masks []string) string {
	for _, m := range masks {
		if m == "" {
			continue
		}
		text = strings.ReplaceAll(text, m, "******")
	}
	return text
}

// isAuthFailure reports whether transport output or an error message
// indicates a credential failure. The comparison is case-insensitive so it
// matches both our diagnostic marker and the SSH library's own
// "unable to authenticate" handshake error.
func isAuthFailure(s string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(AuthFailureMarker))
}
