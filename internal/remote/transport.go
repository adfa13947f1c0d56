package remote

import "context"

// Process is the handle for one outstanding remote invocation. Output
// accumulates incrementally while the command runs; callers poll it rather
// than blocking on completion, so a single coordinator can watch many
// processes at once.
type Process interface {
	// Output returns the clean stdout accumulated so far.
	Output() string
	// Diagnostics returns the diagnostic stream accumulated so far:
	// session banners, stderr, and transport-level notices. The session
	// established and authentication failure markers appear here.
	Diagnostics() string
	// Done is closed when the remote invocation has finished, for any
	// reason.
	Done() <-chan struct{}
	// Err returns the transport-level error after Done is closed. A
	// non-zero remote exit is not a transport error; it is conveyed
	// through the exit code sentinel in Output.
	Err() error
	// Cancel aborts the invocation. It is idempotent.
	Cancel()
}

// Transport executes remote shell invocations and copies files. The SSH
// implementation is the production transport; tests substitute a scripted
// one.
type Transport interface {
	// Start begins one remote shell invocation without waiting for it to
	// complete.
	Start(ctx context.Context, target Target, invocation string, mode SessionMode) (Process, error)
	// Copy transfers a single file between the local machine and the
	// target. Remote paths are relative to the login user's home
	// directory unless absolute.
	Copy(ctx context.Context, target Target, direction CopyDirection, localPath, remotePath string) error
}
