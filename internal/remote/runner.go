package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"vmtest/pkg/logging"
)

// Runner executes remote commands through a Transport, adding retry
// policy, timeout enforcement, background mode, and exit code sentinel
// parsing on top of the raw session primitive.
//
// Commands are dispatched as poll-based pending operations rather than
// blocking calls so that one coordinator loop can enforce wall-clock
// timeouts and aggregate status across many targets at once. Run is the
// blocking convenience wrapper over Dispatch for single-target callers.
type Runner struct {
	transport Transport
	tracker   *JobTracker
	session   *Session

	// ModeOrder is the session negotiation fallback strategy. The first
	// mode is used for the first half of the attempt budget, the second
	// for the remainder. Defaults to interactive then batch.
	ModeOrder []SessionMode
	// PollInterval overrides the polling cadence. Defaults to
	// DefaultPollInterval.
	PollInterval time.Duration
	// ScriptName is the remote file the command text is uploaded to.
	// Defaults to "runtest.sh" in the login user's home directory.
	ScriptName string
}

// NewRunner creates a runner with a fresh session cache.
func NewRunner(transport Transport, tracker *JobTracker) *Runner {
	return &Runner{
		transport: transport,
		tracker:   tracker,
		session:   NewSession(),
	}
}

// ResetSession clears the upload cache. The orchestrator calls this
// between logical test runs.
func (r *Runner) ResetSession() {
	r.session.Reset()
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return DefaultPollInterval
}

func (r *Runner) scriptName() string {
	if r.ScriptName != "" {
		return r.ScriptName
	}
	return "runtest.sh"
}

func (r *Runner) modeOrder() []SessionMode {
	if len(r.ModeOrder) > 0 {
		return r.ModeOrder
	}
	return []SessionMode{ModeInteractive, ModeBatch}
}

// Run executes the request and blocks until it completes, times out, or
// the context is cancelled.
func (r *Runner) Run(ctx context.Context, target Target, req CommandRequest) (CommandResult, error) {
	pending, err := r.Dispatch(ctx, target, req)
	if err != nil {
		return CommandResult{}, err
	}

	ticker := time.NewTicker(r.pollInterval())
	defer ticker.Stop()

	for {
		if pending.Poll() {
			return pending.Result()
		}
		select {
		case <-ctx.Done():
			pending.Abort(ctx.Err())
			return pending.Result()
		case <-ticker.C:
		}
	}
}

// Dispatch uploads the command script if needed and returns a pending
// operation that the caller drives by polling. The returned error covers
// only the upload step; execution outcomes surface through Poll/Result.
func (r *Runner) Dispatch(ctx context.Context, target Target, req CommandRequest) (*Pending, error) {
	if req.MaxDuration <= 0 {
		req.MaxDuration = DefaultMaxDuration
	}
	if req.MaxRetries <= 0 {
		req.MaxRetries = DefaultMaxRetries
	}

	masked := maskSecrets(req.Command, req.Masks)
	logging.Debug("Runner", "dispatching on %s: %s", target.Addr(), masked)

	if err := r.ensureScript(ctx, target, req.Command); err != nil {
		logging.Error("Runner", err, "script upload failed for: %s", masked)
		return nil, err
	}

	return &Pending{
		runner:     r,
		ctx:        ctx,
		target:     target,
		req:        req,
		invocation: r.buildInvocation(target, req),
		masked:     masked,
		attempts:   req.MaxRetries,
	}, nil
}

// ensureScript uploads the command text to the remote script file, unless
// the same command was the last one sent to this (host, port, user)
// triple. The cache avoids re-uploading identical payloads when a caller
// re-runs the same command repeatedly, such as a status poll.
func (r *Runner) ensureScript(ctx context.Context, target Target, command string) error {
	if !r.session.needsUpload(target, command) {
		logging.Debug("Runner", "command unchanged for %s, skipping script upload", target.CacheKey())
		return nil
	}

	tmp, err := os.CreateTemp("", "vmtest-cmd-*.sh")
	if err != nil {
		return fmt.Errorf("failed to create local script file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(command + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write local script file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close local script file: %w", err)
	}

	if err := r.transport.Copy(ctx, target, CopyUpload, tmp.Name(), r.scriptName()); err != nil {
		// A later identical command must not hit the cache after a
		// failed upload.
		r.session.forget(target)
		return fmt.Errorf("failed to upload command script to %s: %w", target.Addr(), err)
	}
	return nil
}

// buildInvocation wraps the uploaded script in the privilege escalation
// prefix when requested and always appends the exit code sentinel so the
// status survives the transport's own output framing.
func (r *Runner) buildInvocation(target Target, req CommandRequest) string {
	run := fmt.Sprintf("bash %s", r.scriptName())
	if req.RunAsRoot {
		if target.Password != "" {
			run = fmt.Sprintf("echo %s | sudo -S %s", shellQuote(target.Password), run)
		} else {
			run = "sudo " + run
		}
	}
	return fmt.Sprintf("%s ; echo %s$?", run, ExitCodeSentinel)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// parseExitCode extracts the trailing integer of the last exit code
// sentinel in out and returns out with the sentinel text removed. The
// literal format is fixed by remote scripts outside this repository.
func parseExitCode(out string) (int, string, bool) {
	idx := strings.LastIndex(out, ExitCodeSentinel)
	if idx < 0 {
		return 0, out, false
	}
	rest := out[idx+len(ExitCodeSentinel):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, out, false
	}
	code, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, out, false
	}
	lineStart := strings.LastIndex(out[:idx], "\n") + 1
	return code, out[:lineStart] + rest[end:], true
}

// Pending is one dispatched command that the caller drives by polling.
// Poll is cheap and non-blocking; it returns true once the operation has
// finished and Result is available.
type Pending struct {
	runner     *Runner
	ctx        context.Context
	target     Target
	req        CommandRequest
	invocation string
	masked     string

	attempts int
	attempt  int
	proc     Process
	deadline time.Time

	finished bool
	result   CommandResult
	err      error
}

// Target returns the machine this operation runs against.
func (p *Pending) Target() Target {
	return p.target
}

// Finished reports whether the operation has completed.
func (p *Pending) Finished() bool {
	return p.finished
}

// Result returns the outcome. Only valid once Poll has returned true.
func (p *Pending) Result() (CommandResult, error) {
	return p.result, p.err
}

// Abort cancels the operation and records err as its outcome.
func (p *Pending) Abort(err error) {
	if p.finished {
		return
	}
	if p.proc != nil {
		p.proc.Cancel()
	}
	p.fail(err)
}

// Poll advances the operation: it starts or restarts attempts, watches
// the diagnostic stream for the session banner and authentication
// failures, parses the exit code sentinel, and enforces the wall-clock
// deadline. It never blocks.
func (p *Pending) Poll() bool {
	if p.finished {
		return true
	}

	if p.proc == nil {
		p.startAttempt()
		if p.finished || p.proc == nil {
			return p.finished
		}
	}

	diag := p.proc.Diagnostics()
	if isAuthFailure(diag) {
		p.proc.Cancel()
		p.fail(&AuthenticationError{Target: p.target.Addr(), Detail: firstLineContaining(diag, AuthFailureMarker)})
		return true
	}

	if p.req.Background && strings.Contains(diag, ShellStartedMarker) {
		jobID := p.runner.tracker.Track(p.target, p.proc)
		logging.Info("Runner", "background command started on %s, job %s", p.target.Addr(), jobID)
		p.succeed(CommandResult{JobID: jobID})
		return true
	}

	select {
	case <-p.proc.Done():
		p.completeAttempt()
		return p.finished
	default:
	}

	// Some transports frame the sentinel before reporting completion;
	// once it is visible the command is done.
	if code, cleaned, ok := parseExitCode(p.proc.Output()); ok {
		p.proc.Cancel()
		p.handleExit(code, cleaned, true)
		return p.finished
	}

	if time.Now().After(p.deadline) {
		elapsed := p.req.MaxDuration
		p.proc.Cancel()
		logging.Error("Runner", nil, "command timed out on %s: %s", p.target.Addr(), p.masked)
		p.fail(&TimeoutError{Command: p.masked, Target: p.target.Addr(), Elapsed: elapsed.String()})
		return true
	}

	return false
}

// startAttempt opens the next transport session. Authentication failures
// finish the operation immediately; other start failures consume an
// attempt and are retried on the next poll.
func (p *Pending) startAttempt() {
	p.attempt++
	mode := p.modeFor(p.attempt)

	proc, err := p.runner.transport.Start(p.ctx, p.target, p.invocation, mode)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			logging.Error("Runner", err, "authentication failed, not retrying: %s", p.masked)
			p.fail(err)
			return
		}
		if p.attempt >= p.attempts {
			logging.Error("Runner", err, "failed to start command after %d attempts: %s", p.attempt, p.masked)
			p.fail(fmt.Errorf("failed to start command on %s: %w", p.target.Addr(), err))
			return
		}
		logging.Warn("Runner", "start attempt %d/%d on %s failed (%v), retrying", p.attempt, p.attempts, p.target.Addr(), err)
		return
	}

	p.proc = proc
	p.deadline = time.Now().Add(p.req.MaxDuration)
	logging.Debug("Runner", "attempt %d/%d on %s in %s mode", p.attempt, p.attempts, p.target.Addr(), mode)
}

// completeAttempt handles a process that finished on its own.
func (p *Pending) completeAttempt() {
	if err := p.proc.Err(); err != nil {
		if isAuthFailure(err.Error()) {
			p.fail(&AuthenticationError{Target: p.target.Addr(), Detail: err.Error()})
			return
		}
		p.retryOrFail(fmt.Errorf("transport failure on %s: %w", p.target.Addr(), err))
		return
	}

	code, cleaned, ok := parseExitCode(p.proc.Output())
	p.handleExit(code, cleaned, ok)
}

func (p *Pending) handleExit(code int, output string, hasCode bool) {
	trimmed := strings.TrimSpace(output)

	if p.req.IgnoreExitCode {
		p.succeed(CommandResult{Output: trimmed, ExitCode: code, HasExitCode: hasCode})
		return
	}
	if hasCode && code == 0 {
		p.succeed(CommandResult{Output: trimmed, ExitCode: 0, HasExitCode: true})
		return
	}

	p.retryOrFail(&CommandExecutionError{
		Command:     p.masked,
		Target:      p.target.Addr(),
		ExitCode:    code,
		HasExitCode: hasCode,
		Output:      trimmed,
	})
}

func (p *Pending) retryOrFail(err error) {
	if p.attempt >= p.attempts {
		logging.Error("Runner", err, "command failed after %d attempts: %s", p.attempt, p.masked)
		p.fail(err)
		return
	}
	logging.Warn("Runner", "attempt %d/%d on %s failed (%v), retrying: %s", p.attempt, p.attempts, p.target.Addr(), err, p.masked)
	p.proc = nil
}

func (p *Pending) modeFor(attempt int) SessionMode {
	order := p.runner.modeOrder()
	if len(order) == 1 {
		return order[0]
	}
	primary := (p.attempts + 1) / 2
	if attempt <= primary {
		return order[0]
	}
	return order[1]
}

func (p *Pending) succeed(result CommandResult) {
	p.result = result
	p.finished = true
}

func (p *Pending) fail(err error) {
	p.err = err
	p.finished = true
}

// firstLineContaining returns the first line of s containing substr, for
// compact error details.
func firstLineContaining(s, substr string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			return strings.TrimSpace(line)
		}
	}
	return substr
}
