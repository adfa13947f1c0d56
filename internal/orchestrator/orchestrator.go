// Package orchestrator drives selected test cases against the configured
// targets. One coordinating goroutine dispatches remote operations as
// independent poll-based tasks and sweeps all of them at a fixed cadence,
// so a slow machine never blocks status visibility into the others.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vmtest/internal/catalog"
	"vmtest/internal/remote"
	"vmtest/internal/reporting"
	"vmtest/pkg/logging"
)

// Orchestrator executes test cases. Per-target failures are caught and
// aggregated; one failing machine does not abort the run.
type Orchestrator struct {
	runner   *remote.Runner
	transfer *remote.Transfer
	tracker  *remote.JobTracker
	reporter reporting.Reporter

	// ScriptsDir is the local directory holding test scripts and their
	// dependency files.
	ScriptsDir string
	// CaseTimeout bounds a test case that declares no timeout.
	CaseTimeout time.Duration
	// MaxRetries is the per-command attempt budget.
	MaxRetries int
	// DisableCompression turns off batched tarball uploads.
	DisableCompression bool
	// PollInterval overrides the sweep cadence.
	PollInterval time.Duration
}

// New creates an orchestrator.
func New(runner *remote.Runner, transfer *remote.Transfer, tracker *remote.JobTracker, reporter reporting.Reporter) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		transfer: transfer,
		tracker:  tracker,
		reporter: reporter,
	}
}

func (o *Orchestrator) pollInterval() time.Duration {
	if o.PollInterval > 0 {
		return o.PollInterval
	}
	return remote.DefaultPollInterval
}

// RunSuite executes the cases in order against all targets and returns
// the aggregated suite result.
func (o *Orchestrator) RunSuite(ctx context.Context, cases []catalog.TestCase, targets []remote.Target) reporting.SuiteResult {
	suite := reporting.SuiteResult{
		RunID:     uuid.New().String(),
		StartTime: time.Now(),
	}

	var targetNames []string
	for _, target := range targets {
		targetNames = append(targetNames, target.Addr())
	}
	o.reporter.ReportStart(len(cases), targetNames)

	for _, tc := range cases {
		if ctx.Err() != nil {
			logging.Warn("Orchestrator", "run cancelled, %d case(s) not executed", len(cases)-len(suite.Cases))
			break
		}
		result := o.runCase(ctx, tc, targets)
		suite.Cases = append(suite.Cases, result)
		o.reporter.ReportCaseResult(result)
	}

	suite.EndTime = time.Now()
	reporting.Summarize(&suite)
	o.reporter.ReportSuiteResult(suite)
	return suite
}

// runCase stages the case's files on every target, dispatches the test
// script everywhere, and sweeps the outstanding executions until they
// all finish. Background jobs started by the case are released before
// the result is returned, on the failure path too.
func (o *Orchestrator) runCase(ctx context.Context, tc catalog.TestCase, targets []remote.Target) (result reporting.CaseResult) {
	o.reporter.ReportCaseStart(tc.Name)
	result = reporting.CaseResult{
		Name:      tc.Name,
		Category:  tc.Category,
		Area:      tc.Area,
		StartTime: time.Now(),
	}

	// The upload cache must not leak between unrelated test cases that
	// happen to target the same machine.
	o.runner.ResetSession()

	defer func() {
		result.ReleasedJobs = o.tracker.ReleaseAll()
		if result.ReleasedJobs > 0 {
			logging.Info("Orchestrator", "released %d background job(s) left over by %s", result.ReleasedJobs, tc.Name)
		}
		result.Duration = time.Since(result.StartTime)
		result.Status = aggregateStatus(result.Targets)
	}()

	if err := o.stageFiles(ctx, tc, targets); err != nil {
		logging.Error("Orchestrator", err, "staging failed for %s", tc.Name)
		for _, target := range targets {
			result.Targets = append(result.Targets, reporting.TargetResult{
				Target: target.Addr(),
				Status: reporting.StatusAborted,
				Error:  err.Error(),
			})
		}
		return result
	}

	if tc.TestScript == "" {
		// Nothing to execute; staging alone counts as success.
		for _, target := range targets {
			result.Targets = append(result.Targets, reporting.TargetResult{
				Target: target.Addr(),
				Status: reporting.StatusPassed,
			})
		}
		return result
	}

	result.Targets = o.sweep(ctx, tc, targets)
	return result
}

// stageFiles pushes the case's dependency files and generated constants
// to every target in parallel.
func (o *Orchestrator) stageFiles(ctx context.Context, tc catalog.TestCase, targets []remote.Target) error {
	files := make([]string, 0, len(tc.FileList())+1)
	for _, name := range tc.FileList() {
		files = append(files, filepath.Join(o.ScriptsDir, name))
	}

	if len(tc.SetupConfig) > 0 {
		constants, cleanup, err := writeConstantsFile(tc.SetupConfig)
		if err != nil {
			return fmt.Errorf("failed to generate constants file: %w", err)
		}
		defer cleanup()
		files = append(files, constants)
	}

	if len(files) == 0 {
		return nil
	}

	opts := remote.TransferOptions{DisableCompression: o.DisableCompression}
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			return o.transfer.Upload(gctx, target, files, "", opts)
		})
	}
	return g.Wait()
}

type pendingRun struct {
	target  remote.Target
	pending *remote.Pending
	started time.Time
	done    bool
}

// sweep dispatches the test script on every target and polls all pending
// executions in one loop until the last one finishes.
func (o *Orchestrator) sweep(ctx context.Context, tc catalog.TestCase, targets []remote.Target) []reporting.TargetResult {
	timeout := o.CaseTimeout
	if tc.Timeout > 0 {
		timeout = time.Duration(tc.Timeout) * time.Second
	}

	req := remote.CommandRequest{
		Command:     fmt.Sprintf("bash %s", tc.TestScript),
		RunAsRoot:   true,
		MaxDuration: timeout,
		MaxRetries:  o.MaxRetries,
	}

	results := make(map[string]reporting.TargetResult)
	var runs []*pendingRun
	for _, target := range targets {
		pending, err := o.runner.Dispatch(ctx, target, req)
		if err != nil {
			logging.Error("Orchestrator", err, "dispatch failed for %s on %s", tc.Name, target.Addr())
			results[target.Addr()] = reporting.TargetResult{
				Target: target.Addr(),
				Status: reporting.StatusAborted,
				Error:  err.Error(),
			}
			continue
		}
		runs = append(runs, &pendingRun{target: target, pending: pending, started: time.Now()})
	}

	ticker := time.NewTicker(o.pollInterval())
	defer ticker.Stop()

	remaining := len(runs)
	for remaining > 0 {
		for _, run := range runs {
			if run.done || !run.pending.Poll() {
				continue
			}
			run.done = true
			remaining--
			results[run.target.Addr()] = o.targetResult(run.target, run.pending, time.Since(run.started))
		}
		if remaining == 0 {
			break
		}
		select {
		case <-ctx.Done():
			for _, run := range runs {
				if run.done {
					continue
				}
				run.pending.Abort(ctx.Err())
				run.done = true
				remaining--
				results[run.target.Addr()] = o.targetResult(run.target, run.pending, time.Since(run.started))
			}
		case <-ticker.C:
		}
	}

	ordered := make([]reporting.TargetResult, 0, len(targets))
	for _, target := range targets {
		if r, ok := results[target.Addr()]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered
}

// targetResult classifies a finished execution into the reporting
// taxonomy: a command that ran and exited non-zero is a failure, every
// other error (timeout, authentication, transport) is an abort.
func (o *Orchestrator) targetResult(target remote.Target, pending *remote.Pending, elapsed time.Duration) reporting.TargetResult {
	result := reporting.TargetResult{
		Target:   target.Addr(),
		Duration: elapsed,
	}

	cmdResult, err := pending.Result()
	result.Output = cmdResult.Output
	if err == nil {
		result.Status = reporting.StatusPassed
		result.ExitCode = cmdResult.ExitCode
		return result
	}

	result.Error = err.Error()
	if execErr, ok := err.(*remote.CommandExecutionError); ok {
		result.Status = reporting.StatusFailed
		result.ExitCode = execErr.ExitCode
		result.Output = execErr.Output
		return result
	}
	result.Status = reporting.StatusAborted
	return result
}

func aggregateStatus(targets []reporting.TargetResult) reporting.Status {
	status := reporting.StatusPassed
	for _, target := range targets {
		switch target.Status {
		case reporting.StatusAborted:
			return reporting.StatusAborted
		case reporting.StatusFailed:
			status = reporting.StatusFailed
		}
	}
	return status
}

// writeConstantsFile renders the setup configuration as a sourceable
// shell file, the form remote test scripts expect their parameters in.
// Uploads keep the basename, so the file is named constants.sh inside a
// throwaway directory.
func writeConstantsFile(setupConfig catalog.SetupConfig) (path string, cleanup func(), err error) {
	keys := make([]string, 0, len(setupConfig))
	for key := range setupConfig {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	for _, key := range keys {
		name := strings.ReplaceAll(key, ".", "_")
		fmt.Fprintf(&b, "%s=%q\n", name, setupConfig[key])
	}

	dir, err := os.MkdirTemp("", "vmtest-constants-")
	if err != nil {
		return "", nil, err
	}
	path = filepath.Join(dir, "constants.sh")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	return path, func() { os.RemoveAll(dir) }, nil
}
