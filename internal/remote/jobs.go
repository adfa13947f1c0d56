package remote

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"vmtest/pkg/logging"
)

// BackgroundJob records one command launched in background mode so the
// orchestrator can poll it later and guarantee release during cleanup.
type BackgroundJob struct {
	// ID is a unique handle for the job.
	ID string
	// Host and Port identify the machine the command runs on.
	Host string
	Port int
	// Started is when the session establishment banner was observed.
	Started time.Time

	proc Process
}

// Process returns the underlying process handle for polling.
func (j *BackgroundJob) Process() Process {
	return j.proc
}

// Finished reports whether the remote invocation has completed.
func (j *BackgroundJob) Finished() bool {
	select {
	case <-j.proc.Done():
		return true
	default:
		return false
	}
}

// JobTracker is the mutex-guarded registry of background jobs for one test
// run. Background remote processes otherwise survive VM teardown attempts,
// so every job tracked during a test case's execution window must be
// released before the cleanup phase completes, on the failure path too.
type JobTracker struct {
	mu   sync.Mutex
	jobs []*BackgroundJob
}

// NewJobTracker creates an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{}
}

// Track registers a background process and returns its job ID.
func (t *JobTracker) Track(target Target, proc Process) string {
	job := &BackgroundJob{
		ID:      uuid.New().String(),
		Host:    target.Host,
		Port:    target.Port,
		Started: time.Now(),
		proc:    proc,
	}
	t.mu.Lock()
	t.jobs = append(t.jobs, job)
	t.mu.Unlock()

	logging.Debug("JobTracker", "tracking background job %s on %s", job.ID, target.Addr())
	return job.ID
}

// Get returns the job with the given ID.
func (t *JobTracker) Get(id string) (*BackgroundJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, job := range t.jobs {
		if job.ID == id {
			return job, true
		}
	}
	return nil, false
}

// ListActive returns the tracked jobs whose remote invocation has not
// finished yet.
func (t *JobTracker) ListActive() []*BackgroundJob {
	t.mu.Lock()
	jobs := make([]*BackgroundJob, len(t.jobs))
	copy(jobs, t.jobs)
	t.mu.Unlock()

	var active []*BackgroundJob
	for _, job := range jobs {
		if !job.Finished() {
			active = append(active, job)
		}
	}
	return active
}

// ReleaseAll cancels every tracked job and clears the registry. It returns
// the number of jobs that were still running.
func (t *JobTracker) ReleaseAll() int {
	t.mu.Lock()
	jobs := t.jobs
	t.jobs = nil
	t.mu.Unlock()

	released := 0
	for _, job := range jobs {
		if !job.Finished() {
			released++
			logging.Debug("JobTracker", "cancelling background job %s on %s:%d", job.ID, job.Host, job.Port)
		}
		job.proc.Cancel()
	}
	return released
}
