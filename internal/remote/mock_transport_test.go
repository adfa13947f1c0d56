package remote

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// mockProcess is a scripted Process for tests.
type mockProcess struct {
	mu   sync.Mutex
	out  string
	diag string

	done        chan struct{}
	doneOnce    sync.Once
	err         error
	cancelCount int32
}

func newMockProcess() *mockProcess {
	p := &mockProcess{done: make(chan struct{})}
	p.emitDiag(ShellStartedMarker + " session on mock")
	return p
}

func (p *mockProcess) emit(line string) {
	p.mu.Lock()
	p.out += line + "\n"
	p.mu.Unlock()
}

func (p *mockProcess) emitDiag(line string) {
	p.mu.Lock()
	p.diag += line + "\n"
	p.mu.Unlock()
}

// completeWith emits the given lines, appends the exit code sentinel, and
// marks the process done.
func (p *mockProcess) completeWith(exitCode int, lines ...string) *mockProcess {
	for _, line := range lines {
		p.emit(line)
	}
	p.emit(fmt.Sprintf("%s%d", ExitCodeSentinel, exitCode))
	p.finish(nil)
	return p
}

func (p *mockProcess) finish(err error) {
	p.doneOnce.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *mockProcess) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out
}

func (p *mockProcess) Diagnostics() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diag
}

func (p *mockProcess) Done() <-chan struct{} { return p.done }

func (p *mockProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *mockProcess) Cancel() {
	atomic.AddInt32(&p.cancelCount, 1)
	p.finish(nil)
}

func (p *mockProcess) cancels() int {
	return int(atomic.LoadInt32(&p.cancelCount))
}

type startCall struct {
	target     Target
	invocation string
	mode       SessionMode
}

type copyCall struct {
	target     Target
	direction  CopyDirection
	localPath  string
	remotePath string
}

// mockTransport hands out scripted processes in order and keeps a
// byte-level in-memory remote filesystem for copies.
type mockTransport struct {
	mu    sync.Mutex
	procs []*mockProcess

	startCalls []startCall
	copyCalls  []copyCall

	// copyFailures makes that many leading Copy calls fail.
	copyFailures int
	files        map[string][]byte
}

func newMockTransport(procs ...*mockProcess) *mockTransport {
	return &mockTransport{procs: procs, files: make(map[string][]byte)}
}

func (m *mockTransport) Start(ctx context.Context, target Target, invocation string, mode SessionMode) (Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls = append(m.startCalls, startCall{target: target, invocation: invocation, mode: mode})
	if len(m.procs) == 0 {
		return nil, fmt.Errorf("mock transport: no scripted process for %q", invocation)
	}
	proc := m.procs[0]
	m.procs = m.procs[1:]
	return proc, nil
}

func (m *mockTransport) Copy(ctx context.Context, target Target, direction CopyDirection, localPath, remotePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyCalls = append(m.copyCalls, copyCall{target: target, direction: direction, localPath: localPath, remotePath: remotePath})
	if m.copyFailures > 0 {
		m.copyFailures--
		return fmt.Errorf("mock transport: copy failed")
	}

	switch direction {
	case CopyUpload:
		data, err := os.ReadFile(localPath)
		if err != nil {
			return err
		}
		m.files[remotePath] = data
		return nil
	case CopyDownload:
		data, ok := m.files[remotePath]
		if !ok {
			return fmt.Errorf("mock transport: no remote file %s", remotePath)
		}
		return os.WriteFile(localPath, data, 0o644)
	default:
		return fmt.Errorf("mock transport: unknown direction %d", direction)
	}
}

func (m *mockTransport) uploads() []copyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var calls []copyCall
	for _, c := range m.copyCalls {
		if c.direction == CopyUpload {
			calls = append(calls, c)
		}
	}
	return calls
}

func (m *mockTransport) starts() []startCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]startCall, len(m.startCalls))
	copy(calls, m.startCalls)
	return calls
}

// testRunner wires a runner with a fast poll interval for tests.
func testRunner(transport Transport, tracker *JobTracker) *Runner {
	r := NewRunner(transport, tracker)
	r.PollInterval = 2 * time.Millisecond
	return r
}
