package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"vmtest/pkg/logging"
)

// SSHTransport implements Transport over SSH, with file copies going
// through the SFTP subsystem.
type SSHTransport struct {
	// DialTimeout bounds connection establishment. Defaults to 10s.
	DialTimeout time.Duration
}

// NewSSHTransport creates a transport with default settings.
func NewSSHTransport() *SSHTransport {
	return &SSHTransport{DialTimeout: 10 * time.Second}
}

func (t *SSHTransport) clientConfig(target Target) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if len(target.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(target.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key for %s: %w", target.Addr(), err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if target.Password != "" {
		methods = append(methods, ssh.Password(target.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no credentials configured for %s", target.Addr())
	}

	timeout := t.DialTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &ssh.ClientConfig{
		User: target.Username,
		Auth: methods,
		// Test VMs are provisioned fresh per run, so host keys are not
		// known ahead of time.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

func (t *SSHTransport) dial(target Target) (*ssh.Client, error) {
	config, err := t.clientConfig(target)
	if err != nil {
		return nil, err
	}
	client, err := ssh.Dial("tcp", target.Addr(), config)
	if err != nil {
		if isAuthFailure(err.Error()) {
			return nil, &AuthenticationError{Target: target.Addr(), Detail: err.Error()}
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", target.Addr(), err)
	}
	return client, nil
}

// Start opens a session on the target and launches the invocation. The
// returned process surfaces a session banner on its diagnostic stream as
// soon as the shell is running, which is what background commands key on.
func (t *SSHTransport) Start(ctx context.Context, target Target, invocation string, mode SessionMode) (Process, error) {
	client, err := t.dial(target)
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to open session on %s: %w", target.Addr(), err)
	}

	if mode == ModeInteractive {
		modes := ssh.TerminalModes{
			ssh.ECHO:          0,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty("xterm", 80, 40, modes); err != nil {
			session.Close()
			client.Close()
			return nil, fmt.Errorf("failed to request pty on %s: %w", target.Addr(), err)
		}
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to pipe stdout on %s: %w", target.Addr(), err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to pipe stderr on %s: %w", target.Addr(), err)
	}

	if err := session.Start(invocation); err != nil {
		session.Close()
		client.Close()
		return nil, fmt.Errorf("failed to start command on %s: %w", target.Addr(), err)
	}

	proc := &sshProcess{
		client:  client,
		session: session,
		done:    make(chan struct{}),
	}
	// The session is up and the shell is running. This banner is the
	// out-of-band start signal for background commands; it never travels
	// through the command's own stdout, so look-alike command output
	// cannot forge it.
	proc.appendDiag(fmt.Sprintf("%s session (%s) on %s", ShellStartedMarker, mode, target.Addr()))

	var readers sync.WaitGroup
	readers.Add(2)
	go proc.consume(stdout, &readers, proc.appendOut)
	go proc.consume(stderr, &readers, proc.appendDiag)

	go func() {
		err := session.Wait()
		readers.Wait()
		proc.finish(err)
	}()

	// Respect caller cancellation without requiring a poll.
	go func() {
		select {
		case <-ctx.Done():
			proc.Cancel()
		case <-proc.done:
		}
	}()

	return proc, nil
}

// Copy transfers one file through the SFTP subsystem. Each copy uses its
// own connection so that a wedged transfer can be abandoned by cancelling
// the context without affecting command sessions.
func (t *SSHTransport) Copy(ctx context.Context, target Target, direction CopyDirection, localPath, remotePath string) error {
	client, err := t.dial(target)
	if err != nil {
		return err
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return fmt.Errorf("failed to open sftp subsystem on %s: %w", target.Addr(), err)
	}
	defer sftpClient.Close()

	// sftp has no context support; tear the connection down on
	// cancellation so the blocked copy returns.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			client.Close()
		case <-watchDone:
		}
	}()

	switch direction {
	case CopyUpload:
		return t.upload(sftpClient, localPath, remotePath)
	case CopyDownload:
		return t.download(sftpClient, localPath, remotePath)
	default:
		return fmt.Errorf("unknown copy direction %d", direction)
	}
}

func (t *SSHTransport) upload(client *sftp.Client, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file %s: %w", localPath, err)
	}
	defer src.Close()

	if dir := filepath.Dir(remotePath); dir != "." && dir != "/" {
		// Best effort; the remote directory usually exists already.
		_ = client.MkdirAll(dir)
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write remote file %s: %w", remotePath, err)
	}
	return nil
}

func (t *SSHTransport) download(client *sftp.Client, localPath, remotePath string) error {
	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write local file %s: %w", localPath, err)
	}
	return nil
}

// sshProcess is the Process implementation backed by one SSH session.
type sshProcess struct {
	client  *ssh.Client
	session *ssh.Session

	mu   sync.Mutex
	out  []byte
	diag []byte
	err  error

	done       chan struct{}
	finishOnce sync.Once
	cancelOnce sync.Once
}

func (p *sshProcess) consume(r io.Reader, wg *sync.WaitGroup, sink func(string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink(scanner.Text())
	}
}

func (p *sshProcess) appendOut(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out = append(p.out, line...)
	p.out = append(p.out, '\n')
}

func (p *sshProcess) appendDiag(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.diag = append(p.diag, line...)
	p.diag = append(p.diag, '\n')
}

func (p *sshProcess) finish(err error) {
	p.finishOnce.Do(func() {
		p.mu.Lock()
		// An ExitError is a remote exit status, not a transport failure;
		// the exit code travels through the sentinel in stdout.
		if _, ok := err.(*ssh.ExitError); !ok {
			p.err = err
		}
		p.mu.Unlock()
		close(p.done)
		p.session.Close()
		if cerr := p.client.Close(); cerr != nil {
			logging.Debug("Transport", "closing ssh client: %v", cerr)
		}
	})
}

func (p *sshProcess) Output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.out)
}

func (p *sshProcess) Diagnostics() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.diag)
}

func (p *sshProcess) Done() <-chan struct{} {
	return p.done
}

func (p *sshProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cancel tears the session down. Closing the underlying connection makes
// session.Wait return, which drives the normal finish path.
func (p *sshProcess) Cancel() {
	p.cancelOnce.Do(func() {
		_ = p.session.Signal(ssh.SIGKILL)
		p.session.Close()
		p.client.Close()
	})
}
