package remote

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"vmtest/pkg/logging"
)

const (
	// DefaultUploadRetries is the per-file attempt budget for uploads.
	DefaultUploadRetries = 10
	// DefaultDownloadRetries is the per-file attempt budget for
	// downloads. Downloads tolerate more transience since they often
	// follow a just-rebooted VM.
	DefaultDownloadRetries = 20

	// maxAttemptDuration caps one transfer attempt regardless of the
	// caller's timeout; transfers have no legitimate long-running case.
	maxAttemptDuration = 600 * time.Second

	// batchThreshold is the file count at which uploads switch to a
	// single compressed archive to cut per-connection overhead.
	batchThreshold = 3
)

// TransferOptions tunes one upload or download call.
type TransferOptions struct {
	// Retries overrides the per-file attempt budget.
	Retries int
	// DisableCompression forces individual transfers even for large
	// batches.
	DisableCompression bool
}

// Transfer moves files to and from targets using the transport's copy
// primitive, batching large uploads through a compressed archive that is
// unpacked remotely by the command runner.
type Transfer struct {
	transport Transport
	runner    *Runner
}

// NewTransfer creates a transfer layer on top of the given transport and
// runner.
func NewTransfer(transport Transport, runner *Runner) *Transfer {
	return &Transfer{transport: transport, runner: runner}
}

// Upload copies the given local files into remoteDir on the target. Three
// or more files are shipped as one tarball and unpacked remotely, unless
// compression is disabled.
func (t *Transfer) Upload(ctx context.Context, target Target, files []string, remoteDir string, opts TransferOptions) error {
	if len(files) == 0 {
		return nil
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultUploadRetries
	}

	if len(files) >= batchThreshold && !opts.DisableCompression {
		return t.uploadBatch(ctx, target, files, remoteDir, retries)
	}

	for _, file := range files {
		remotePath := joinRemote(remoteDir, filepath.Base(file))
		if err := t.copyWithRetry(ctx, target, CopyUpload, file, remotePath, retries); err != nil {
			return err
		}
	}
	return nil
}

// uploadBatch archives the files locally, transfers the single archive,
// and unpacks it through the command runner.
func (t *Transfer) uploadBatch(ctx context.Context, target Target, files []string, remoteDir string, retries int) error {
	archive, err := buildArchive(files)
	if err != nil {
		return fmt.Errorf("failed to build upload archive: %w", err)
	}
	defer os.Remove(archive)

	archiveName := filepath.Base(archive)
	remoteArchive := joinRemote(remoteDir, archiveName)
	logging.Info("Transfer", "uploading %d files to %s as %s", len(files), target.Addr(), archiveName)

	if err := t.copyWithRetry(ctx, target, CopyUpload, archive, remoteArchive, retries); err != nil {
		return err
	}

	unpack := fmt.Sprintf("cd %s && tar -xzf %s && rm -f %s", remoteDirOrHome(remoteDir), archiveName, archiveName)
	if _, err := t.runner.Run(ctx, target, CommandRequest{Command: unpack}); err != nil {
		return fmt.Errorf("failed to unpack archive on %s: %w", target.Addr(), err)
	}
	return nil
}

// Download copies the given remote files into localDir. Downloads are
// never batched: remote-side compression is not assumed available.
func (t *Transfer) Download(ctx context.Context, target Target, remotePaths []string, localDir string, opts TransferOptions) error {
	retries := opts.Retries
	if retries <= 0 {
		retries = DefaultDownloadRetries
	}

	for _, remotePath := range remotePaths {
		localPath := filepath.Join(localDir, filepath.Base(remotePath))
		if err := t.copyWithRetry(ctx, target, CopyDownload, localPath, remotePath, retries); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transfer) copyWithRetry(ctx context.Context, target Target, direction CopyDirection, localPath, remotePath string, retries int) error {
	path := remotePath
	if direction == CopyUpload {
		path = localPath
	}

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, maxAttemptDuration)
		err := t.transport.Copy(attemptCtx, target, direction, localPath, remotePath)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		logging.Warn("Transfer", "copy attempt %d/%d for %s on %s failed: %v", attempt, retries, path, target.Addr(), err)

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = retries // exhausted by cancellation
		default:
		}
		if attempt >= retries {
			break
		}
	}

	terr := &TransferError{
		Direction: direction,
		Target:    target.Addr(),
		Path:      path,
		Attempts:  retries,
		Err:       lastErr,
	}
	logging.Error("Transfer", terr, "transfer failed for %s", path)
	return terr
}

// buildArchive writes the files into a temporary tar.gz and returns its
// path. Entries are flattened to their base names, matching how the
// remote unpack step lays files out next to the test scripts.
func buildArchive(files []string) (string, error) {
	tmp, err := os.CreateTemp("", "vmtest-upload-*.tar.gz")
	if err != nil {
		return "", err
	}

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	fail := func(err error) (string, error) {
		tw.Close()
		gz.Close()
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}

	for _, file := range files {
		if err := addArchiveEntry(tw, file); err != nil {
			return fail(err)
		}
	}

	if err := tw.Close(); err != nil {
		return fail(err)
	}
	if err := gz.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}

	return tmp.Name(), nil
}

func addArchiveEntry(tw *tar.Writer, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to build tar header for %s: %w", file, err)
	}
	header.Name = filepath.Base(file)

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", file, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to archive %s: %w", file, err)
	}
	return nil
}

func joinRemote(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

func remoteDirOrHome(dir string) string {
	if dir == "" || dir == "." {
		return "."
	}
	return dir
}
