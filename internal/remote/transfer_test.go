package remote

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content of "+name), 0o644))
		paths = append(paths, path)
	}
	return paths
}

func TestUpload_IndividualFiles(t *testing.T) {
	transport := newMockTransport()
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)

	files := writeTestFiles(t, "utils.sh", "main.sh")
	err := transfer.Upload(context.Background(), testTarget(), files, "", TransferOptions{})
	require.NoError(t, err)

	uploads := transport.uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, "utils.sh", uploads[0].remotePath)
	assert.Equal(t, "main.sh", uploads[1].remotePath)
	// No remote unpack command for individual transfers.
	assert.Empty(t, transport.starts())
}

func TestUpload_BatchesThreeOrMoreFiles(t *testing.T) {
	unpack := newMockProcess().completeWith(0)
	transport := newMockTransport(unpack)
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)

	files := writeTestFiles(t, "a.sh", "b.sh", "c.sh")
	err := transfer.Upload(context.Background(), testTarget(), files, "", TransferOptions{})
	require.NoError(t, err)

	uploads := transport.uploads()
	// One archive plus the unpack command script.
	require.Len(t, uploads, 2)
	assert.True(t, strings.HasSuffix(uploads[0].remotePath, ".tar.gz"))
	assert.Equal(t, "runtest.sh", uploads[1].remotePath)

	starts := transport.starts()
	require.Len(t, starts, 1)
	unpackCmd := string(transport.files["runtest.sh"])
	assert.Contains(t, unpackCmd, "tar -xzf")
	assert.Contains(t, unpackCmd, "rm -f")
}

func TestUpload_CompressionDisabled(t *testing.T) {
	transport := newMockTransport()
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)

	files := writeTestFiles(t, "a.sh", "b.sh", "c.sh", "d.sh")
	err := transfer.Upload(context.Background(), testTarget(), files, "", TransferOptions{DisableCompression: true})
	require.NoError(t, err)

	assert.Len(t, transport.uploads(), 4)
	assert.Empty(t, transport.starts())
}

func TestDownload_NeverBatches(t *testing.T) {
	transport := newMockTransport()
	transport.files["/var/log/waagent.log"] = []byte("log a")
	transport.files["/var/log/syslog"] = []byte("log b")
	transport.files["/var/log/dmesg"] = []byte("log c")
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)

	dir := t.TempDir()
	paths := []string{"/var/log/waagent.log", "/var/log/syslog", "/var/log/dmesg"}
	err := transfer.Download(context.Background(), testTarget(), paths, dir, TransferOptions{})
	require.NoError(t, err)

	require.Len(t, transport.copyCalls, 3)
	assert.Empty(t, transport.starts())

	data, err := os.ReadFile(filepath.Join(dir, "syslog"))
	require.NoError(t, err)
	assert.Equal(t, "log b", string(data))
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	transport := newMockTransport()
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)
	ctx := context.Background()

	content := []byte("#!/bin/bash\necho byte-identical \xf0\x9f\x94\x81\n")
	dir := t.TempDir()
	local := filepath.Join(dir, "roundtrip.sh")
	require.NoError(t, os.WriteFile(local, content, 0o644))

	require.NoError(t, transfer.Upload(ctx, testTarget(), []string{local}, "scripts", TransferOptions{}))

	outDir := t.TempDir()
	require.NoError(t, transfer.Download(ctx, testTarget(), []string{"scripts/roundtrip.sh"}, outDir, TransferOptions{}))

	got, err := os.ReadFile(filepath.Join(outDir, "roundtrip.sh"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCopyRetry_TransientFailures(t *testing.T) {
	transport := newMockTransport()
	transport.copyFailures = 2
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)

	files := writeTestFiles(t, "flaky.sh")
	err := transfer.Upload(context.Background(), testTarget(), files, "", TransferOptions{Retries: 5})
	require.NoError(t, err)
	assert.Len(t, transport.copyCalls, 3)
}

func TestCopyRetry_Exhausted(t *testing.T) {
	transport := newMockTransport()
	transport.copyFailures = 100
	runner := testRunner(transport, NewJobTracker())
	transfer := NewTransfer(transport, runner)

	files := writeTestFiles(t, "doomed.sh")
	err := transfer.Upload(context.Background(), testTarget(), files, "", TransferOptions{Retries: 4})
	require.Error(t, err)

	var transferErr *TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, 4, transferErr.Attempts)
	assert.Equal(t, CopyUpload, transferErr.Direction)
	assert.Len(t, transport.copyCalls, 4)
}

func TestDownload_DefaultRetriesExceedUploadDefaults(t *testing.T) {
	// Downloads tolerate more transience than uploads.
	assert.Greater(t, DefaultDownloadRetries, DefaultUploadRetries)
}
