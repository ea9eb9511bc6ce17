// SPDX-License-Identifier: MIT

package archive

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
)

// sevenZipWriter streams one archive member to 7z over stdin. Any
// non-zero exit from the external process is fatal and surfaces on Close.
type sevenZipWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
}

func newSevenZipWriter(archivePath, memberName string) (*sevenZipWriter, error) {
	args := []string{"a", "-bd", "-bso0", "-si" + memberName, archivePath}
	cmd := exec.Command("7z", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("archive: starting 7z write: %w", err)
	}
	return &sevenZipWriter{cmd: cmd, stdin: stdin, stderr: &stderr}, nil
}

func (w *sevenZipWriter) Write(p []byte) (int, error) {
	return w.stdin.Write(p)
}

func (w *sevenZipWriter) Close() error {
	if err := w.stdin.Close(); err != nil {
		return err
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("archive: 7z write failed: %w: %s", err, w.stderr.String())
	}
	return nil
}

// sevenZipReader streams one archive member (or the whole archive) from
// 7z's stdout.
type sevenZipReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func newSevenZipReader(args []string) (*sevenZipReader, error) {
	cmd := exec.Command("7z", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("archive: starting 7z read: %w", err)
	}
	return &sevenZipReader{cmd: cmd, stdout: stdout}, nil
}

func (r *sevenZipReader) Read(p []byte) (int, error) {
	return r.stdout.Read(p)
}

func (r *sevenZipReader) Close() error {
	// 7z may still be producing output if the caller stopped reading
	// early (e.g. page-scoped iteration stops at the first out-of-range
	// revision); draining isn't required, terminating is enough. We
	// don't treat the resulting non-zero exit code as an error here,
	// matching the read-side semantics of the original: there's no
	// reliable way to distinguish "we stopped early" from "7z failed"
	// once stdout is closed mid-stream.
	_ = r.stdout.Close()
	_ = r.cmd.Wait()
	return nil
}
