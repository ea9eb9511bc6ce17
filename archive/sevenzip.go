// SPDX-License-Identifier: MIT

// Package archive wraps the external 7z command-line tool to stream
// ordered archive members without random seeks, and to publish finished
// archives atomically.
package archive

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/orcaman/writerseeker"
)

// Archive is a handle to a 7z file. Path need not exist yet when read/write
// operations are issued against a fresh archive.
type Archive struct {
	Path   string
	logger *log.Logger
}

// New wraps an existing or not-yet-created 7z archive at path.
func New(path string, logger *log.Logger) *Archive {
	return &Archive{Path: path, logger: logger}
}

func (a *Archive) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}

// FromDir creates a 7z archive at path containing every file in dir, in
// filesystem-listing order. The archive is written to a sibling
// "tmp."-prefixed path and renamed into place only once 7z exits zero, so
// a reader never observes a partially-written archive.
func FromDir(dir, path string, logger *log.Logger) (*Archive, error) {
	a := New(path, logger)
	tmpPath := filepath.Join(filepath.Dir(path), "tmp."+filepath.Base(path))
	a.logf("creating 7z archive %s from directory %s", path, dir)

	rel, err := filepath.Rel(dir, tmpPath)
	if err != nil {
		return nil, err
	}
	if err := runSevenZip(dir, nil, "a", "-ms=off", rel, "."); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, err
	}
	return a, nil
}

// FromDirWithOrder creates a 7z archive at path containing every file in
// dir, ordered by key(path) rather than filesystem-listing order. 7z has no
// direct way to specify member order, so the files are first symlinked
// under numbered names into a scratch directory, archived in that order,
// and then renamed back to their original names inside the resulting
// archive via "7z rn".
func FromDirWithOrder(dir, path string, key func(name string) string, logger *log.Logger) (*Archive, error) {
	a := New(path, logger)
	base := filepath.Base(path)
	dirPath := filepath.Dir(path)
	tmpPath := filepath.Join(dirPath, "tmp."+base)
	tmpDir := filepath.Join(dirPath, "tmp."+base+".contents")
	listFile := filepath.Join(dirPath, "tmp."+base+".listfile-rename")
	a.logf("creating ordered 7z archive %s from directory %s", path, dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Slice(names, func(i, j int) bool { return key(names[i]) < key(names[j]) })

	digits := len(strconv.Itoa(len(names) - 1))
	if digits == 0 {
		digits = 1
	}

	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, err
	}

	var listBuf writerseeker.WriterSeeker
	for i, name := range names {
		orderedName := fmt.Sprintf("%0*d", digits, i)
		fmt.Fprintf(&listBuf, "%s\n%s\n", orderedName, name)
		target, err := filepath.Abs(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if err := os.Symlink(target, filepath.Join(tmpDir, orderedName)); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(listFile, mustReadAll(listBuf.Reader()), 0o644); err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(tmpDir, tmpPath)
	if err != nil {
		return nil, err
	}
	if err := runSevenZip(tmpDir, nil, "a", "-l", "-ms=off", rel, "."); err != nil {
		return nil, err
	}
	if err := os.RemoveAll(tmpDir); err != nil {
		return nil, err
	}

	if err := runSevenZip("", nil, "rn", tmpPath, "@"+listFile); err != nil {
		return nil, err
	}
	if err := os.Remove(listFile); err != nil {
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return nil, err
	}
	return a, nil
}

func mustReadAll(r io.Reader) []byte {
	b, err := io.ReadAll(r)
	if err != nil {
		panic(err)
	}
	return b
}

// Write returns a streaming writer for one archive member. memberName may
// be empty to write the archive's sole member. The caller must Close the
// writer; closing flushes and waits for the underlying 7z process.
func (a *Archive) Write(memberName string) (io.WriteCloser, error) {
	a.logf("writing %q to 7z archive %s", memberName, a.Path)
	return newSevenZipWriter(a.Path, memberName)
}

// Read returns a streaming reader for one archive member, or for the whole
// archive (concatenated) if memberName is empty.
func (a *Archive) Read(memberName string) (io.ReadCloser, error) {
	a.logf("reading %q from 7z archive %s", memberName, a.Path)
	args := []string{"x", "-so", a.Path}
	if memberName != "" {
		args = append(args, memberName)
	}
	return newSevenZipReader(args)
}

// IterFileNames enumerates archive members, ordered as 7z lists them.
func (a *Archive) IterFileNames() ([]string, error) {
	cmd := exec.Command("7z", "l", "-ba", "-slt", a.Path)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("archive: listing %s: %w", a.Path, err)
	}

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "Path = ") {
			names = append(names, strings.TrimPrefix(line, "Path = "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

func runSevenZip(cwd string, stdin io.Reader, args ...string) error {
	cmd := exec.Command("7z", args...)
	cmd.Dir = cwd
	cmd.Stdin = stdin
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("archive: 7z %s failed: %w: %s", strings.Join(args, " "), err, out)
	}
	return nil
}
