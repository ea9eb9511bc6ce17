// SPDX-License-Identifier: MIT

package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ulikunitz/xz"
)

// rotateThreshold is the size at which ErrorLog rotates its plain-text
// sidecar into an xz-compressed archival copy and starts a fresh file.
const rotateThreshold = 8 * 1024 * 1024

// ErrorLog writes a per-revision RDF conversion error sidecar
// (rdf-serialization.exceptions.log), one tab-separated line per failure.
// It rotates to an xz-compressed file once it grows past rotateThreshold.
// The build pipeline does not open one: C5 counts conversion failures by
// reason and reports each failure only through its logger.
type ErrorLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
	size int64
}

// OpenErrorLog opens (creating if necessary) the error sidecar at path.
func OpenErrorLog(path string) (*ErrorLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ErrorLog{path: path, f: f, size: info.Size()}, nil
}

// Log appends one conversion failure, rotating first if needed.
func (l *ErrorLog) Log(entityID string, pageID, revisionID int64, reason string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size >= rotateThreshold {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}

	line := fmt.Sprintf("%s\t%s\t%d\t%d\t%s\t%v\n", time.Now().UTC().Format(time.RFC3339), entityID, pageID, revisionID, reason, cause)
	n, err := l.f.WriteString(line)
	l.size += int64(n)
	return err
}

func (l *ErrorLog) rotateLocked() error {
	if err := l.f.Close(); err != nil {
		return err
	}

	rotatedPath := l.path + "." + time.Now().UTC().Format("20060102T150405") + ".xz"
	if err := compressToXZ(l.path, rotatedPath); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.f = f
	l.size = 0
	return nil
}

func compressToXZ(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmpPath := filepath.Join(filepath.Dir(dstPath), "tmp."+filepath.Base(dstPath))
	dst, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	xw, err := xz.NewWriter(dst)
	if err != nil {
		return err
	}
	buf := make([]byte, 64*1024)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := xw.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	if err := xw.Close(); err != nil {
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dstPath)
}

// Close closes the underlying file.
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
