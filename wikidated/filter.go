// SPDX-License-Identifier: MIT

package wikidated

import (
	"bufio"
	"encoding/json"
	"io"
	"time"
)

const maxLineSize = 64 * 1024 * 1024

// Filter narrows an iteration over a revision stream. All bounds are
// inclusive; a nil bound is unconstrained. A timestamp bound without an
// explicit zone is treated as UTC.
type Filter struct {
	PageID                       *int64
	MinPageID, MaxPageID         *int64
	MinRevisionID, MaxRevisionID *int64
	MinTimestamp, MaxTimestamp   *time.Time
}

// Allows reports whether rev satisfies every bound set on f.
func (f Filter) Allows(rev *Revision) bool {
	if f.PageID != nil && rev.PageID != *f.PageID {
		return false
	}
	if f.MinPageID != nil && rev.PageID < *f.MinPageID {
		return false
	}
	if f.MaxPageID != nil && rev.PageID > *f.MaxPageID {
		return false
	}
	if f.MinRevisionID != nil && rev.RevisionID < *f.MinRevisionID {
		return false
	}
	if f.MaxRevisionID != nil && rev.RevisionID > *f.MaxRevisionID {
		return false
	}
	if f.MinTimestamp != nil && rev.Timestamp.UTC().Before(f.MinTimestamp.UTC()) {
		return false
	}
	if f.MaxTimestamp != nil && rev.Timestamp.UTC().After(f.MaxTimestamp.UTC()) {
		return false
	}
	return true
}

// pastUpperBound reports whether rev already lies beyond any upper bound
// in f. Within a single page's member, revision-id is strictly increasing
// and timestamp is non-decreasing, so once this holds no later line in
// that member can satisfy f either.
func (f Filter) pastUpperBound(rev *Revision) bool {
	if f.MaxRevisionID != nil && rev.RevisionID > *f.MaxRevisionID {
		return true
	}
	if f.MaxTimestamp != nil && rev.Timestamp.UTC().After(f.MaxTimestamp.UTC()) {
		return true
	}
	return false
}

// RevisionIterator is a pull-based scan over the JSON lines of one or more
// archive members, applying a Filter and optionally stopping as soon as a
// line runs past the filter's upper bound.
type RevisionIterator struct {
	rc        io.ReadCloser
	scanner   *bufio.Scanner
	filter    Filter
	stopEarly bool
	cur       Revision
	err       error
	done      bool
}

func newRevisionIterator(rc io.ReadCloser, filter Filter, stopEarly bool) *RevisionIterator {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &RevisionIterator{rc: rc, scanner: scanner, filter: filter, stopEarly: stopEarly}
}

// Scan advances to the next revision satisfying the iterator's filter,
// reporting whether one was found.
func (it *RevisionIterator) Scan() bool {
	if it.done {
		return false
	}
	for it.scanner.Scan() {
		var rev Revision
		if err := json.Unmarshal(it.scanner.Bytes(), &rev); err != nil {
			it.err = err
			it.done = true
			return false
		}
		if it.stopEarly && it.filter.pastUpperBound(&rev) {
			it.done = true
			return false
		}
		if !it.filter.Allows(&rev) {
			continue
		}
		it.cur = rev
		return true
	}
	if err := it.scanner.Err(); err != nil {
		it.err = err
	}
	it.done = true
	return false
}

// Revision returns the revision found by the most recent successful Scan.
func (it *RevisionIterator) Revision() Revision { return it.cur }

// Err returns the first error encountered during scanning, if any.
func (it *RevisionIterator) Err() error { return it.err }

// Close releases the underlying archive reader.
func (it *RevisionIterator) Close() error { return it.rc.Close() }
