// SPDX-License-Identifier: MIT

package build

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/wikidated/wikidated/archive"
	"github.com/wikidated/wikidated/wikidated"
)

// BuildGlobalStream runs C7: it k-way merges every sorted-entity-streams
// file by revision-id and re-partitions the merged stream into one
// archive per calendar month (from inception through the dump version's
// month) and one member per day within a month.
//
// shards need not be presorted relative to each other; each must already
// be sorted internally by revision-id, which is what C6 guarantees.
func BuildGlobalStream(shards []*wikidated.SortedEntityStreamsFile, dataset string, outDir string, logger *log.Logger) ([]string, error) {
	merger, err := newRevisionMerger(shards)
	if err != nil {
		return nil, err
	}
	defer merger.Close()

	var (
		writtenFiles []string
		monthBuf     *monthBuilder
		openedDay    string // last day key (YYYYMMDD) filed across the whole merge
	)

	flushMonth := func() error {
		if monthBuf == nil {
			return nil
		}
		path, err := monthBuf.close(dataset, outDir, logger)
		monthBuf = nil
		if err != nil {
			return err
		}
		if path != "" {
			writtenFiles = append(writtenFiles, path)
		}
		return nil
	}

	for merger.Advance() {
		rev, err := merger.Revision()
		if err != nil {
			return nil, err
		}

		// Per §4.7, a revision whose own calendar day is earlier than the
		// latest day already opened anywhere in this merge is filed under
		// that later day instead: revision-id order must stay the merge
		// order, so rev cannot be inserted earlier than revisions already
		// placed. This clamp is tracked here, across the whole merge loop,
		// rather than inside monthBuilder, because the day it clamps to can
		// belong to a month whose monthBuilder has already been flushed and
		// closed; deriving the month from the clamped day (not the raw
		// timestamp) is what keeps the merge from ever reopening a month
		// that was already written out.
		day := rev.Timestamp.UTC().Format("20060102")
		if openedDay != "" && day < openedDay {
			logf(logger, "build: revision %d timestamp %s precedes already-open day %s; filing under %s",
				rev.RevisionID, rev.Timestamp, openedDay, openedDay)
			day = openedDay
		}
		openedDay = day

		month := day[:6]
		if monthBuf != nil && monthBuf.month != month {
			if err := flushMonth(); err != nil {
				return nil, err
			}
		}
		if monthBuf == nil {
			monthBuf = newMonthBuilder(month)
		}
		monthBuf.add(day, rev)
	}
	if err := merger.Err(); err != nil {
		return nil, err
	}
	if err := flushMonth(); err != nil {
		return nil, err
	}
	return writtenFiles, nil
}

// monthBuilder accumulates one calendar month's revisions, grouped by
// calendar day, before the whole month is written out as one archive. The
// out-of-order-day clamp (§4.7) is resolved by the caller before add is
// called, so every day passed in here is already final for this merge.
type monthBuilder struct {
	month string
	days  []string // insertion order of day keys (YYYYMMDD)
	byDay map[string][]wikidated.Revision
}

func newMonthBuilder(month string) *monthBuilder {
	return &monthBuilder{month: month, byDay: make(map[string][]wikidated.Revision)}
}

// add files rev under day, a calendar-day key already resolved by the
// caller's out-of-order clamp.
func (m *monthBuilder) add(day string, rev wikidated.Revision) {
	if _, ok := m.byDay[day]; !ok {
		m.days = append(m.days, day)
	}
	m.byDay[day] = append(m.byDay[day], rev)
}

// close writes the month's accumulated revisions into a tmp-then-renamed
// archive and returns its final path, or "" if the month held no
// revisions at all.
func (m *monthBuilder) close(dataset, outDir string, logger *log.Logger) (string, error) {
	if len(m.days) == 0 {
		return "", nil
	}

	contentsDir := filepath.Join(outDir, fmt.Sprintf("tmp.%s-global-stream-d%s.contents", dataset, m.month))
	if err := os.RemoveAll(contentsDir); err != nil {
		return "", err
	}
	if err := os.MkdirAll(contentsDir, 0o755); err != nil {
		return "", err
	}

	var minRev, maxRev int64
	first := true
	for _, day := range m.days {
		revs := m.byDay[day]
		lo, hi := revs[0].RevisionID, revs[len(revs)-1].RevisionID
		memberName := wikidated.DayMemberName(day, lo, hi)
		if err := writeMemberFile(filepath.Join(contentsDir, memberName), revs); err != nil {
			return "", err
		}
		if first || lo < minRev {
			minRev = lo
		}
		if first || hi > maxRev {
			maxRev = hi
		}
		first = false
	}

	name := wikidated.GlobalStreamFileName(dataset, m.month, minRev, maxRev)
	archivePath := filepath.Join(outDir, name)
	if _, err := archive.FromDirWithOrder(contentsDir, archivePath, dayMemberOrderKey, logger); err != nil {
		return "", err
	}
	if err := os.RemoveAll(contentsDir); err != nil {
		return "", err
	}
	return archivePath, nil
}

// dayMemberOrderKey orders global-stream day members chronologically.
func dayMemberOrderKey(name string) string {
	day, _, _, ok := wikidated.ParseDayMemberName(name)
	if !ok {
		return name
	}
	return day
}

func writeMemberFile(path string, revs []wikidated.Revision) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, r := range revs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// revisionMerger is a k-way merge over sorted-entity-streams files,
// grounded on the teacher's LineMerger but comparing by decoded
// revision-id rather than raw bytes, since merge order here is numeric,
// not lexicographic.
type revisionMerger struct {
	h      mergeHeap
	err    error
	inited bool
}

func newRevisionMerger(shards []*wikidated.SortedEntityStreamsFile) (*revisionMerger, error) {
	m := &revisionMerger{h: make(mergeHeap, 0, len(shards))}
	for _, shard := range shards {
		it, err := shard.IterAll(wikidated.Filter{})
		if err != nil {
			return nil, err
		}
		item := &mergeItem{it: it}
		if item.it.Scan() {
			m.h = append(m.h, item)
		} else if err := item.it.Err(); err != nil {
			m.err = err
			return m, nil
		} else {
			item.it.Close()
		}
	}
	return m, nil
}

// Advance moves to the next revision in merge order, returning false once
// every shard is exhausted or an error occurs.
func (m *revisionMerger) Advance() bool {
	if m.err != nil {
		return false
	}
	if len(m.h) == 0 {
		return false
	}
	if !m.inited {
		heap.Init(&m.h)
		m.inited = true
		return true
	}
	top := m.h[0]
	if top.it.Scan() {
		heap.Fix(&m.h, 0)
	} else {
		if err := top.it.Err(); err != nil {
			m.err = err
			return false
		}
		top.it.Close()
		heap.Remove(&m.h, 0)
	}
	return len(m.h) > 0
}

// Revision returns the revision at the current merge position.
func (m *revisionMerger) Revision() (wikidated.Revision, error) {
	if len(m.h) == 0 {
		return wikidated.Revision{}, fmt.Errorf("build: Revision called with no current item")
	}
	return m.h[0].it.Revision(), nil
}

func (m *revisionMerger) Err() error { return m.err }

// Close releases every shard reader still open.
func (m *revisionMerger) Close() error {
	for _, item := range m.h {
		item.it.Close()
	}
	return nil
}

type mergeItem struct {
	it    wikidated.RevisionStream
	index int
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	return h[i].it.Revision().RevisionID < h[j].it.Revision().RevisionID
}

func (h mergeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *mergeHeap) Push(x any) {
	item := x.(*mergeItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

