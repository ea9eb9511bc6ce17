// SPDX-License-Identifier: MIT

package build

import (
	"testing"
	"time"

	"github.com/wikidated/wikidated/wikidated"
)

func revAt(id int64, day string) wikidated.Revision {
	ts, err := time.Parse("20060102", day)
	if err != nil {
		panic(err)
	}
	return wikidated.Revision{RevisionID: id, Timestamp: ts}
}

func TestMonthBuilderAddGroupsByDay(t *testing.T) {
	m := newMonthBuilder("202101")
	m.add("20210105", revAt(1, "20210105"))
	m.add("20210105", revAt(2, "20210105"))
	m.add("20210106", revAt(3, "20210106"))

	if len(m.days) != 2 || m.days[0] != "20210105" || m.days[1] != "20210106" {
		t.Fatalf("unexpected day order: %v", m.days)
	}
	if len(m.byDay["20210105"]) != 2 {
		t.Fatalf("expected 2 revisions on the 5th, got %d", len(m.byDay["20210105"]))
	}
}

func TestMonthBuilderAddTakesDayFromCaller(t *testing.T) {
	// monthBuilder.add no longer clamps out-of-order days itself: that is
	// BuildGlobalStream's job, across the whole merge. add just trusts the
	// day key it's handed, even one "from the past" relative to a
	// previously added revision.
	m := newMonthBuilder("202101")
	m.add("20210110", revAt(1, "20210110"))
	m.add("20210110", revAt(2, "20210105")) // caller already clamped this to 20210110

	if len(m.days) != 1 || m.days[0] != "20210110" {
		t.Fatalf("expected a single day 20210110, got %v", m.days)
	}
	revs := m.byDay["20210110"]
	if len(revs) != 2 || revs[0].RevisionID != 1 || revs[1].RevisionID != 2 {
		t.Fatalf("got %v", revs)
	}
}

func TestBuildGlobalStreamClampsOutOfOrderDayAcrossMonthBoundary(t *testing.T) {
	// revision 100 lands on 2021-07-01 (opens July); revision 101 lands on
	// 2021-06-30, a day *and* month earlier than the already-open day. Per
	// §4.7 this must be filed under July, not reopen an already-closed (or,
	// here, not-yet-closed but logically prior) June archive: at most one
	// file per calendar month, revision-id ranges strictly increasing.
	shard := &fakeRevisionStream{revs: []wikidated.Revision{
		revAt(100, "20210701"),
		revAt(101, "20210630"),
		revAt(102, "20210701"),
	}}
	m := &revisionMerger{h: make(mergeHeap, 0, 1)}
	item := &mergeItem{it: shard}
	if item.it.Scan() {
		m.h = append(m.h, item)
	}

	dir := t.TempDir()
	var (
		writtenFiles []string
		monthBuf     *monthBuilder
		openedDay    string
	)
	for m.Advance() {
		rev, err := m.Revision()
		if err != nil {
			t.Fatal(err)
		}
		day := rev.Timestamp.UTC().Format("20060102")
		if openedDay != "" && day < openedDay {
			day = openedDay
		}
		openedDay = day
		month := day[:6]
		if monthBuf != nil && monthBuf.month != month {
			path, err := monthBuf.close("wikidated", dir, nil)
			if err != nil {
				t.Fatal(err)
			}
			if path != "" {
				writtenFiles = append(writtenFiles, path)
			}
			monthBuf = nil
		}
		if monthBuf == nil {
			monthBuf = newMonthBuilder(month)
		}
		monthBuf.add(day, rev)
	}
	if monthBuf != nil {
		path, err := monthBuf.close("wikidated", dir, nil)
		if err != nil {
			t.Fatal(err)
		}
		if path != "" {
			writtenFiles = append(writtenFiles, path)
		}
	}

	if len(writtenFiles) != 1 {
		t.Fatalf("expected exactly one global-stream file for July, got %v", writtenFiles)
	}
}

func TestMonthBuilderCloseOnEmptyMonth(t *testing.T) {
	m := newMonthBuilder("202101")
	path, err := m.close("wikidated", t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if path != "" {
		t.Fatalf("expected empty path for a month with no revisions, got %q", path)
	}
}

func TestDayMemberOrderKey(t *testing.T) {
	name := wikidated.DayMemberName("20210115", 1, 2)
	if got := dayMemberOrderKey(name); got != "20210115" {
		t.Fatalf("got %q, want 20210115", got)
	}
	if got := dayMemberOrderKey("not-a-member"); got != "not-a-member" {
		t.Fatalf("expected fallback to the raw name, got %q", got)
	}
}

// fakeRevisionStream is a canned wikidated.RevisionStream over a fixed
// slice of revisions, used to drive the heap merge without real archives.
type fakeRevisionStream struct {
	revs []wikidated.Revision
	pos  int
}

func (s *fakeRevisionStream) Scan() bool {
	if s.pos >= len(s.revs) {
		return false
	}
	s.pos++
	return true
}

func (s *fakeRevisionStream) Revision() wikidated.Revision { return s.revs[s.pos-1] }
func (s *fakeRevisionStream) Err() error                   { return nil }
func (s *fakeRevisionStream) Close() error                 { return nil }

func TestRevisionMergerOrdersAcrossShardsByRevisionID(t *testing.T) {
	m := &revisionMerger{h: make(mergeHeap, 0, 2)}
	shards := []*fakeRevisionStream{
		{revs: []wikidated.Revision{{RevisionID: 1}, {RevisionID: 4}, {RevisionID: 7}}},
		{revs: []wikidated.Revision{{RevisionID: 2}, {RevisionID: 3}, {RevisionID: 9}}},
	}
	for _, s := range shards {
		item := &mergeItem{it: s}
		if item.it.Scan() {
			m.h = append(m.h, item)
		}
	}

	var got []int64
	for m.Advance() {
		rev, err := m.Revision()
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, rev.RevisionID)
	}
	if err := m.Err(); err != nil {
		t.Fatal(err)
	}

	want := []int64{1, 2, 3, 4, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
