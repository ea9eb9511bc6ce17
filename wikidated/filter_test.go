// SPDX-License-Identifier: MIT

package wikidated

import (
	"io"
	"strings"
	"testing"
	"time"
)

func ptr[T any](v T) *T { return &v }

func TestFilterAllowsPageIDBounds(t *testing.T) {
	rev := &Revision{PageID: 10, RevisionID: 100, Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)}

	f := Filter{MinPageID: ptr(int64(5)), MaxPageID: ptr(int64(10))}
	if !f.Allows(rev) {
		t.Error("expected page 10 to be within [5, 10]")
	}

	f = Filter{MinPageID: ptr(int64(11))}
	if f.Allows(rev) {
		t.Error("expected page 10 to be rejected below MinPageID 11")
	}

	f = Filter{PageID: ptr(int64(11))}
	if f.Allows(rev) {
		t.Error("expected page 10 to be rejected by exact PageID 11")
	}
}

func TestFilterAllowsRevisionIDAndTimestampBounds(t *testing.T) {
	rev := &Revision{RevisionID: 100, Timestamp: time.Date(2021, 6, 15, 12, 0, 0, 0, time.UTC)}

	f := Filter{MinRevisionID: ptr(int64(100)), MaxRevisionID: ptr(int64(100))}
	if !f.Allows(rev) {
		t.Error("expected exact revision-id match to be allowed")
	}

	f = Filter{MaxRevisionID: ptr(int64(99))}
	if f.Allows(rev) {
		t.Error("expected revision 100 to be rejected above MaxRevisionID 99")
	}

	min := time.Date(2021, 6, 16, 0, 0, 0, 0, time.UTC)
	f = Filter{MinTimestamp: &min}
	if f.Allows(rev) {
		t.Error("expected revision before MinTimestamp to be rejected")
	}
}

func TestFilterTimestampBoundsNormalizeToUTC(t *testing.T) {
	loc := time.FixedZone("test", 3*60*60)
	rev := &Revision{Timestamp: time.Date(2021, 1, 1, 10, 0, 0, 0, time.UTC)}
	// 2021-01-01T11:00:00+03:00 == 2021-01-01T08:00:00Z, before rev's timestamp.
	min := time.Date(2021, 1, 1, 11, 0, 0, 0, loc)
	f := Filter{MinTimestamp: &min}
	if !f.Allows(rev) {
		t.Error("expected non-UTC MinTimestamp to be normalized before comparison")
	}
}

func TestPastUpperBoundStopsOnRevisionID(t *testing.T) {
	f := Filter{MaxRevisionID: ptr(int64(50))}
	if !f.pastUpperBound(&Revision{RevisionID: 51}) {
		t.Error("expected revision 51 to be past the upper bound of 50")
	}
	if f.pastUpperBound(&Revision{RevisionID: 50}) {
		t.Error("did not expect revision 50 itself to be past its own upper bound")
	}
}

func jsonlReader(lines ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n"))
}

func TestRevisionIteratorAppliesFilter(t *testing.T) {
	lines := []string{
		`{"page_id":1,"revision_id":1}`,
		`{"page_id":1,"revision_id":2}`,
		`{"page_id":1,"revision_id":3}`,
	}
	it := newRevisionIterator(jsonlReader(lines...), Filter{MinRevisionID: ptr(int64(2))}, false)
	defer it.Close()

	var got []int64
	for it.Scan() {
		got = append(got, it.Revision().RevisionID)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestRevisionIteratorStopsEarlyPastUpperBound(t *testing.T) {
	lines := []string{
		`{"page_id":1,"revision_id":1}`,
		`{"page_id":1,"revision_id":5}`,
		`{"page_id":1,"revision_id":2}`,
	}
	it := newRevisionIterator(jsonlReader(lines...), Filter{MaxRevisionID: ptr(int64(3))}, true)
	defer it.Close()

	var got []int64
	for it.Scan() {
		got = append(got, it.Revision().RevisionID)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	// Revision 2, appearing after the out-of-bound revision 5, must never be
	// reached: stopEarly halts scanning at the first past-bound line.
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestRevisionIteratorMalformedLine(t *testing.T) {
	it := newRevisionIterator(jsonlReader("not json"), Filter{}, false)
	defer it.Close()
	if it.Scan() {
		t.Fatal("expected Scan to fail on malformed JSON")
	}
	if it.Err() == nil {
		t.Error("expected a non-nil error after malformed JSON")
	}
}
