// SPDX-License-Identifier: MIT

package build

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/wikidated/wikidated/wikidated"
)

func TestPageOrderKeySortsNumerically(t *testing.T) {
	names := []string{
		wikidated.EntityMemberName(10),
		wikidated.EntityMemberName(2),
		wikidated.EntityMemberName(100),
	}
	sort.Slice(names, func(i, j int) bool { return pageOrderKey(names[i]) < pageOrderKey(names[j]) })

	want := []string{wikidated.EntityMemberName(2), wikidated.EntityMemberName(10), wikidated.EntityMemberName(100)}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestPageOrderKeyFallsBackToRawNameOnMismatch(t *testing.T) {
	if got := pageOrderKey("not-a-member"); got != "not-a-member" {
		t.Fatalf("got %q, want %q", got, "not-a-member")
	}
}

func TestPageWriterWritesOneRevisionPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p1.jsonl")
	w, err := newPageWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.writeLine(wikidated.Revision{EntityID: "Q1", RevisionID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := w.writeLine(wikidated.Revision{EntityID: "Q1", RevisionID: 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %v", len(lines), lines)
	}
}
