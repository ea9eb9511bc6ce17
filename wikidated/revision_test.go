// SPDX-License-Identifier: MIT

package wikidated

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/wikidated/wikidated/rdf"
	"github.com/wikidated/wikidated/wikidata"
)

var jsonKeyRE = regexp.MustCompile(`"(\w+)":`)

func TestFromRDFRevisionCopiesMetadataAndTriples(t *testing.T) {
	ts := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	comment := "edit summary"
	rev := rdf.Revision{
		EntityMetadata: wikidata.EntityMetadata{
			EntityID:  "Q42",
			PageID:    123,
			Namespace: 0,
		},
		RevisionMetadata: wikidata.RevisionMetadata{
			RevisionID:     100,
			Timestamp:      ts,
			Comment:        &comment,
			WikibaseModel:  "wikibase-item",
			WikibaseFormat: "application/json",
		},
		Triples: []rdf.Triple{
			{Subject: "wd:Q42", Predicate: "rdfs:label", Object: `"Douglas Adams"@en`},
		},
	}
	deletions := []rdf.Triple{{Subject: "wd:Q42", Predicate: "wdt:P31", Object: "wd:Q5"}}

	got := FromRDFRevision(rev, deletions, rev.Triples)

	if got.EntityID != "Q42" || got.PageID != 123 || got.RevisionID != 100 {
		t.Fatalf("metadata not copied: %+v", got)
	}
	if got.Comment == nil || *got.Comment != comment {
		t.Errorf("comment not copied: %v", got.Comment)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("timestamp not copied: %v", got.Timestamp)
	}
	if len(got.TripleDeletions) != 1 || got.TripleDeletions[0] != [3]string{"wd:Q42", "wdt:P31", "wd:Q5"} {
		t.Errorf("deletions not copied: %v", got.TripleDeletions)
	}
	if len(got.TripleAdditions) != 1 || got.TripleAdditions[0][1] != "rdfs:label" {
		t.Errorf("additions not copied: %v", got.TripleAdditions)
	}
}

func TestFromRDFRevisionEmptyTriplesMarshalAsEmptyArrays(t *testing.T) {
	rev := rdf.Revision{EntityMetadata: wikidata.EntityMetadata{EntityID: "Q1"}}
	got := FromRDFRevision(rev, nil, nil)

	data, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if string(decoded["triple_deletions"]) != "[]" {
		t.Errorf("triple_deletions = %s, want []", decoded["triple_deletions"])
	}
	if string(decoded["triple_additions"]) != "[]" {
		t.Errorf("triple_additions = %s, want []", decoded["triple_additions"])
	}
}

func TestRevisionFieldOrderMatchesDatasetFormat(t *testing.T) {
	rev := Revision{EntityID: "Q42", PageID: 1, RevisionID: 2}
	data, err := json.Marshal(rev)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, m := range jsonKeyRE.FindAllStringSubmatch(string(data), -1) {
		keys = append(keys, m[1])
	}
	want := []string{"entity_id", "page_id", "namespace", "redirect", "revision_id",
		"parent_revision_id", "timestamp", "contributor", "contributor_id", "is_minor",
		"comment", "wikibase_model", "wikibase_format", "sha1", "triple_deletions", "triple_additions"}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d: %v", len(keys), len(want), keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: got %q, want %q", i, keys[i], k)
		}
	}
}
