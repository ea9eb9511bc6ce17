// SPDX-License-Identifier: MIT

package rdf

import "testing"

func TestShortenLongestMatch(t *testing.T) {
	table := NewPrefixTable()
	for _, tc := range []struct{ in, want string }{
		{"<http://www.wikidata.org/entity/Q42>", "wd:Q42"},
		{"<http://www.wikidata.org/entity/statement/Q42-abc>", "wds:Q42-abc"},
		{"<http://www.wikidata.org/prop/direct/P31>", "wdt:P31"},
		{"<http://www.wikidata.org/prop/direct-normalized/P31>", "wdtn:P31"},
		{"<http://example.com/not-registered>", "<http://example.com/not-registered>"},
		{`"a literal"@en`, `"a literal"@en`},
	} {
		if got := table.Shorten(tc.in); got != tc.want {
			t.Errorf("Shorten(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPrefixRoundTrip(t *testing.T) {
	table := NewPrefixTable()
	for _, iri := range []string{
		"<http://www.wikidata.org/entity/Q42>",
		"<http://www.wikidata.org/prop/direct/P31>",
		"<http://www.wikidata.org/prop/qualifier/value/P580>",
	} {
		short := table.Shorten(iri)
		if short == iri {
			t.Fatalf("expected %q to be shortened", iri)
		}
		if got := table.Expand(short); got != iri {
			t.Errorf("Expand(Shorten(%q)) = %q, want %q", iri, got, iri)
		}
	}
}
