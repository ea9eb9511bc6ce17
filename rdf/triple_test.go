// SPDX-License-Identifier: MIT

package rdf

import "testing"

func TestTripleEqualBlankNode(t *testing.T) {
	a := Triple{Subject: "wd:Q1", Predicate: "p:P580", Object: "_:node1abc"}
	b := Triple{Subject: "wd:Q1", Predicate: "p:P580", Object: "_:nodeXYZ"}
	if !a.Equal(b) {
		t.Error("expected triples with different blank-node labels to be equal")
	}

	c := Triple{Subject: "wd:Q1", Predicate: "p:P580", Object: "\"literal\""}
	d := Triple{Subject: "wd:Q1", Predicate: "p:P580", Object: "\"literal\""}
	if !c.Equal(d) {
		t.Error("expected identical literal triples to be equal")
	}

	e := Triple{Subject: "wd:Q1", Predicate: "p:P580", Object: "\"other\""}
	if c.Equal(e) {
		t.Error("expected triples with different literal objects to be unequal")
	}
}

func TestTripleKeyCollapsesBlankNodes(t *testing.T) {
	a := Triple{Subject: "wd:Q1", Predicate: "prov:wasDerivedFrom", Object: "_:ref1"}
	b := Triple{Subject: "wd:Q1", Predicate: "prov:wasDerivedFrom", Object: "_:ref2"}
	if a.Key() != b.Key() {
		t.Error("expected blank-node triples to share a canonical key")
	}
}

func TestDiff(t *testing.T) {
	prev := []Triple{
		{Subject: "wd:Q1", Predicate: "wdt:P1", Object: "\"x\""},
	}
	next := []Triple{
		{Subject: "wd:Q1", Predicate: "wdt:P2", Object: "\"y\""},
	}
	deletions, additions := Diff(prev, next)
	if len(deletions) != 1 || deletions[0] != prev[0] {
		t.Errorf("got deletions %v, want %v", deletions, prev)
	}
	if len(additions) != 1 || additions[0] != next[0] {
		t.Errorf("got additions %v, want %v", additions, next)
	}
}

func TestDiffStableBlankNode(t *testing.T) {
	prev := []Triple{{Subject: "wd:Q1", Predicate: "prov:wasDerivedFrom", Object: "_:ref1"}}
	next := []Triple{{Subject: "wd:Q1", Predicate: "prov:wasDerivedFrom", Object: "_:ref2"}}
	deletions, additions := Diff(prev, next)
	if len(deletions) != 0 || len(additions) != 0 {
		t.Errorf("expected no diff for blank-node-equal triples, got -%v +%v", deletions, additions)
	}
}

func TestDiffDetectsRealChange(t *testing.T) {
	prev := []Triple{
		{Subject: "wd:Q1", Predicate: "wdt:P1", Object: "\"x\""},
	}
	next := []Triple{
		{Subject: "wd:Q1", Predicate: "wdt:P1", Object: "\"x\""},
		{Subject: "wd:Q1", Predicate: "wdt:P2", Object: "\"y\""},
	}
	deletions, additions := Diff(prev, next)
	if len(deletions) != 0 {
		t.Errorf("expected no deletions, got %v", deletions)
	}
	if len(additions) != 1 || additions[0] != next[1] {
		t.Errorf("got additions %v, want [%v]", additions, next[1])
	}
}
