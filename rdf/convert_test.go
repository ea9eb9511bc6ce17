// SPDX-License-Identifier: MIT

package rdf

import (
	"strings"
	"testing"

	"github.com/wikidated/wikidated/wikidata"
)

func rev(entityID string, model string, text string) wikidata.RawRevision {
	return wikidata.RawRevision{
		EntityMetadata: wikidata.EntityMetadata{EntityID: entityID, PageID: 1, Namespace: 0},
		RevisionMetadata: wikidata.RevisionMetadata{
			RevisionID:     100,
			WikibaseModel:  model,
			WikibaseFormat: "application/json",
		},
		Text: &text,
	}
}

func hasTriple(triples []Triple, subject, predicate string, objectContains string) bool {
	for _, t := range triples {
		if t.Subject == subject && t.Predicate == predicate && strings.Contains(t.Object, objectContains) {
			return true
		}
	}
	return false
}

func TestConvertNoText(t *testing.T) {
	c := NewConverter(nil)
	r := rev("Q1", "wikibase-item", "")
	r.Text = nil
	_, err := c.Convert(r)
	var convErr *ConversionError
	if err == nil {
		t.Fatal("expected error")
	}
	if !asConversionError(err, &convErr) || convErr.Reason != ReasonNoText {
		t.Errorf("got %v, want ReasonNoText", err)
	}
}

func asConversionError(err error, target **ConversionError) bool {
	ce, ok := err.(*ConversionError)
	if ok {
		*target = ce
	}
	return ok
}

func TestConvertRedirect(t *testing.T) {
	c := NewConverter(nil)
	r := rev("Q1", "wikibase-item", `{"redirect":{"target":"Q2"}}`)
	result, err := c.Convert(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Triples) != 1 {
		t.Fatalf("got %d triples, want 1", len(result.Triples))
	}
	got := result.Triples[0]
	if got.Subject != "wd:Q1" || got.Predicate != "owl:sameAs" || got.Object != "wd:Q2" {
		t.Errorf("got %+v", got)
	}
}

func TestConvertItemLabelsAndStatements(t *testing.T) {
	const itemJSON = `{
		"labels": {"en": {"language": "en", "value": "Adams"}},
		"descriptions": {"en": {"language": "en", "value": "a person"}},
		"aliases": {"en": [{"language": "en", "value": "A."}]},
		"claims": {
			"P31": [{
				"id": "Q1$guid1",
				"rank": "normal",
				"mainsnak": {
					"snaktype": "value",
					"property": "P31",
					"datatype": "wikibase-item",
					"datavalue": {"type": "wikibase-entityid", "value": {"id": "Q5"}}
				},
				"qualifiers": {
					"P580": [{
						"snaktype": "value",
						"property": "P580",
						"datatype": "time",
						"datavalue": {"type": "time", "value": {"time": "+2001-01-01T00:00:00Z"}}
					}]
				}
			}]
		},
		"sitelinks": {}
	}`

	c := NewConverter(nil)
	r := rev("Q1", "wikibase-item", itemJSON)
	result, err := c.Convert(r)
	if err != nil {
		t.Fatal(err)
	}

	if !hasTriple(result.Triples, "wd:Q1", "rdfs:label", "Adams") {
		t.Error("missing label triple")
	}
	if !hasTriple(result.Triples, "wd:Q1", "schema:description", "a person") {
		t.Error("missing description triple")
	}
	if !hasTriple(result.Triples, "wd:Q1", "skos:altLabel", "A.") {
		t.Error("missing alias triple")
	}
	if !hasTriple(result.Triples, "wd:Q1", "wdt:P31", "wd:Q5") {
		t.Error("missing truthy statement triple")
	}
	if !hasTriple(result.Triples, "wd:Q1", "p:P31", "wds:Q1-guid1") {
		t.Error("missing statement node triple")
	}

	var statementNode string
	for _, tr := range result.Triples {
		if tr.Subject == "wd:Q1" && tr.Predicate == "p:P31" {
			statementNode = tr.Object
		}
	}
	if statementNode == "" {
		t.Fatal("did not find statement node")
	}
	if !hasTriple(result.Triples, statementNode, "ps:P31", "wd:Q5") {
		t.Error("missing ps: value triple on statement node")
	}
	if !hasTriple(result.Triples, statementNode, "pq:P580", "2001-01-01") {
		t.Error("missing qualifier triple on statement node")
	}
}

func TestConvertUnsupportedModel(t *testing.T) {
	c := NewConverter(nil)
	r := rev("Q1", "wikitext", "some text")
	_, err := c.Convert(r)
	var convErr *ConversionError
	if !asConversionError(err, &convErr) || convErr.Reason != ReasonUnsupportedModel {
		t.Errorf("got %v, want ReasonUnsupportedModel", err)
	}
}
