// SPDX-License-Identifier: MIT

package rdf

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/wikidated/wikidated/wikidata"
	"golang.org/x/text/unicode/norm"
)

// ConversionError is raised by Convert when a revision cannot be turned
// into RDF. Reason classifies the cause so C5 can count occurrences by
// kind.
type ConversionError struct {
	Reason   Reason
	EntityID string
	PageID   int64
	RevisionID int64
	Err      error
}

// Reason enumerates why RDF conversion of a revision failed.
type Reason string

const (
	ReasonNoText            Reason = "no_text"
	ReasonUnsupportedModel  Reason = "unsupported_model"
	ReasonSerializerFailure Reason = "serializer_failure"
)

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s (%s, page ID: %d, revision ID: %d)",
		e.Reason, e.EntityID, e.PageID, e.RevisionID)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Revision is a raw revision with its body replaced by the triples the
// converter extracted from it.
type Revision struct {
	wikidata.EntityMetadata
	wikidata.RevisionMetadata
	Triples []Triple
}

// Converter maps one raw revision's JSON payload to a canonical set of
// N-triples. It holds a Sites lookup (for sitelink IRIs) and the prefix
// table; both are safe to share across revisions within one worker, but
// Converter itself, like the serializer it fronts, is not safe for
// concurrent use from multiple goroutines.
type Converter struct {
	sites   *wikidata.Sites
	prefixes *PrefixTable
}

// NewConverter constructs a converter bound to a shard's shared sites
// table, mirroring the one-time per-worker initialization of the external
// RDF-serializer runtime.
func NewConverter(sites *wikidata.Sites) *Converter {
	return &Converter{sites: sites, prefixes: NewPrefixTable()}
}

// Convert turns one raw revision into its RDF triples, or a typed
// ConversionError. It never panics on malformed input; any unexpected
// shape is reported as ReasonSerializerFailure.
func (c *Converter) Convert(revision wikidata.RawRevision) (Revision, error) {
	fail := func(reason Reason, err error) (Revision, error) {
		return Revision{}, &ConversionError{
			Reason:     reason,
			EntityID:   revision.EntityID,
			PageID:     revision.PageID,
			RevisionID: revision.RevisionID,
			Err:        err,
		}
	}

	if revision.Text == nil {
		return fail(ReasonNoText, nil)
	}
	text := *revision.Text

	if strings.Contains(text, `"redirect":`) {
		target, err := parseRedirectTarget(text)
		if err != nil {
			return fail(ReasonSerializerFailure, err)
		}
		triples := []Triple{{
			Subject:   c.prefixes.Shorten(entityIRI(revision.EntityID)),
			Predicate: c.prefixes.Shorten("<http://www.w3.org/2002/07/owl#sameAs>"),
			Object:    c.prefixes.Shorten(entityIRI(target)),
		}}
		return c.toRevision(revision, triples), nil
	}

	if revision.WikibaseModel != "wikibase-item" && revision.WikibaseModel != "wikibase-property" {
		return fail(ReasonUnsupportedModel, fmt.Errorf("model %q", revision.WikibaseModel))
	}

	var doc entityDocument
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return fail(ReasonSerializerFailure, err)
	}

	switch revision.WikibaseModel {
	case "wikibase-item":
		triples := c.convertEntityTerms(revision.EntityID, doc)
		triples = append(triples, c.convertStatements(revision.EntityID, doc.Claims)...)
		triples = append(triples, c.convertSiteLinks(revision.EntityID, doc.SiteLinks)...)
		return c.toRevision(revision, triples), nil
	case "wikibase-property":
		triples := c.convertEntityTerms(revision.EntityID, doc)
		triples = append(triples, c.convertStatements(revision.EntityID, doc.Claims)...)
		if doc.DataType != "" {
			triples = append(triples, Triple{
				Subject:   c.prefixes.Shorten(entityIRI(revision.EntityID)),
				Predicate: c.prefixes.Shorten("<http://wikiba.se/ontology#propertyType>"),
				Object:    c.prefixes.Shorten(dataTypeIRI(doc.DataType)),
			})
		}
		return c.toRevision(revision, triples), nil
	default:
		return fail(ReasonUnsupportedModel, fmt.Errorf("model %q", revision.WikibaseModel))
	}
}

func (c *Converter) toRevision(revision wikidata.RawRevision, triples []Triple) Revision {
	sort.Slice(triples, func(i, j int) bool { return Less(triples[i], triples[j]) })
	return Revision{
		EntityMetadata:   revision.EntityMetadata,
		RevisionMetadata: revision.RevisionMetadata,
		Triples:          triples,
	}
}

// entityDocument is the subset of the Wikibase JSON entity schema the
// converter needs; unrecognized fields are ignored by encoding/json.
type entityDocument struct {
	Labels       map[string]termValue            `json:"labels"`
	Descriptions map[string]termValue            `json:"descriptions"`
	Aliases      map[string][]termValue          `json:"aliases"`
	Claims       map[string][]statement          `json:"claims"`
	SiteLinks    map[string]siteLink             `json:"sitelinks"`
	DataType     string                          `json:"datatype"`
}

type termValue struct {
	Language string `json:"language"`
	Value    string `json:"value"`
}

type siteLink struct {
	Site  string   `json:"site"`
	Title string   `json:"title"`
	Badges []string `json:"badges"`
}

type statement struct {
	ID         string                    `json:"id"`
	MainSnak   snak                      `json:"mainsnak"`
	Rank       string                    `json:"rank"`
	Qualifiers map[string][]snak         `json:"qualifiers"`
	References []reference               `json:"references"`
}

type reference struct {
	Snaks map[string][]snak `json:"snaks"`
}

type snak struct {
	SnakType string          `json:"snaktype"`
	Property string          `json:"property"`
	DataType string          `json:"datatype"`
	DataValue snakDataValue  `json:"datavalue"`
}

type snakDataValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (c *Converter) convertEntityTerms(entityID string, doc entityDocument) []Triple {
	subject := c.prefixes.Shorten(entityIRI(entityID))
	var triples []Triple

	languages := make([]string, 0, len(doc.Labels))
	for lang := range doc.Labels {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	for _, lang := range languages {
		label := doc.Labels[lang]
		literal := languageLiteral(label.Value, lang)
		triples = append(triples,
			Triple{Subject: subject, Predicate: c.prefixes.Shorten("<http://www.w3.org/2000/01/rdf-schema#label>"), Object: literal},
			Triple{Subject: subject, Predicate: c.prefixes.Shorten("<http://schema.org/name>"), Object: literal},
		)
	}

	descLangs := make([]string, 0, len(doc.Descriptions))
	for lang := range doc.Descriptions {
		descLangs = append(descLangs, lang)
	}
	sort.Strings(descLangs)
	for _, lang := range descLangs {
		desc := doc.Descriptions[lang]
		triples = append(triples, Triple{
			Subject:   subject,
			Predicate: c.prefixes.Shorten("<http://schema.org/description>"),
			Object:    languageLiteral(desc.Value, lang),
		})
	}

	aliasLangs := make([]string, 0, len(doc.Aliases))
	for lang := range doc.Aliases {
		aliasLangs = append(aliasLangs, lang)
	}
	sort.Strings(aliasLangs)
	for _, lang := range aliasLangs {
		for _, alias := range doc.Aliases[lang] {
			triples = append(triples, Triple{
				Subject:   subject,
				Predicate: c.prefixes.Shorten("<http://www.w3.org/2004/02/skos/core#altLabel>"),
				Object:    languageLiteral(alias.Value, lang),
			})
		}
	}

	return triples
}

func (c *Converter) convertStatements(entityID string, claims map[string][]statement) []Triple {
	var triples []Triple

	properties := make([]string, 0, len(claims))
	for p := range claims {
		properties = append(properties, p)
	}
	sort.Strings(properties)

	entitySubject := c.prefixes.Shorten(entityIRI(entityID))
	for _, property := range properties {
		for _, stmt := range claims[property] {
			if stmt.MainSnak.SnakType != "value" {
				continue
			}
			value, ok := c.snakValueIRIOrLiteral(stmt.MainSnak)
			if !ok {
				continue
			}

			// Truthy statement: direct wdt: edge, emitted for every
			// non-deprecated statement. Normal-rank statements keep
			// their edge even when the property also has a
			// preferred-rank statement.
			if stmt.Rank != "deprecated" {
				triples = append(triples, Triple{
					Subject:   entitySubject,
					Predicate: c.prefixes.Shorten(directPropertyIRI(property)),
					Object:    value,
				})
			}

			statementNode := c.statementNodeIRI(entityID, stmt)
			triples = append(triples,
				Triple{Subject: entitySubject, Predicate: c.prefixes.Shorten(propertyIRI(property)), Object: statementNode},
				Triple{Subject: statementNode, Predicate: c.prefixes.Shorten(statementValueIRI(property)), Object: value},
				Triple{Subject: statementNode, Predicate: c.prefixes.Shorten("<http://wikiba.se/ontology#rank>"), Object: c.prefixes.Shorten(rankIRI(stmt.Rank))},
			)

			qualProps := make([]string, 0, len(stmt.Qualifiers))
			for p := range stmt.Qualifiers {
				qualProps = append(qualProps, p)
			}
			sort.Strings(qualProps)
			for _, qp := range qualProps {
				for _, qs := range stmt.Qualifiers[qp] {
					if qv, ok := c.snakValueIRIOrLiteral(qs); ok {
						triples = append(triples, Triple{
							Subject:   statementNode,
							Predicate: c.prefixes.Shorten(qualifierPropertyIRI(qp)),
							Object:    qv,
						})
					}
				}
			}

			for _, ref := range stmt.References {
				refNode := c.referenceNodeIRI(statementNode, ref)
				triples = append(triples, Triple{
					Subject:   statementNode,
					Predicate: c.prefixes.Shorten("<http://www.w3.org/ns/prov#wasDerivedFrom>"),
					Object:    refNode,
				})
				refProps := make([]string, 0, len(ref.Snaks))
				for p := range ref.Snaks {
					refProps = append(refProps, p)
				}
				sort.Strings(refProps)
				for _, rp := range refProps {
					for _, rs := range ref.Snaks[rp] {
						if rv, ok := c.snakValueIRIOrLiteral(rs); ok {
							triples = append(triples, Triple{
								Subject:   refNode,
								Predicate: c.prefixes.Shorten(referencePropertyIRI(rp)),
								Object:    rv,
							})
						}
					}
				}
			}
		}
	}

	return triples
}

// statementNodeIRI derives a stable statement node IRI from the
// statement's own globally unique ID (Wikibase assigns one deterministic
// GUID per statement; there is no need to mint a fresh blank node for it).
func (c *Converter) statementNodeIRI(entityID string, stmt statement) string {
	id := stmt.ID
	if id == "" {
		id = entityID + "-" + hashStatement(stmt)
	}
	id = strings.ReplaceAll(id, "$", "-")
	return c.prefixes.Shorten(fmt.Sprintf("<http://www.wikidata.org/entity/statement/%s>", id))
}

// referenceNodeIRI mimics WDTK's reference hash nodes: references have no
// persistent ID of their own in the dump JSON, only their content, so the
// node is a blank node labeled with a hash of the statement node and the
// reference's snaks. The same reference content therefore gets the same
// label on every call; where the node is a triple's object, blank-node
// equality also makes any two such triples with equal subject and
// predicate compare equal.
func (c *Converter) referenceNodeIRI(statementNode string, ref reference) string {
	return "_:ref" + hashReference(statementNode, ref)
}

func hashStatement(stmt statement) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%s|%s", stmt.MainSnak.Property, stmt.MainSnak.DataType, stmt.MainSnak.DataValue.Value)
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func hashReference(statementNode string, ref reference) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s", statementNode)
	props := make([]string, 0, len(ref.Snaks))
	for p := range ref.Snaks {
		props = append(props, p)
	}
	sort.Strings(props)
	for _, p := range props {
		for _, s := range ref.Snaks[p] {
			fmt.Fprintf(h, "|%s=%s", p, s.DataValue.Value)
		}
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *Converter) convertSiteLinks(entityID string, links map[string]siteLink) []Triple {
	var triples []Triple
	keys := make([]string, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	subject := c.prefixes.Shorten(entityIRI(entityID))
	for _, key := range keys {
		link := links[key]
		var domain string
		if c.sites != nil {
			if site, ok := c.sites.Resolve(link.Site); ok {
				domain = site.Domain
			}
		}
		if domain == "" {
			continue
		}
		pageIRI := fmt.Sprintf("<https://%s/wiki/%s>", domain, normalizeSiteLinkTitle(link.Title))
		triples = append(triples, Triple{
			Subject:   c.prefixes.Shorten(pageIRI),
			Predicate: c.prefixes.Shorten("<http://schema.org/about>"),
			Object:    subject,
		})
	}
	return triples
}

// normalizeSiteLinkTitle NFC-normalizes a sitelink title the way the
// MediaWiki title normalizer does before it becomes part of a page IRI.
func normalizeSiteLinkTitle(title string) string {
	title = norm.NFC.String(title)
	return strings.ReplaceAll(title, " ", "_")
}

func (c *Converter) snakValueIRIOrLiteral(s snak) (string, bool) {
	if s.SnakType != "value" {
		return "", false
	}
	switch s.DataType {
	case "wikibase-item", "wikibase-property":
		var v struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(s.DataValue.Value, &v); err != nil {
			return "", false
		}
		return c.prefixes.Shorten(entityIRI(v.ID)), true
	case "string", "external-id", "url", "commonsMedia":
		var v string
		if err := json.Unmarshal(s.DataValue.Value, &v); err != nil {
			return "", false
		}
		return quoteLiteral(v), true
	case "monolingualtext":
		var v termValue
		if err := json.Unmarshal(s.DataValue.Value, &v); err != nil {
			return "", false
		}
		return languageLiteral(v.Value, v.Language), true
	case "time":
		var v struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(s.DataValue.Value, &v); err != nil {
			return "", false
		}
		return typedLiteral(v.Time, "<http://www.w3.org/2001/XMLSchema#dateTime>"), true
	case "quantity":
		var v struct {
			Amount string `json:"amount"`
		}
		if err := json.Unmarshal(s.DataValue.Value, &v); err != nil {
			return "", false
		}
		return typedLiteral(v.Amount, "<http://www.w3.org/2001/XMLSchema#decimal>"), true
	default:
		return "_:" + hashStatement(statement{MainSnak: s}), true
	}
}

func entityIRI(id string) string {
	return fmt.Sprintf("<http://www.wikidata.org/entity/%s>", id)
}

func directPropertyIRI(id string) string {
	return fmt.Sprintf("<http://www.wikidata.org/prop/direct/%s>", id)
}

func propertyIRI(id string) string {
	return fmt.Sprintf("<http://www.wikidata.org/prop/%s>", id)
}

func statementValueIRI(id string) string {
	return fmt.Sprintf("<http://www.wikidata.org/prop/statement/%s>", id)
}

func qualifierPropertyIRI(id string) string {
	return fmt.Sprintf("<http://www.wikidata.org/prop/qualifier/%s>", id)
}

func referencePropertyIRI(id string) string {
	return fmt.Sprintf("<http://www.wikidata.org/prop/reference/%s>", id)
}

func dataTypeIRI(dataType string) string {
	return fmt.Sprintf("<http://wikiba.se/ontology#%s>", strings.ReplaceAll(dataType, "-", "_"))
}

func rankIRI(rank string) string {
	switch rank {
	case "preferred":
		return "<http://wikiba.se/ontology#PreferredRank>"
	case "deprecated":
		return "<http://wikiba.se/ontology#DeprecatedRank>"
	default:
		return "<http://wikiba.se/ontology#NormalRank>"
	}
}

func quoteLiteral(s string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
	return `"` + escaped + `"`
}

func languageLiteral(s, lang string) string {
	return quoteLiteral(s) + "@" + lang
}

func typedLiteral(s, typeIRI string) string {
	return quoteLiteral(s) + "^^" + typeIRI
}

func parseRedirectTarget(text string) (string, error) {
	var body struct {
		Redirect struct {
			Target string `json:"target"`
		} `json:"redirect"`
	}
	if err := json.Unmarshal([]byte(text), &body); err != nil {
		return "", err
	}
	if body.Redirect.Target == "" {
		return "", fmt.Errorf("rdf: redirect document has no target")
	}
	return body.Redirect.Target, nil
}
