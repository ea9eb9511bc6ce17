// SPDX-License-Identifier: MIT

// Package wikidated defines the built dataset's data model and the
// three-stage archive layout (entity-streams, sorted-entity-streams,
// global-stream) that stores it.
package wikidated

import (
	"time"

	"github.com/wikidated/wikidated/rdf"
)

// Revision is one historic edit of one entity, expressed as a triple diff
// against the entity's previous revision rather than as a full document.
// Field order matches the dataset's on-disk line format and must not
// change, since re-encoding a decoded line is expected to reproduce it.
type Revision struct {
	EntityID         string      `json:"entity_id"`
	PageID           int64       `json:"page_id"`
	Namespace        int         `json:"namespace"`
	Redirect         *string     `json:"redirect"`
	RevisionID       int64       `json:"revision_id"`
	ParentRevisionID *int64      `json:"parent_revision_id"`
	Timestamp        time.Time   `json:"timestamp"`
	Contributor      *string     `json:"contributor"`
	ContributorID    *int64      `json:"contributor_id"`
	IsMinor          bool        `json:"is_minor"`
	Comment          *string     `json:"comment"`
	WikibaseModel    string      `json:"wikibase_model"`
	WikibaseFormat   string      `json:"wikibase_format"`
	SHA1             *string     `json:"sha1"`
	TripleDeletions  [][3]string `json:"triple_deletions"`
	TripleAdditions  [][3]string `json:"triple_additions"`
}

// FromRDFRevision assembles a Revision from a converted revision's metadata
// plus the triple sets it deletes and adds relative to the entity's prior
// state.
func FromRDFRevision(rev rdf.Revision, deletions, additions []rdf.Triple) Revision {
	return Revision{
		EntityID:         rev.EntityID,
		PageID:           rev.PageID,
		Namespace:        rev.Namespace,
		Redirect:         rev.Redirect,
		RevisionID:       rev.RevisionID,
		ParentRevisionID: rev.ParentRevisionID,
		Timestamp:        rev.Timestamp,
		Contributor:      rev.Contributor,
		ContributorID:    rev.ContributorID,
		IsMinor:          rev.IsMinor,
		Comment:          rev.Comment,
		WikibaseModel:    rev.WikibaseModel,
		WikibaseFormat:   rev.WikibaseFormat,
		SHA1:             rev.SHA1,
		TripleDeletions:  triplesToArrays(deletions),
		TripleAdditions:  triplesToArrays(additions),
	}
}

func triplesToArrays(triples []rdf.Triple) [][3]string {
	if len(triples) == 0 {
		return [][3]string{}
	}
	out := make([][3]string, len(triples))
	for i, t := range triples {
		out[i] = [3]string{t.Subject, t.Predicate, t.Object}
	}
	return out
}
