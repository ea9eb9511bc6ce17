// SPDX-License-Identifier: MIT

// Package wikidata parses raw Wikidata dump files: pages-meta-history XML
// shards, the sites SQL table, and the dump-status catalog.
package wikidata

import "time"

// EntityMetadata identifies the entity a revision belongs to.
type EntityMetadata struct {
	EntityID  string
	PageID    int64
	Namespace int
	Redirect  *string
}

// RevisionMetadata is the per-edit metadata shared by raw and converted
// revisions.
type RevisionMetadata struct {
	RevisionID       int64
	ParentRevisionID *int64
	Timestamp        time.Time
	Contributor      *string
	ContributorID    *int64
	IsMinor          bool
	Comment          *string
	WikibaseModel    string
	WikibaseFormat   string
	SHA1             *string
}

// RawRevision is one historic revision of one Wikidata entity, as read
// directly off an XML dump shard, before RDF conversion. Immutable once
// parsed.
type RawRevision struct {
	EntityMetadata
	RevisionMetadata
	Text *string
}
