// SPDX-License-Identifier: MIT

package wikidated

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/wikidated/wikidated/archive"
)

// EntityStreamsFile is one per-shard archive of revisions grouped by page,
// covering the inclusive page-id range [MinPageID, MaxPageID].
type EntityStreamsFile struct {
	Path      string
	Dataset   string
	MinPageID int64
	MaxPageID int64
	logger    *log.Logger
}

// OpenEntityStreamsFile wraps an existing entity-streams archive, parsing
// its page-id range out of the file name.
func OpenEntityStreamsFile(path string, logger *log.Logger) (*EntityStreamsFile, error) {
	dataset, lo, hi, ok := ParseEntityStreamsFileName(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("wikidated: %s does not match the entity-streams file name pattern", path)
	}
	return &EntityStreamsFile{Path: path, Dataset: dataset, MinPageID: lo, MaxPageID: hi, logger: logger}, nil
}

func (f *EntityStreamsFile) archive() *archive.Archive {
	return archive.New(f.Path, f.logger)
}

// IterPageIDs enumerates the page-ids with a member in this file, in
// ascending order.
func (f *EntityStreamsFile) IterPageIDs() ([]int64, error) {
	names, err := f.archive().IterFileNames()
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		if id, ok := ParseEntityMemberName(name); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// IterPage streams the single page's member matching filter.PageID. Per
// §4.9, iteration stops at the first revision past any upper bound without
// reading the rest of the member, since a page's revisions are
// monotonically ordered.
func (f *EntityStreamsFile) IterPage(pageID int64, filter Filter) (*RevisionIterator, error) {
	r, err := f.archive().Read(EntityMemberName(pageID))
	if err != nil {
		return nil, err
	}
	return newRevisionIterator(r, filter, true), nil
}

// IterAll streams every member of this file in page-id order, applying
// filter to every revision. Unlike IterPage, scanning cannot stop early:
// ordering is per-member, not per-file, so a later member may still hold
// revisions inside the bounds even after an earlier one ran past them.
func (f *EntityStreamsFile) IterAll(filter Filter) (*RevisionIterator, error) {
	r, err := f.archive().Read("")
	if err != nil {
		return nil, err
	}
	return newRevisionIterator(r, filter, false), nil
}
