// SPDX-License-Identifier: MIT

package wikidated

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/wikidated/wikidated/archive"
)

// SortedEntityStreamsFile holds the same revisions as its corresponding
// EntityStreamsFile, reordered into a single member sorted globally by
// revision-id.
type SortedEntityStreamsFile struct {
	Path      string
	Dataset   string
	MinPageID int64
	MaxPageID int64
	logger    *log.Logger
}

// OpenSortedEntityStreamsFile wraps an existing sorted-entity-streams
// archive, parsing its page-id range out of the file name.
func OpenSortedEntityStreamsFile(path string, logger *log.Logger) (*SortedEntityStreamsFile, error) {
	dataset, lo, hi, ok := ParseSortedEntityStreamsFileName(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("wikidated: %s does not match the sorted-entity-streams file name pattern", path)
	}
	return &SortedEntityStreamsFile{Path: path, Dataset: dataset, MinPageID: lo, MaxPageID: hi, logger: logger}, nil
}

func (f *SortedEntityStreamsFile) archive() *archive.Archive {
	return archive.New(f.Path, f.logger)
}

// IterAll streams this file's sole member in revision-id order, applying
// filter to every revision.
func (f *SortedEntityStreamsFile) IterAll(filter Filter) (*RevisionIterator, error) {
	r, err := f.archive().Read("")
	if err != nil {
		return nil, err
	}
	return newRevisionIterator(r, filter, false), nil
}
