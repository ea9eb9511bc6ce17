// SPDX-License-Identifier: MIT

package wikidated

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/wikidated/wikidated/archive"
)

// GlobalStreamFile covers one calendar month (Month, formatted YYYYMM) of
// the merged, globally revision-ordered stream. Its members are ordered by
// day; day ranges are disjoint and strictly increasing.
type GlobalStreamFile struct {
	Path          string
	Dataset       string
	Month         string
	MinRevisionID int64
	MaxRevisionID int64
	logger        *log.Logger
}

// OpenGlobalStreamFile wraps an existing global-stream archive, parsing
// its month and revision-id range out of the file name.
func OpenGlobalStreamFile(path string, logger *log.Logger) (*GlobalStreamFile, error) {
	dataset, month, lo, hi, ok := ParseGlobalStreamFileName(filepath.Base(path))
	if !ok {
		return nil, fmt.Errorf("wikidated: %s does not match the global-stream file name pattern", path)
	}
	return &GlobalStreamFile{Path: path, Dataset: dataset, Month: month, MinRevisionID: lo, MaxRevisionID: hi, logger: logger}, nil
}

func (f *GlobalStreamFile) archive() *archive.Archive {
	return archive.New(f.Path, f.logger)
}

// IterDays enumerates the day member names present in this file, ordered
// by day.
func (f *GlobalStreamFile) IterDays() ([]string, error) {
	names, err := f.archive().IterFileNames()
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(names))
	for _, name := range names {
		if _, _, _, ok := ParseDayMemberName(name); ok {
			members = append(members, name)
		}
	}
	sort.Strings(members)
	return members, nil
}

// IterAll streams every day member of this file in chronological order,
// applying filter to every revision.
func (f *GlobalStreamFile) IterAll(filter Filter) (*RevisionIterator, error) {
	r, err := f.archive().Read("")
	if err != nil {
		return nil, err
	}
	return newRevisionIterator(r, filter, false), nil
}
