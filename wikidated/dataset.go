// SPDX-License-Identifier: MIT

package wikidated

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/wikidated/wikidated/rangemap"
)

// RevisionStream is a pull-based sequence of revisions, satisfied by both
// RevisionIterator and the multi-file streams Dataset assembles for
// range-scoped queries.
type RevisionStream interface {
	Scan() bool
	Revision() Revision
	Err() error
	Close() error
}

// revisionSource is implemented by the file types that can stream all of
// their revisions through a single Filter.
type revisionSource interface {
	IterAll(filter Filter) (*RevisionIterator, error)
}

// Dataset is the C9 query facade over a built dataset: a set of
// entity-streams files (one per contiguous page-id range) and a set of
// global-stream files (one per calendar month).
type Dataset struct {
	Name                  string
	entityStreams         []*EntityStreamsFile
	entityStreamsByPageID *rangemap.Map[*EntityStreamsFile]
	globalStreams         []*GlobalStreamFile
	logger                *log.Logger
}

// NewDataset builds the query indexes over an already-loaded set of
// entity-streams and global-stream files. Entity-streams page-id ranges
// must be disjoint; global-stream files are sorted into month order.
func NewDataset(name string, entityStreams []*EntityStreamsFile, globalStreams []*GlobalStreamFile, logger *log.Logger) (*Dataset, error) {
	sorted := append([]*EntityStreamsFile(nil), entityStreams...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinPageID < sorted[j].MinPageID })

	byPageID := rangemap.New[*EntityStreamsFile]()
	for _, f := range sorted {
		key := rangemap.Range{Start: f.MinPageID, Stop: f.MaxPageID + 1}
		if err := byPageID.Insert(key, f); err != nil {
			return nil, fmt.Errorf("wikidated: %s: %w", f.Path, err)
		}
	}

	streams := append([]*GlobalStreamFile(nil), globalStreams...)
	sort.Slice(streams, func(i, j int) bool { return streams[i].MinRevisionID < streams[j].MinRevisionID })

	return &Dataset{
		Name:                  name,
		entityStreams:         sorted,
		entityStreamsByPageID: byPageID,
		globalStreams:         streams,
		logger:                logger,
	}, nil
}

// IterPageIDs enumerates every page-id present across all entity-streams
// files, ascending.
func (d *Dataset) IterPageIDs() ([]int64, error) {
	var all []int64
	for _, f := range d.entityStreams {
		ids, err := f.IterPageIDs()
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, nil
}

// IterRevisions implements the C9 routing policy: a single page_id goes
// straight to its owning entity-streams file; a page-id bound without an
// exact page_id fans out over the overlapping entity-streams files; with
// neither, the query is answered from the global stream.
func (d *Dataset) IterRevisions(filter Filter) (RevisionStream, error) {
	if filter.PageID != nil {
		if filter.MinPageID != nil || filter.MaxPageID != nil {
			return nil, fmt.Errorf("wikidated: page_id cannot be combined with min_page_id/max_page_id")
		}
		f, ok := d.entityStreamsByPageID.Get(*filter.PageID)
		if !ok {
			return newChainIterator(nil, filter), nil
		}
		return f.IterPage(*filter.PageID, filter)
	}

	if filter.MinPageID != nil || filter.MaxPageID != nil {
		lo, hi := int64(0), int64(math.MaxInt64)
		if filter.MinPageID != nil {
			lo = *filter.MinPageID
		}
		if filter.MaxPageID != nil {
			hi = *filter.MaxPageID
		}
		stop := hi
		if stop < math.MaxInt64 {
			stop++
		}
		files := d.entityStreamsByPageID.Slice(lo, stop)
		sources := make([]revisionSource, len(files))
		for i, f := range files {
			sources[i] = f
		}
		return newChainIterator(sources, filter), nil
	}

	files := d.overlappingGlobalStreams(filter)
	sources := make([]revisionSource, len(files))
	for i, f := range files {
		sources[i] = f
	}
	return newChainIterator(sources, filter), nil
}

func (d *Dataset) overlappingGlobalStreams(filter Filter) []*GlobalStreamFile {
	var out []*GlobalStreamFile
	for _, f := range d.globalStreams {
		if filter.MinRevisionID != nil && f.MaxRevisionID < *filter.MinRevisionID {
			continue
		}
		if filter.MaxRevisionID != nil && f.MinRevisionID > *filter.MaxRevisionID {
			continue
		}
		if filter.MinTimestamp != nil && f.Month < monthOf(*filter.MinTimestamp) {
			continue
		}
		if filter.MaxTimestamp != nil && f.Month > monthOf(*filter.MaxTimestamp) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func monthOf(t time.Time) string { return t.UTC().Format("200601") }

// chainIterator concatenates revisionSources into a single RevisionStream,
// opening each member lazily so that range-scoped queries never hold more
// than one archive reader open at a time.
type chainIterator struct {
	sources []revisionSource
	filter  Filter
	next    int
	cur     *RevisionIterator
	err     error
}

func newChainIterator(sources []revisionSource, filter Filter) *chainIterator {
	return &chainIterator{sources: sources, filter: filter}
}

func (c *chainIterator) Scan() bool {
	for {
		if c.cur == nil {
			if c.next >= len(c.sources) {
				return false
			}
			it, err := c.sources[c.next].IterAll(c.filter)
			c.next++
			if err != nil {
				c.err = err
				return false
			}
			c.cur = it
		}
		if c.cur.Scan() {
			return true
		}
		if err := c.cur.Err(); err != nil {
			c.err = err
			c.cur.Close()
			c.cur = nil
			return false
		}
		c.cur.Close()
		c.cur = nil
	}
}

func (c *chainIterator) Revision() Revision { return c.cur.Revision() }
func (c *chainIterator) Err() error         { return c.err }

func (c *chainIterator) Close() error {
	if c.cur != nil {
		return c.cur.Close()
	}
	return nil
}
