// SPDX-License-Identifier: MIT

package stats

import (
	"fmt"
	"log"

	"github.com/wikidated/wikidated/wikidated"
)

// ValidationError describes one invariant violation found in a built
// dataset.
type ValidationError struct {
	File   string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.File, e.Reason)
}

// ValidateEntityStreams checks property 1 (every revision's page-id lies
// inside its file's page-id range), property 2 (strictly increasing
// revision-id within a page), property 3 (folding triple_deletions and
// triple_additions in revision order from the empty set never deletes a
// triple the fold does not currently hold), and property 4 (a revision's
// own deletions and additions are disjoint) for one entity-streams file.
func ValidateEntityStreams(f *wikidated.EntityStreamsFile, logger *log.Logger) ([]ValidationError, error) {
	var errs []ValidationError

	pageIDs, err := f.IterPageIDs()
	if err != nil {
		return nil, err
	}
	for _, pageID := range pageIDs {
		if pageID < f.MinPageID || pageID > f.MaxPageID {
			errs = append(errs, ValidationError{f.Path, fmt.Sprintf("page %d outside range [%d, %d]", pageID, f.MinPageID, f.MaxPageID)})
		}

		it, err := f.IterPage(pageID, wikidated.Filter{})
		if err != nil {
			return nil, err
		}
		var lastRevID int64 = -1
		var lastSeen bool
		state := make(map[[3]string]struct{})
		for it.Scan() {
			rev := it.Revision()
			if rev.PageID != pageID {
				errs = append(errs, ValidationError{f.Path, fmt.Sprintf("member p%d.jsonl contains revision for page %d", pageID, rev.PageID)})
			}
			if lastSeen && rev.RevisionID <= lastRevID {
				errs = append(errs, ValidationError{f.Path, fmt.Sprintf("page %d: revision-id %d does not strictly increase after %d", pageID, rev.RevisionID, lastRevID)})
			}
			if overlap, ok := disjointTriples(rev.TripleDeletions, rev.TripleAdditions); !ok {
				errs = append(errs, ValidationError{f.Path, fmt.Sprintf("page %d revision %d: triple %v is in both deletions and additions", pageID, rev.RevisionID, overlap)})
			}
			if missing, ok := foldRevision(state, rev.TripleDeletions, rev.TripleAdditions); !ok {
				errs = append(errs, ValidationError{f.Path, fmt.Sprintf("page %d revision %d: deletes triple %v not present in the folded state", pageID, rev.RevisionID, missing)})
			}
			lastRevID = rev.RevisionID
			lastSeen = true
		}
		if err := it.Err(); err != nil {
			it.Close()
			return nil, err
		}
		it.Close()
	}
	return errs, nil
}

func disjointTriples(deletions, additions [][3]string) ([3]string, bool) {
	seen := make(map[[3]string]struct{}, len(deletions))
	for _, t := range deletions {
		seen[t] = struct{}{}
	}
	for _, t := range additions {
		if _, ok := seen[t]; ok {
			return t, false
		}
	}
	return [3]string{}, true
}

// foldRevision applies one revision's deletions and additions to state in
// place, the same fold property 3 describes starting from the empty set
// across a page's whole revision sequence. It reports the first deleted
// triple not already present in state, if any, before applying the
// revision's additions.
func foldRevision(state map[[3]string]struct{}, deletions, additions [][3]string) ([3]string, bool) {
	ok := true
	var missing [3]string
	for _, t := range deletions {
		if _, present := state[t]; !present {
			if ok {
				missing = t
				ok = false
			}
			continue
		}
		delete(state, t)
	}
	for _, t := range additions {
		state[t] = struct{}{}
	}
	return missing, ok
}

// ValidateGlobalStream checks property 5: revision-id ranges across
// global-stream files (and across day members within one file) are
// disjoint and strictly increasing.
func ValidateGlobalStream(files []*wikidated.GlobalStreamFile) []ValidationError {
	var errs []ValidationError
	var lastMax int64 = -1
	var lastSeen bool
	for _, f := range files {
		if lastSeen && f.MinRevisionID <= lastMax {
			errs = append(errs, ValidationError{f.Path, fmt.Sprintf("min revision-id %d does not exceed previous file's max %d", f.MinRevisionID, lastMax)})
		}
		lastMax = f.MaxRevisionID
		lastSeen = true

		days, err := f.IterDays()
		if err != nil {
			errs = append(errs, ValidationError{f.Path, err.Error()})
			continue
		}
		var dayLastMax int64 = -1
		var dayLastSeen bool
		for _, name := range days {
			_, lo, hi, ok := wikidated.ParseDayMemberName(name)
			if !ok {
				continue
			}
			if dayLastSeen && lo <= dayLastMax {
				errs = append(errs, ValidationError{f.Path, fmt.Sprintf("day member %s: min revision-id %d does not exceed previous day's max %d", name, lo, dayLastMax)})
			}
			dayLastMax = hi
			dayLastSeen = true
		}
	}
	return errs
}
