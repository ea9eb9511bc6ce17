// SPDX-License-Identifier: MIT

package build

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/lanrat/extsort"

	"github.com/wikidated/wikidated/archive"
	"github.com/wikidated/wikidated/wikidated"
)

// externalSortThreshold is the line count above which BuildSortedEntityStreams
// spills to disk via extsort instead of sorting in memory. Wikidata shards
// hold a few hundred thousand pages at most, so in-memory sort.SliceStable
// handles the overwhelming majority; the threshold only matters for
// unusually dense shards (or smaller test shards forced below it).
const externalSortThreshold = 2_000_000

// BuildSortedEntityStreams runs C6: it reads every member of an
// entity-streams file, reorders the revisions by ascending revision-id,
// and writes them into a single-member sorted-entity-streams archive at
// outDir. Reordering only; no triple recomputation.
func BuildSortedEntityStreams(entityStreams *wikidated.EntityStreamsFile, outDir string, logger *log.Logger) (string, error) {
	lines, err := readAllLines(entityStreams)
	if err != nil {
		return "", err
	}

	var sorted []string
	if len(lines) > externalSortThreshold {
		sorted, err = externalSortLines(lines)
	} else {
		sorted, err = inMemorySortLines(lines)
	}
	if err != nil {
		return "", err
	}

	name := wikidated.SortedEntityStreamsFileName(entityStreams.Dataset, entityStreams.MinPageID, entityStreams.MaxPageID)
	archivePath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(outDir, "tmp."+name)

	a := archive.New(tmpPath, logger)
	w, err := a.Write("")
	if err != nil {
		return "", err
	}
	for _, line := range sorted {
		if _, err := w.Write([]byte(line)); err != nil {
			w.Close()
			return "", err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			w.Close()
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return "", err
	}
	return archivePath, nil
}

// readAllLines pulls every jsonl line out of every member of an
// entity-streams file, in whatever order the archive stores them.
func readAllLines(entityStreams *wikidated.EntityStreamsFile) ([]string, error) {
	names, err := entityStreams.IterPageIDs()
	if err != nil {
		return nil, err
	}
	a := archive.New(entityStreams.Path, nil)
	var lines []string
	for _, pageID := range names {
		r, err := a.Read(wikidated.EntityMemberName(pageID))
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		err = scanner.Err()
		r.Close()
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

// revisionIDKey extracts the line's revision_id as a fixed-width,
// lexicographically-sortable prefix, since a plain byte-wise sort of the
// JSON itself would not match ascending revision-id order.
func revisionIDKey(line string) (string, error) {
	var peek struct {
		RevisionID int64 `json:"revision_id"`
	}
	if err := json.Unmarshal([]byte(line), &peek); err != nil {
		return "", err
	}
	return fmt.Sprintf("%020d", peek.RevisionID), nil
}

func inMemorySortLines(lines []string) ([]string, error) {
	keyed := make([][2]string, len(lines))
	for i, line := range lines {
		key, err := revisionIDKey(line)
		if err != nil {
			return nil, err
		}
		keyed[i] = [2]string{key, line}
	}
	sort.SliceStable(keyed, func(i, j int) bool { return keyed[i][0] < keyed[j][0] })
	out := make([]string, len(keyed))
	for i, kv := range keyed {
		out[i] = kv[1]
	}
	return out, nil
}

// externalSortLines sorts lines whose volume is too large to comfortably
// hold twice over in memory, via lanrat/extsort's disk-spilling merge
// sort. Each line is prefixed with a fixed-width revision-id key so that
// extsort's lexicographic string comparison matches ascending
// revision-id order; the key is stripped back off before returning.
func externalSortLines(lines []string) ([]string, error) {
	input := make(chan string)
	sorter, outChan, errChan := extsort.Strings(input, nil)

	go func() {
		defer close(input)
		for _, line := range lines {
			key, err := revisionIDKey(line)
			if err != nil {
				continue
			}
			input <- key + "\x00" + line
		}
	}()

	ctx := context.Background()
	go sorter.Sort(ctx)

	out := make([]string, 0, len(lines))
	for keyed := range outChan {
		sep := len("00000000000000000000")
		out = append(out, keyed[sep+1:])
	}
	if err := <-errChan; err != nil {
		return nil, err
	}
	return out, nil
}
