// SPDX-License-Identifier: MIT

// Package build implements the C5-C8 pipeline stages: the entity-streams,
// sorted-entity-streams and global-stream builders, and the parallel
// driver that fans C5 out across dump shards.
package build

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/wikidated/wikidated/archive"
	"github.com/wikidated/wikidated/rdf"
	"github.com/wikidated/wikidated/wikidata"
	"github.com/wikidated/wikidated/wikidated"
)

// EntityStreamsStats summarizes one shard's build, used for progress
// reporting and the supplemented build-summary sidecar.
type EntityStreamsStats struct {
	Pages          int
	Revisions      int
	SkippedPages   int
	ConversionErrs map[rdf.Reason]int
}

// BuildEntityStreams runs C5 over a single dump shard: it streams raw
// revisions page-major and chronological-per-page out of dump, converts
// each to RDF, diffs it against the running per-page triple state, and
// writes the resulting Wikidated revisions into a per-shard entity-streams
// archive at outDir/name, where name follows the entity-streams naming
// convention.
//
// Pages for which every revision fails conversion produce no member,
// mirroring _build_archive's peek-then-skip behavior.
func BuildEntityStreams(dump *wikidata.DumpPagesMetaHistory, converter *rdf.Converter, dataset, outDir string, logger *log.Logger) (string, EntityStreamsStats, error) {
	stats := EntityStreamsStats{ConversionErrs: make(map[rdf.Reason]int)}
	name := wikidated.EntityStreamsFileName(dataset, dump.PageIDs[0], dump.PageIDs[1])
	archivePath := filepath.Join(outDir, name)
	contentsDir := filepath.Join(outDir, "tmp."+name+".contents")

	if err := os.RemoveAll(contentsDir); err != nil {
		return "", stats, err
	}
	if err := os.MkdirAll(contentsDir, 0o755); err != nil {
		return "", stats, err
	}

	scanner := dump.IterRevisions()
	var (
		curPageID int64
		curOpen   bool
		state     []rdf.Triple
		writer    *pageWriter
	)

	flush := func() error {
		if writer == nil {
			return nil
		}
		err := writer.close()
		writer = nil
		return err
	}

	for scanner.Scan() {
		raw := scanner.Revision()

		if !curOpen || raw.PageID != curPageID {
			if err := flush(); err != nil {
				return "", stats, err
			}
			curPageID = raw.PageID
			curOpen = true
			state = nil
			stats.Pages++
		}

		converted, err := converter.Convert(raw)
		if err != nil {
			if convErr, ok := err.(*rdf.ConversionError); ok {
				stats.ConversionErrs[convErr.Reason]++
			}
			logf(logger, "build: skipping revision %d (page %d): %v", raw.RevisionID, raw.PageID, err)
			continue
		}

		deletions, additions := rdf.Diff(state, converted.Triples)
		state = converted.Triples

		if writer == nil {
			path := filepath.Join(contentsDir, wikidated.EntityMemberName(curPageID))
			w, err := newPageWriter(path)
			if err != nil {
				return "", stats, err
			}
			writer = w
		}
		wdRev := wikidated.FromRDFRevision(converted, deletions, additions)
		if err := writer.writeLine(wdRev); err != nil {
			return "", stats, err
		}
		stats.Revisions++
	}
	if err := scanner.Err(); err != nil {
		return "", stats, err
	}
	if err := flush(); err != nil {
		return "", stats, err
	}

	entries, err := os.ReadDir(contentsDir)
	if err != nil {
		return "", stats, err
	}
	stats.SkippedPages = stats.Pages - len(entries)

	if _, err := archive.FromDirWithOrder(contentsDir, archivePath, pageOrderKey, logger); err != nil {
		return "", stats, err
	}
	if err := os.RemoveAll(contentsDir); err != nil {
		return "", stats, err
	}

	return archivePath, stats, nil
}

// pageOrderKey orders entity-streams members by numeric page-id, since
// lexicographic filename order ("p10" before "p2") does not match it.
func pageOrderKey(name string) string {
	pageID, ok := wikidated.ParseEntityMemberName(name)
	if !ok {
		return name
	}
	return fmt.Sprintf("%020d", pageID)
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// pageWriter appends one page's Wikidated revisions to a .jsonl file.
type pageWriter struct {
	f   *os.File
	enc *json.Encoder
}

func newPageWriter(path string) (*pageWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &pageWriter{f: f, enc: json.NewEncoder(f)}, nil
}

func (w *pageWriter) writeLine(rev wikidated.Revision) error {
	return w.enc.Encode(rev)
}

func (w *pageWriter) close() error {
	return w.f.Close()
}
