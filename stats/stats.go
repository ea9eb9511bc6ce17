// SPDX-License-Identifier: MIT

// Package stats collects and persists build-run statistics: a
// zstd-compressed CSV of per-reason RDF conversion error counts (the
// sidecar the original's serializer keeps beside its output) and a
// brotli-compressed build-summary report of page, revision, skipped-page
// and conversion-error counts.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"

	"github.com/wikidated/wikidated/build"
	"github.com/wikidated/wikidated/rdf"
)

// Collector accumulates counts across every shard built in one run.
type Collector struct {
	Pages          int
	Revisions      int
	SkippedPages   int
	ConversionErrs map[rdf.Reason]int
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{ConversionErrs: make(map[rdf.Reason]int)}
}

// Add folds one shard's EntityStreamsStats into the running totals.
func (c *Collector) Add(s build.EntityStreamsStats) {
	c.Pages += s.Pages
	c.Revisions += s.Revisions
	c.SkippedPages += s.SkippedPages
	for reason, n := range s.ConversionErrs {
		c.ConversionErrs[reason] += n
	}
}

// WriteConversionErrorsCSV writes one row per conversion-error reason,
// zstd-compressed, to path via a tmp-prefixed-then-rename publish.
func (c *Collector) WriteConversionErrorsCSV(path string) error {
	tmpPath := filepath.Join(filepath.Dir(path), "tmp."+filepath.Base(path))
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}

	w := csv.NewWriter(zw)
	if err := w.Write([]string{"reason", "count"}); err != nil {
		return err
	}
	reasons := make([]string, 0, len(c.ConversionErrs))
	for reason := range c.ConversionErrs {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		if err := w.Write([]string{reason, fmt.Sprint(c.ConversionErrs[rdf.Reason(reason)])}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Summary is the per-run build-summary report.
type Summary struct {
	Dataset        string         `json:"dataset"`
	BuiltAt        time.Time      `json:"built_at"`
	Pages          int            `json:"pages"`
	Revisions      int            `json:"revisions"`
	SkippedPages   int            `json:"skipped_pages"`
	ConversionErrs map[string]int `json:"conversion_errors"`
}

// WriteSummary writes a brotli-compressed JSON build-summary report to
// path via a tmp-prefixed-then-rename publish, mirroring how
// processEntities stores its sitelinks file brotli-compressed.
func (c *Collector) WriteSummary(dataset string, builtAt time.Time, path string) error {
	errs := make(map[string]int, len(c.ConversionErrs))
	for reason, n := range c.ConversionErrs {
		errs[string(reason)] = n
	}
	summary := Summary{
		Dataset:        dataset,
		BuiltAt:        builtAt,
		Pages:          c.Pages,
		Revisions:      c.Revisions,
		SkippedPages:   c.SkippedPages,
		ConversionErrs: errs,
	}

	tmpPath := filepath.Join(filepath.Dir(path), "tmp."+filepath.Base(path))
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := brotli.NewWriter(f)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(summary); err != nil {
		return err
	}
	if err := bw.Close(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ReadSummary decodes a brotli-compressed build-summary report.
func ReadSummary(r io.Reader) (Summary, error) {
	var s Summary
	dec := json.NewDecoder(brotli.NewReader(r))
	err := dec.Decode(&s)
	return s, err
}
