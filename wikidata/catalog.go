// SPDX-License-Identifier: MIT

package wikidata

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// DumpFile is one file listed in a dump job: a sites-table SQL dump or one
// shard of the pages-meta-history XML dumps.
type DumpFile struct {
	Path string
	URL  string
	SHA1 string
	Size int64
}

// Download fetches the file to Path if it isn't already present with a
// matching SHA-1, writing to a sibling "tmp."-prefixed path and renaming
// into place only once the hash has been verified.
func (f *DumpFile) Download(client *http.Client, logger *log.Logger) error {
	if existing, err := checkSHA1(f.Path, f.SHA1); err == nil && existing {
		logf(logger, "file %s already present with matching sha1, skipping download", f.Path)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	tmpPath := filepath.Join(filepath.Dir(f.Path), "tmp."+filepath.Base(f.Path))
	logf(logger, "downloading %s to %s", f.URL, tmpPath)

	if err := downloadFile(client, f.URL, tmpPath); err != nil {
		return err
	}
	ok, err := checkSHA1(tmpPath, f.SHA1)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wikidata: %s has wrong sha1 after download", f.Path)
	}
	return os.Rename(tmpPath, f.Path)
}

func downloadFile(client *http.Client, url, dest string) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wikidata: GET %s: status %s", url, resp.Status)
	}

	fd, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer fd.Close()

	_, err = io.Copy(fd, resp.Body)
	return err
}

func checkSHA1(path, expected string) (bool, error) {
	fd, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	defer fd.Close()

	h := sha1.New()
	if _, err := io.Copy(h, fd); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == expected, nil
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}

// dumpStatusFile and dumpStatusJob mirror the JSON structure Wikimedia
// publishes at https://dumps.wikimedia.org/wikidatawiki/{version}/dumpstatus.json.
type dumpStatusFile struct {
	Size int64  `json:"size"`
	URL  string `json:"url"`
	MD5  string `json:"md5"`
	SHA1 string `json:"sha1"`
}

type dumpStatusJob struct {
	Status  string                    `json:"status"`
	Updated string                    `json:"updated"`
	Files   map[string]dumpStatusFile `json:"files"`
}

type dumpStatus struct {
	Jobs    map[string]dumpStatusJob `json:"jobs"`
	Version string                   `json:"version"`
}

// Catalog is a parsed, validated wikidatawiki-{version}-dumpstatus.json.
// It resolves the two job kinds Wikidated needs: the sites table and the
// pages-meta-history shards.
type Catalog struct {
	Version string
	status  dumpStatus
	mirror  string
	dumpDir string
}

const (
	sitesTableJobID       = "sitestable"
	pagesMetaHistoryJobID = "metahistory7zdump"
	dumpStatusDateLayout  = "2006-01-02 15:04:05"
)

// LoadCatalog loads (downloading if necessary) and validates the dump
// status catalog for one Wikidata dump version, e.g. "20210601".
//
// Every job in the catalog must report status "done"; if any job is
// still in progress or failed, the cached status file is removed (so a
// later retry re-downloads it once the dump run completes) and an error
// is returned.
func LoadCatalog(dumpDir, version, mirror string, client *http.Client, logger *log.Logger) (*Catalog, error) {
	path := filepath.Join(dumpDir, fmt.Sprintf("wikidatawiki-%s-dumpstatus.json", version))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		url := fmt.Sprintf("%s/wikidatawiki/%s/dumpstatus.json", mirror, version)
		logf(logger, "downloading dump status from %s", url)

		resp, err := client.Get(url)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("wikidata: GET %s: status %s", url, resp.Status)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		var pretty map[string]any
		if err := json.Unmarshal(body, &pretty); err != nil {
			return nil, err
		}
		encoded, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, append(encoded, '\n'), 0o644); err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status dumpStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, err
	}

	for jobName, job := range status.Jobs {
		if job.Status != "done" {
			_ = os.Remove(path)
			return nil, fmt.Errorf("wikidata: job %q is not done, but %q", jobName, job.Status)
		}
		if _, err := time.Parse(dumpStatusDateLayout, job.Updated); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("wikidata: job %q has malformed updated timestamp: %w", jobName, err)
		}
	}

	return &Catalog{Version: version, status: status, mirror: mirror, dumpDir: dumpDir}, nil
}

// SitesTableFile returns the dump file for the sites SQL table.
func (c *Catalog) SitesTableFile() (DumpFile, error) {
	files, err := c.filesForJob(sitesTableJobID)
	if err != nil {
		return DumpFile{}, err
	}
	if len(files) != 1 {
		return DumpFile{}, fmt.Errorf("wikidata: expected exactly one sites table file, got %d", len(files))
	}
	return files[0], nil
}

// PagesMetaHistoryFiles returns the dump files for every pages-meta-history
// shard. The order of the returned files is not defined.
func (c *Catalog) PagesMetaHistoryFiles() ([]DumpFile, error) {
	return c.filesForJob(pagesMetaHistoryJobID)
}

func (c *Catalog) filesForJob(jobID string) ([]DumpFile, error) {
	job, ok := c.status.Jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("wikidata: dump status has no job %q", jobID)
	}
	files := make([]DumpFile, 0, len(job.Files))
	for relPath, f := range job.Files {
		files = append(files, DumpFile{
			Path: filepath.Join(c.dumpDir, relPath),
			URL:  c.mirror + f.URL,
			SHA1: f.SHA1,
			Size: f.Size,
		})
	}
	return files, nil
}
