// SPDX-License-Identifier: MIT

package wikidata

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const fakeDumpStatus = `{
  "version": "0.9",
  "jobs": {
    "sitestable": {
      "status": "done",
      "updated": "2021-06-10 12:00:00",
      "files": {
        "wikidatawiki-20210601-sites.sql.gz": {
          "size": 10,
          "url": "/wikidatawiki/20210601/wikidatawiki-20210601-sites.sql.gz",
          "md5": "ignored",
          "sha1": "aaaa"
        }
      }
    },
    "metahistory7zdump": {
      "status": "done",
      "updated": "2021-06-10 12:00:00",
      "files": {
        "wikidatawiki-20210601-pages-meta-history1.xml-p1p1000.7z": {
          "size": 20,
          "url": "/wikidatawiki/20210601/wikidatawiki-20210601-pages-meta-history1.xml-p1p1000.7z",
          "md5": "ignored",
          "sha1": "bbbb"
        },
        "wikidatawiki-20210601-pages-meta-history2.xml-p1001p2000.7z": {
          "size": 20,
          "url": "/wikidatawiki/20210601/wikidatawiki-20210601-pages-meta-history2.xml-p1001p2000.7z",
          "md5": "ignored",
          "sha1": "cccc"
        }
      }
    }
  }
}`

func TestLoadCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fakeDumpStatus))
	}))
	defer server.Close()

	dumpDir := t.TempDir()
	catalog, err := LoadCatalog(dumpDir, "20210601", server.URL, server.Client(), nil)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dumpDir, "wikidatawiki-20210601-dumpstatus.json")); err != nil {
		t.Errorf("expected dump status to be cached on disk: %v", err)
	}

	sitesFile, err := catalog.SitesTableFile()
	if err != nil {
		t.Fatal(err)
	}
	if sitesFile.SHA1 != "aaaa" {
		t.Errorf("got sha1 %q, want aaaa", sitesFile.SHA1)
	}

	shards, err := catalog.PagesMetaHistoryFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(shards) != 2 {
		t.Fatalf("got %d shards, want 2", len(shards))
	}

	// Loading again must not re-fetch from the network: the cached file on
	// disk is reused.
	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unexpected second fetch of dumpstatus.json")
	})
	if _, err := LoadCatalog(dumpDir, "20210601", server.URL, server.Client(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestLoadCatalogRejectsUnfinishedJob(t *testing.T) {
	const pending = `{
  "version": "0.9",
  "jobs": {
    "sitestable": {"status": "waiting", "updated": "2021-06-10 12:00:00", "files": {}}
  }
}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pending))
	}))
	defer server.Close()

	dumpDir := t.TempDir()
	if _, err := LoadCatalog(dumpDir, "20210601", server.URL, server.Client(), nil); err == nil {
		t.Fatal("expected error for unfinished job")
	}
	if _, err := os.Stat(filepath.Join(dumpDir, "wikidatawiki-20210601-dumpstatus.json")); !os.IsNotExist(err) {
		t.Error("expected cached status file to be removed after rejection")
	}
}
