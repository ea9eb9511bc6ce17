// SPDX-License-Identifier: MIT

package wikidata

import (
	"compress/gzip"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Site is what we know about one Wikimedia site referenced by a sitelink,
// such as enwiki (en.wikipedia.org).
type Site struct {
	Key    string // Wikimedia database key, such as "enwiki"
	Domain string // Internet domain, such as "en.wikipedia.org"
}

// Sites resolves sitelink site keys to domains, built from the sites SQL
// table shipped alongside the pages-meta-history dumps.
type Sites struct {
	byKey map[string]*Site
}

// ReadSites parses a gzip-compressed MySQL dump of the "sites" table (as
// published at {mirror}/wikidatawiki/{version}/wikidatawiki-{version}-sites.sql.gz).
func ReadSites(r io.Reader) (*Sites, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("wikidata: opening sites table: %w", err)
	}
	defer gz.Close()

	reader, err := NewSQLReader(gz)
	if err != nil {
		return nil, fmt.Errorf("wikidata: parsing sites table: %w", err)
	}

	columns := reader.Columns()
	keyCol := slices.Index(columns, "site_global_key")
	domainCol := slices.Index(columns, "site_domain")
	if keyCol < 0 || domainCol < 0 {
		return nil, fmt.Errorf("wikidata: sites table is missing expected columns, got %v", columns)
	}

	sites := &Sites{byKey: make(map[string]*Site, 900)}
	for {
		row, err := reader.Read()
		if row == nil {
			break
		}
		if err != nil {
			return nil, err
		}
		site := &Site{
			Key:    row[keyCol],
			Domain: decodeSiteDomain(row[domainCol]),
		}
		sites.byKey[site.Key] = site
	}
	return sites, nil
}

// Resolve looks up a site by its Wikimedia database key, e.g. "enwiki".
func (s *Sites) Resolve(key string) (*Site, bool) {
	site, ok := s.byKey[key]
	return site, ok
}

// decodeSiteDomain reverses the reversed-DNS encoding MediaWiki stores
// site_domain in ("moc.aidepikiw.ne." -> "en.wikipedia.com").
func decodeSiteDomain(s string) string {
	s = strings.TrimSuffix(s, ".")
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
