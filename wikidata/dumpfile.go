// SPDX-License-Identifier: MIT

package wikidata

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wikidated/wikidated/archive"
)

// SiteInfo is the one-shot header of a pages-meta-history dump shard.
type SiteInfo struct {
	SiteName   string
	DBName     string
	Base       string
	Generator  string
	Case       string
	Namespaces map[int]string
}

var metaHistoryNameRE = regexp.MustCompile(
	`^wikidatawiki-(\d{4})(\d{2})(\d{2})-pages-meta-history\d+\.xml-p(\d+)p(\d+)\.7z$`)

// DumpPagesMetaHistory is a single pages-meta-history dump shard: an
// entire 7z-compressed XML file covering a contiguous page-id range.
type DumpPagesMetaHistory struct {
	Path    string
	Date    time.Time
	PageIDs [2]int64 // inclusive [lo, hi]
	logger  *log.Logger

	// open defaults to reading Path through the external 7z tool; tests
	// override it to parse an in-memory XML fixture instead.
	open func() (io.ReadCloser, error)
}

// NewDumpPagesMetaHistory validates path against the dump naming
// convention and extracts its date and page-id range.
func NewDumpPagesMetaHistory(path string, logger *log.Logger) (*DumpPagesMetaHistory, error) {
	base := baseName(path)
	m := metaHistoryNameRE.FindStringSubmatch(base)
	if m == nil {
		return nil, fmt.Errorf("wikidata: %q is not a pages-meta-history dump file name", base)
	}
	date, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	if err != nil {
		return nil, err
	}
	lo, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return nil, err
	}
	hi, err := strconv.ParseInt(m[5], 10, 64)
	if err != nil {
		return nil, err
	}
	return &DumpPagesMetaHistory{Path: path, Date: date, PageIDs: [2]int64{lo, hi}, logger: logger}, nil
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func (d *DumpPagesMetaHistory) openReader() (io.ReadCloser, error) {
	if d.open != nil {
		return d.open()
	}
	a := archive.New(d.Path, d.logger)
	return a.Read("")
}

// SiteInfo parses the dump's <siteinfo> header without scanning revisions.
func (d *DumpPagesMetaHistory) SiteInfo() (SiteInfo, error) {
	fd, err := d.openReader()
	if err != nil {
		return SiteInfo{}, err
	}
	defer fd.Close()

	lines := newLineSource(fd)
	if err := assertOpeningTag(lines, "mediawiki"); err != nil {
		return SiteInfo{}, err
	}
	return processSiteInfo(lines)
}

func processSiteInfo(lines *lineSource) (SiteInfo, error) {
	if err := assertOpeningTag(lines, "siteinfo"); err != nil {
		return SiteInfo{}, err
	}
	siteName, err := extractValue(lines, "sitename")
	if err != nil {
		return SiteInfo{}, err
	}
	dbName, err := extractValue(lines, "dbname")
	if err != nil {
		return SiteInfo{}, err
	}
	base, err := extractValue(lines, "base")
	if err != nil {
		return SiteInfo{}, err
	}
	generator, err := extractValue(lines, "generator")
	if err != nil {
		return SiteInfo{}, err
	}
	caseMode, err := extractValue(lines, "case")
	if err != nil {
		return SiteInfo{}, err
	}

	namespaces := make(map[int]string)
	if err := assertOpeningTag(lines, "namespaces"); err != nil {
		return SiteInfo{}, err
	}
	for {
		line, ok := lines.next()
		if !ok {
			return SiteInfo{}, fmt.Errorf("wikidata: unexpected EOF in <namespaces>")
		}
		if isClosingTag(line, "namespaces") {
			break
		}
		if err := assertOpeningTagLine(line, "namespace"); err != nil {
			return SiteInfo{}, err
		}
		keyIdx := strings.Index(line, `key="`) + len(`key="`)
		endIdx := strings.Index(line[keyIdx:], `"`)
		key, err := strconv.Atoi(line[keyIdx : keyIdx+endIdx])
		if err != nil {
			return SiteInfo{}, err
		}
		if strings.HasSuffix(strings.TrimSpace(line), "/>") {
			namespaces[key] = ""
		} else {
			value, err := extractValueFromLine(line, "namespace")
			if err != nil {
				return SiteInfo{}, err
			}
			namespaces[key] = value
		}
	}
	if err := assertClosingTag(lines, "siteinfo"); err != nil {
		return SiteInfo{}, err
	}

	return SiteInfo{
		SiteName:   siteName,
		DBName:     dbName,
		Base:       base,
		Generator:  generator,
		Case:       caseMode,
		Namespaces: namespaces,
	}, nil
}

// RevisionScanner lazily reads every revision in a dump shard, in the
// page-major, chronological-per-page order of the XML. It exhausts the
// shard once; construct a new one to re-read. Modeled like bufio.Scanner,
// matching the teacher's pageEntitiesScanner.
type RevisionScanner struct {
	dump    *DumpPagesMetaHistory
	closer  io.Closer
	lines   *lineSource
	pending []RawRevision
	pos     int
	err     error
	started bool
	done    bool
}

// IterRevisions returns a RevisionScanner over the dump's revisions. The
// dump is not opened until the scanner's first Scan call.
func (d *DumpPagesMetaHistory) IterRevisions() *RevisionScanner {
	return &RevisionScanner{dump: d}
}

func (s *RevisionScanner) init() {
	fd, err := s.dump.openReader()
	if err != nil {
		s.err = err
		s.done = true
		return
	}
	s.closer = fd
	s.lines = newLineSource(fd)

	if err := assertOpeningTag(s.lines, "mediawiki"); err != nil {
		s.err = err
		s.done = true
		return
	}
	if err := assertOpeningTag(s.lines, "siteinfo"); err != nil {
		s.err = err
		s.done = true
		return
	}
	for {
		line, ok := s.lines.next()
		if !ok {
			s.err = fmt.Errorf("wikidata: unexpected EOF in <siteinfo>")
			s.done = true
			return
		}
		if isClosingTag(line, "siteinfo") {
			break
		}
	}
}

// Scan advances to the next revision. It returns false at EOF or on error;
// call Err to distinguish the two.
func (s *RevisionScanner) Scan() bool {
	if !s.started {
		s.started = true
		s.init()
	}
	if s.done {
		return false
	}

	for s.pos >= len(s.pending) {
		line, ok := s.lines.next()
		if !ok {
			s.done = true
			return false
		}
		if isClosingTag(line, "mediawiki") {
			s.done = true
			if _, ok := s.lines.next(); ok {
				s.err = fmt.Errorf("wikidata: expected EOF after </mediawiki>")
			}
			if s.closer != nil {
				s.closer.Close()
			}
			return false
		}
		revisions, err := processPage(s.lines, line)
		if err != nil {
			s.err = err
			s.done = true
			return false
		}
		s.pending = revisions
		s.pos = 0
	}

	s.pos++
	return true
}

// Revision returns the revision most recently produced by Scan.
func (s *RevisionScanner) Revision() RawRevision {
	return s.pending[s.pos-1]
}

// Err returns the first error encountered, if any.
func (s *RevisionScanner) Err() error { return s.err }

func processPage(lines *lineSource, firstLine string) ([]RawRevision, error) {
	if err := assertOpeningTagLine(firstLine, "page"); err != nil {
		return nil, err
	}
	titleLine, ok := lines.next()
	if !ok {
		return nil, fmt.Errorf("wikidata: unexpected EOF in <page>")
	}
	title, err := extractValueFromLine(titleLine, "title")
	if err != nil {
		return nil, err
	}
	entityID := unescapeXML(title)

	nsLine, ok := lines.next()
	if !ok {
		return nil, fmt.Errorf("wikidata: unexpected EOF in <page>")
	}
	nsStr, err := extractValueFromLine(nsLine, "ns")
	if err != nil {
		return nil, err
	}
	namespace, err := strconv.Atoi(nsStr)
	if err != nil {
		return nil, err
	}

	idLine, ok := lines.next()
	if !ok {
		return nil, fmt.Errorf("wikidata: unexpected EOF in <page>")
	}
	idStr, err := extractValueFromLine(idLine, "id")
	if err != nil {
		return nil, err
	}
	pageID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, err
	}

	var redirect *string
	line, ok := lines.next()
	if !ok {
		return nil, fmt.Errorf("wikidata: unexpected EOF in <page>")
	}
	if isOpeningTag(line, "redirect") {
		titleIdx := strings.Index(line, `title="`) + len(`title="`)
		endIdx := strings.Index(line[titleIdx:], `"`)
		target := line[titleIdx : titleIdx+endIdx]
		redirect = &target
		line, ok = lines.next()
		if !ok {
			return nil, fmt.Errorf("wikidata: unexpected EOF in <page>")
		}
	}

	var revisions []RawRevision
	for {
		if isClosingTag(line, "page") {
			break
		}
		metadata, text, err := processRevision(lines, line)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, RawRevision{
			EntityMetadata: EntityMetadata{
				EntityID:  entityID,
				PageID:    pageID,
				Namespace: namespace,
				Redirect:  redirect,
			},
			RevisionMetadata: metadata,
			Text:             text,
		})
		line, ok = lines.next()
		if !ok {
			return nil, fmt.Errorf("wikidata: unexpected EOF in <page>")
		}
	}
	return revisions, nil
}

func processRevision(lines *lineSource, firstLine string) (RevisionMetadata, *string, error) {
	var meta RevisionMetadata
	if err := assertOpeningTagLine(firstLine, "revision"); err != nil {
		return meta, nil, err
	}

	idLine, ok := lines.next()
	if !ok {
		return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
	}
	idStr, err := extractValueFromLine(idLine, "id")
	if err != nil {
		return meta, nil, err
	}
	revisionID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return meta, nil, err
	}
	meta.RevisionID = revisionID

	line, ok := lines.next()
	if !ok {
		return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
	}
	if isOpeningTag(line, "parentid") {
		parentStr, err := extractValueFromLine(line, "parentid")
		if err != nil {
			return meta, nil, err
		}
		parent, err := strconv.ParseInt(parentStr, 10, 64)
		if err != nil {
			return meta, nil, err
		}
		meta.ParentRevisionID = &parent
		line, ok = lines.next()
		if !ok {
			return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
		}
	}

	tsStr, err := extractValueFromLine(line, "timestamp")
	if err != nil {
		return meta, nil, err
	}
	ts, err := time.Parse("2006-01-02T15:04:05Z07:00", tsStr)
	if err != nil {
		return meta, nil, err
	}
	meta.Timestamp = ts

	line, ok = lines.next()
	if !ok {
		return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
	}
	if err := assertOpeningTagLine(line, "contributor"); err != nil {
		return meta, nil, err
	}
	if !strings.Contains(line, `deleted="deleted"`) {
		cline, ok := lines.next()
		if !ok {
			return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <contributor>")
		}
		if isOpeningTag(cline, "ip") {
			ip, err := extractValueFromLine(cline, "ip")
			if err != nil {
				return meta, nil, err
			}
			meta.Contributor = &ip
		} else {
			username, err := extractValueFromLine(cline, "username")
			if err != nil {
				return meta, nil, err
			}
			meta.Contributor = &username
			idLine, ok := lines.next()
			if !ok {
				return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <contributor>")
			}
			idStr, err := extractValueFromLine(idLine, "id")
			if err != nil {
				return meta, nil, err
			}
			cid, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				return meta, nil, err
			}
			meta.ContributorID = &cid
		}
		if err := assertClosingTag(lines, "contributor"); err != nil {
			return meta, nil, err
		}
	}

	line, ok = lines.next()
	if !ok {
		return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
	}
	if isOpeningTag(line, "minor") {
		meta.IsMinor = true
		line, ok = lines.next()
		if !ok {
			return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
		}
	}

	if isOpeningTag(line, "comment") {
		if !strings.Contains(line, `deleted="deleted"`) {
			comment, nextLine, err := extractValueMultiline(lines, "comment", line)
			if err != nil {
				return meta, nil, err
			}
			if comment != nil {
				unescaped := unescapeXML(*comment)
				meta.Comment = &unescaped
			}
			line = nextLine
		} else {
			var ok bool
			line, ok = lines.next()
			if !ok {
				return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
			}
		}
	}

	model, err := extractValueFromLine(line, "model")
	if err != nil {
		return meta, nil, err
	}
	meta.WikibaseModel = model

	formatLine, ok := lines.next()
	if !ok {
		return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
	}
	format, err := extractValueFromLine(formatLine, "format")
	if err != nil {
		return meta, nil, err
	}
	meta.WikibaseFormat = format

	textLine, ok := lines.next()
	if !ok {
		return meta, nil, fmt.Errorf("wikidata: unexpected EOF in <revision>")
	}
	text, nextLine, err := extractValueMultiline(lines, "text", textLine)
	if err != nil {
		return meta, nil, err
	}
	if text != nil {
		unescaped := unescapeXML(*text)
		text = &unescaped
	}

	sha1Line := nextLine
	if err := assertOpeningTagLine(sha1Line, "sha1"); err != nil {
		return meta, nil, err
	}
	if !strings.HasSuffix(strings.TrimSpace(sha1Line), "/>") {
		sha1, err := extractValueFromLine(sha1Line, "sha1")
		if err != nil {
			return meta, nil, err
		}
		meta.SHA1 = &sha1
	}

	if err := assertClosingTag(lines, "revision"); err != nil {
		return meta, nil, err
	}

	return meta, text, nil
}

// lineSource is a one-pass line reader without pushback. The "peek a tag,
// maybe it wasn't there" parsing pattern throughout this file is done by
// passing the already-read line on to the next step instead.
type lineSource struct {
	scanner *bufio.Scanner
}

func newLineSource(r io.Reader) *lineSource {
	scanner := bufio.NewScanner(r)
	maxLine := 16 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	return &lineSource{scanner: scanner}
}

func (l *lineSource) next() (string, bool) {
	if !l.scanner.Scan() {
		return "", false
	}
	return l.scanner.Text(), true
}

func isOpeningTag(line, element string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "<"+element)
}

func isClosingTag(line, element string) bool {
	return strings.HasSuffix(strings.TrimRight(line, " \t\r\n"), "</"+element+">")
}

func assertOpeningTagLine(line, element string) error {
	if !isOpeningTag(line, element) {
		return fmt.Errorf("wikidata: expected <%s>, instead line was: %q", element, line)
	}
	return nil
}

func assertOpeningTag(lines *lineSource, element string) error {
	line, ok := lines.next()
	if !ok {
		return fmt.Errorf("wikidata: expected <%s>, got EOF", element)
	}
	return assertOpeningTagLine(line, element)
}

func assertClosingTag(lines *lineSource, element string) error {
	line, ok := lines.next()
	if !ok {
		return fmt.Errorf("wikidata: expected </%s>, got EOF", element)
	}
	if !isClosingTag(line, element) {
		return fmt.Errorf("wikidata: expected </%s>, instead line was: %q", element, line)
	}
	return nil
}

func extractValueFromLine(line, element string) (string, error) {
	if err := assertOpeningTagLine(line, element); err != nil {
		return "", err
	}
	start := strings.Index(line, ">")
	end := strings.LastIndex(line, "</")
	if start < 0 || end < 0 || end < start {
		return "", fmt.Errorf("wikidata: malformed <%s> line: %q", element, line)
	}
	return line[start+1 : end], nil
}

func extractValue(lines *lineSource, element string) (string, error) {
	line, ok := lines.next()
	if !ok {
		return "", fmt.Errorf("wikidata: expected <%s>, got EOF", element)
	}
	return extractValueFromLine(line, element)
}

// extractValueMultiline reads the value of an element that may be
// self-closed (<text bytes="0" />, i.e. nil), inline (opens and closes on
// firstLine), or spanning many lines. It returns the following, unconsumed
// line so the caller can keep parsing sibling elements.
func extractValueMultiline(lines *lineSource, element, firstLine string) (*string, string, error) {
	if err := assertOpeningTagLine(firstLine, element); err != nil {
		return nil, "", err
	}
	trimmed := strings.TrimRight(firstLine, " \t\r\n")
	closingTag := "</" + element + ">"

	if strings.HasSuffix(trimmed, "/>") {
		next, ok := lines.next()
		if !ok {
			return nil, "", fmt.Errorf("wikidata: unexpected EOF after <%s/>", element)
		}
		return nil, next, nil
	}
	if strings.HasSuffix(trimmed, closingTag) {
		value, err := extractValueFromLine(firstLine, element)
		if err != nil {
			return nil, "", err
		}
		next, ok := lines.next()
		if !ok {
			return nil, "", fmt.Errorf("wikidata: unexpected EOF after <%s>", element)
		}
		return &value, next, nil
	}

	var buf strings.Builder
	buf.WriteString(firstLine[strings.Index(firstLine, ">")+1:])
	for {
		line, ok := lines.next()
		if !ok {
			return nil, "", fmt.Errorf("wikidata: unexpected EOF in <%s>", element)
		}
		if isClosingTag(line, element) {
			buf.WriteString(line[:strings.LastIndex(line, "</")])
			value := buf.String()
			next, ok := lines.next()
			if !ok {
				return nil, "", fmt.Errorf("wikidata: unexpected EOF after </%s>", element)
			}
			return &value, next, nil
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}

func unescapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&quot;", `"`,
		"&apos;", "'",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
	)
	return replacer.Replace(s)
}
