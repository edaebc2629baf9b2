package scanner

import (
	"bytes"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sitepulse/linkaudit/internal/db"
)

var downloadExtensions = map[string]bool{
	".pdf": true, ".zip": true, ".tar": true, ".gz": true,
	".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".dmg": true, ".exe": true,
	".csv": true, ".mp3": true, ".mp4": true,
}

var criticalPathSegments = []string{
	"/contact", "/checkout", "/buy", "/pricing", "/order", "/signup", "/subscribe",
}

var navigationHints = []string{"nav", "header", "menu", "footer"}

// markdownLink matches [text](target) references.
var markdownLink = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// bareURL matches absolute URLs in plain text.
var bareURL = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// extractFromHTML pulls href/src attribute values out of a markup document
// and maps each back to its source line in the raw content.
func extractFromHTML(content []byte, sourceFile string, base *url.URL) ([]db.ScannedLink, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var links []db.ScannedLink

	add := func(raw string, inNav bool) {
		raw = strings.TrimSpace(raw)
		if !isCandidate(raw) {
			return
		}
		line := lineOf(content, raw)
		links = append(links, buildLink(raw, sourceFile, line, lineContext(content, line), base, inNav))
	}

	doc.Find("a[href], link[href], area[href]").Each(func(i int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		add(href, insideNavigation(sel))
	})
	doc.Find("img[src], script[src], source[src], iframe[src]").Each(func(i int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		add(src, insideNavigation(sel))
	})

	return links, nil
}

// extractFromText scans plain text or markdown line by line.
func extractFromText(content []byte, sourceFile string, base *url.URL) []db.ScannedLink {
	var links []db.ScannedLink

	lines := strings.Split(string(content), "\n")
	for i, lineText := range lines {
		seen := map[string]bool{}
		for _, m := range markdownLink.FindAllStringSubmatch(lineText, -1) {
			raw := strings.TrimSpace(m[1])
			if isCandidate(raw) && !seen[raw] {
				seen[raw] = true
				links = append(links, buildLink(raw, sourceFile, i+1, snippet(lineText), base, false))
			}
		}
		for _, raw := range bareURL.FindAllString(lineText, -1) {
			raw = strings.TrimRight(raw, ".,;")
			if isCandidate(raw) && !seen[raw] {
				seen[raw] = true
				links = append(links, buildLink(raw, sourceFile, i+1, snippet(lineText), base, false))
			}
		}
	}

	return links
}

func buildLink(raw, sourceFile string, line int, context string, base *url.URL, inNav bool) db.ScannedLink {
	linkType := classify(raw, base)
	return db.ScannedLink{
		URL:        raw,
		SourceFile: sourceFile,
		SourceLine: line,
		LinkType:   linkType,
		Priority:   priorityFor(raw, sourceFile, linkType, inNav),
		Context:    context,
	}
}

// isCandidate filters out references that are not checkable links.
func isCandidate(raw string) bool {
	if raw == "" || raw == "/" || raw == "#" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, scheme := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

// classify assigns the link type from the URL shape relative to the site base.
func classify(raw string, base *url.URL) db.LinkType {
	if strings.HasPrefix(raw, "#") {
		return db.LinkAnchor
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		// Unparseable targets are still probed; treat as internal so the
		// validator records them rather than dropping them here.
		return db.LinkInternal
	}

	if downloadExtensions[strings.ToLower(path.Ext(parsed.Path))] {
		return db.LinkDownload
	}

	if parsed.Host != "" && base != nil && parsed.Host != base.Host {
		return db.LinkExternal
	}
	if parsed.Host != "" && base == nil {
		return db.LinkExternal
	}

	return db.LinkInternal
}

// priorityFor applies the audit priority heuristics: navigation placement and
// conversion paths outrank ordinary internal links, which outrank the rest.
func priorityFor(raw, sourceFile string, linkType db.LinkType, inNav bool) db.LinkPriority {
	lowerURL := strings.ToLower(raw)
	for _, seg := range criticalPathSegments {
		if strings.Contains(lowerURL, seg) {
			return db.PriorityCritical
		}
	}

	if inNav {
		return db.PriorityCritical
	}
	lowerFile := strings.ToLower(sourceFile)
	for _, hint := range navigationHints {
		if strings.Contains(lowerFile, hint) {
			return db.PriorityCritical
		}
	}

	switch linkType {
	case db.LinkInternal:
		return db.PriorityHigh
	case db.LinkExternal, db.LinkDownload:
		return db.PriorityMedium
	default:
		return db.PriorityLow
	}
}

// insideNavigation reports whether the selection sits under a nav-like element.
func insideNavigation(sel *goquery.Selection) bool {
	return sel.ParentsFiltered("nav, header").Length() > 0
}

// lineOf returns the 1-based line of the first standalone occurrence of
// needle, or 0. Occurrences embedded in a longer URL token do not count:
// "/guide" inside "/guide.html" must not pin the location of "/guide".
func lineOf(content []byte, needle string) int {
	target := []byte(needle)
	for from := 0; ; {
		idx := bytes.Index(content[from:], target)
		if idx < 0 {
			return 0
		}
		idx += from
		if standsAlone(content, idx, len(target)) {
			return bytes.Count(content[:idx], []byte("\n")) + 1
		}
		from = idx + 1
	}
}

// standsAlone reports whether the occurrence at idx is a complete URL token
// rather than a fragment of a longer one.
func standsAlone(content []byte, idx, length int) bool {
	if idx > 0 && isURLTokenByte(content[idx-1]) {
		return false
	}
	if end := idx + length; end < len(content) && isURLTokenByte(content[end]) {
		return false
	}
	return true
}

func isURLTokenByte(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	}
	return bytes.IndexByte([]byte("/._~%-?&=#+"), b) >= 0
}

// lineContext returns the trimmed text of the given 1-based line.
func lineContext(content []byte, line int) string {
	if line <= 0 {
		return ""
	}
	lines := bytes.Split(content, []byte("\n"))
	if line > len(lines) {
		return ""
	}
	return snippet(string(lines[line-1]))
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
