package scanner

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"

	"github.com/sitepulse/linkaudit/internal/db"
)

// sitemapURLSet mirrors the urlset element of the sitemap protocol.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc      string `xml:"loc"`
	Priority string `xml:"priority"`
}

// parseSitemap reads the published sitemap document and converts every <loc>
// entry into the scanned-link shape, with the sitemap itself as source file.
func parseSitemap(path string, base *url.URL) ([]db.ScannedLink, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sitemap %s: %w", path, err)
	}

	var set sitemapURLSet
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap %s: %w", path, err)
	}

	links := make([]db.ScannedLink, 0, len(set.URLs))
	for _, entry := range set.URLs {
		if !isCandidate(entry.Loc) {
			continue
		}
		link := buildLink(entry.Loc, path, 0, "sitemap entry", base, false)
		// Sitemap entries are published pages; they are never below high.
		if link.Priority == db.PriorityMedium || link.Priority == db.PriorityLow {
			link.Priority = db.PriorityHigh
		}
		links = append(links, link)
	}

	return links, nil
}
