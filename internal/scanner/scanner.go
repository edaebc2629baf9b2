package scanner

import (
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
)

var markupExtensions = map[string]bool{
	".html": true, ".htm": true,
}

var textExtensions = map[string]bool{
	".md": true, ".markdown": true, ".txt": true,
}

// Result collects the outcome of one scan. Errors holds per-file failures
// that did not abort the scan; the caller decides whether they degrade the
// run.
type Result struct {
	Links  []db.ScannedLink
	Errors []error
}

// Scanner discovers link references in the content tree and the sitemap.
type Scanner struct {
	cfg  config.ScannerConfig
	base *url.URL
}

// New creates a Scanner for the given configuration.
func New(cfg config.ScannerConfig) *Scanner {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		log.Printf("Invalid base URL %q, external classification disabled: %v", cfg.BaseURL, err)
		base = nil
	}
	return &Scanner{cfg: cfg, base: base}
}

// Scan walks the content root and parses the sitemap, returning every
// discovered link after exclude filtering and in-scan deduplication. A scan
// that finds nothing returns an empty list, not an error. Individual file
// failures are accumulated in Result.Errors and never abort the scan.
func (s *Scanner) Scan() (*Result, error) {
	result := &Result{Links: []db.ScannedLink{}}

	if err := s.scanContentTree(result); err != nil {
		return nil, err
	}
	s.scanSitemap(result)

	result.Links = s.filterExcluded(result.Links)
	if !s.cfg.IncludeExternal {
		result.Links = dropExternal(result.Links)
	}
	result.Links = dedupe(result.Links)

	log.Printf("Scan complete: %d links, %d file errors", len(result.Links), len(result.Errors))
	return result, nil
}

func (s *Scanner) scanContentTree(result *Result) error {
	root := s.cfg.ContentRoot
	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("content root %s is not accessible: %w", root, err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("walk %s: %w", path, err))
			log.Printf("Skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return fs.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if !markupExtensions[ext] && !textExtensions[ext] {
			return nil
		}

		links, err := s.scanFile(path, ext)
		if err != nil {
			// One unreadable file must not void the rest of the audit.
			result.Errors = append(result.Errors, fmt.Errorf("scan %s: %w", path, err))
			log.Printf("Failed to scan %s: %v", path, err)
			return nil
		}
		result.Links = append(result.Links, links...)
		return nil
	})
}

func (s *Scanner) scanFile(path, ext string) ([]db.ScannedLink, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if markupExtensions[ext] {
		return extractFromHTML(content, path, s.base)
	}
	return extractFromText(content, path, s.base), nil
}

func (s *Scanner) scanSitemap(result *Result) {
	if s.cfg.SitemapPath == "" {
		return
	}
	links, err := parseSitemap(s.cfg.SitemapPath, s.base)
	if err != nil {
		result.Errors = append(result.Errors, err)
		log.Printf("Sitemap scan failed: %v", err)
		return
	}
	result.Links = append(result.Links, links...)
}

// filterExcluded drops links whose source file matches an exclude glob.
func (s *Scanner) filterExcluded(links []db.ScannedLink) []db.ScannedLink {
	if len(s.cfg.ExcludePatterns) == 0 {
		return links
	}

	kept := links[:0]
	for _, link := range links {
		if !s.excluded(link.SourceFile) {
			kept = append(kept, link)
		}
	}
	return kept
}

func (s *Scanner) excluded(sourceFile string) bool {
	base := filepath.Base(sourceFile)
	for _, pattern := range s.cfg.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, sourceFile); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		// filepath.Match has no "**"; fall back to a substring check for
		// directory-spanning patterns like "**/drafts/**".
		if strings.Contains(pattern, "**") {
			if inner := strings.Trim(pattern, "*/"); inner != "" && strings.Contains(sourceFile, inner) {
				return true
			}
		}
	}
	return false
}

func dropExternal(links []db.ScannedLink) []db.ScannedLink {
	kept := links[:0]
	for _, link := range links {
		if link.LinkType != db.LinkExternal {
			kept = append(kept, link)
		}
	}
	return kept
}

// dedupe removes duplicates within a single scan by (url, sourceFile,
// sourceLine). Storage keeps history across scans, so this is the only
// dedup layer.
func dedupe(links []db.ScannedLink) []db.ScannedLink {
	seen := make(map[string]bool, len(links))
	kept := links[:0]
	for _, link := range links {
		key := fmt.Sprintf("%s|%s|%d", link.URL, link.SourceFile, link.SourceLine)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, link)
	}
	return kept
}
