package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testScannerConfig(root string) config.ScannerConfig {
	return config.ScannerConfig{
		ContentRoot:     root,
		BaseURL:         "https://example.test",
		IncludeExternal: true,
	}
}

func linkURLs(links []db.ScannedLink) []string {
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return urls
}

func TestScanExtractsAndClassifiesLinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", `<html><body>
<nav><a href="/pricing">Pricing</a></nav>
<a href="/about.html">About</a>
<a href="https://other.test/partner">Partner</a>
<a href="/files/brochure.pdf">Brochure</a>
<a href="#top">Top</a>
<img src="/images/logo.png">
</body></html>`)

	scanner := New(testScannerConfig(root))
	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Empty(t, result.Errors)

	byURL := map[string]db.ScannedLink{}
	for _, link := range result.Links {
		byURL[link.URL] = link
	}

	require.Contains(t, byURL, "/about.html")
	assert.Equal(t, db.LinkInternal, byURL["/about.html"].LinkType)
	assert.Equal(t, db.PriorityHigh, byURL["/about.html"].Priority)

	require.Contains(t, byURL, "https://other.test/partner")
	assert.Equal(t, db.LinkExternal, byURL["https://other.test/partner"].LinkType)

	require.Contains(t, byURL, "/files/brochure.pdf")
	assert.Equal(t, db.LinkDownload, byURL["/files/brochure.pdf"].LinkType)

	require.Contains(t, byURL, "#top")
	assert.Equal(t, db.LinkAnchor, byURL["#top"].LinkType)

	// Conversion paths and navigation placement are critical.
	require.Contains(t, byURL, "/pricing")
	assert.Equal(t, db.PriorityCritical, byURL["/pricing"].Priority)
}

func TestScanRecordsSourceLocation(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "post.md", "# Title\n\nSee [the guide](/docs/guide) for details.\n")

	scanner := New(testScannerConfig(root))
	result, err := scanner.Scan()
	require.NoError(t, err)
	require.Len(t, result.Links, 1)

	link := result.Links[0]
	assert.Equal(t, "/docs/guide", link.URL)
	assert.Equal(t, path, link.SourceFile)
	assert.Equal(t, 3, link.SourceLine)
	assert.Contains(t, link.Context, "/docs/guide")
}

func TestScanRecordsCorrectLineForSubstringURLs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs.html", `<html><body>
<a href="/guide.html">full guide</a>
<a href="/guide">short link</a>
</body></html>`)

	result, err := New(testScannerConfig(root)).Scan()
	require.NoError(t, err)

	lines := map[string]int{}
	for _, link := range result.Links {
		lines[link.URL] = link.SourceLine
	}
	assert.Equal(t, 2, lines["/guide.html"])
	assert.Equal(t, 3, lines["/guide"], "a URL embedded in a longer link must not pin the location")
}

func TestScanDeduplicatesWithinRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", `<a href="/dup">one</a><a href="/dup">two</a>`)

	scanner := New(testScannerConfig(root))
	result, err := scanner.Scan()
	require.NoError(t, err)

	count := 0
	for _, link := range result.Links {
		if link.URL == "/dup" {
			count++
		}
	}
	assert.Equal(t, 1, count, "same url+file+line must collapse")
}

func TestScanAppliesExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.html", `<a href="/kept">kept</a>`)
	writeFile(t, root, "drafts/skip.html", `<a href="/dropped">dropped</a>`)

	cfg := testScannerConfig(root)
	cfg.ExcludePatterns = []string{"**/drafts/**"}
	scanner := New(cfg)

	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Contains(t, linkURLs(result.Links), "/kept")
	assert.NotContains(t, linkURLs(result.Links), "/dropped")
}

func TestScanDropsExternalWhenExcluded(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.html", `<a href="/in">in</a><a href="https://other.test/out">out</a>`)

	cfg := testScannerConfig(root)
	cfg.IncludeExternal = false
	scanner := New(cfg)

	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Contains(t, linkURLs(result.Links), "/in")
	assert.NotContains(t, linkURLs(result.Links), "https://other.test/out")
}

func TestScanParsesSitemap(t *testing.T) {
	root := t.TempDir()
	sitemap := writeFile(t, root, "sitemap.xml", `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.test/</loc></url>
  <url><loc>https://example.test/blog/launch</loc></url>
</urlset>`)

	cfg := testScannerConfig(root)
	cfg.SitemapPath = sitemap
	scanner := New(cfg)

	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Contains(t, linkURLs(result.Links), "https://example.test/blog/launch")

	for _, link := range result.Links {
		if link.URL == "https://example.test/blog/launch" {
			assert.Equal(t, sitemap, link.SourceFile)
			assert.NotEqual(t, db.PriorityLow, link.Priority)
		}
	}
}

func TestScanMissingSitemapDoesNotAbort(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "page.html", `<a href="/still-here">x</a>`)

	cfg := testScannerConfig(root)
	cfg.SitemapPath = filepath.Join(root, "missing-sitemap.xml")
	scanner := New(cfg)

	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.Contains(t, linkURLs(result.Links), "/still-here")
	assert.NotEmpty(t, result.Errors, "sitemap failure is accumulated, not fatal")
}

func TestScanEmptyTreeReturnsEmptyList(t *testing.T) {
	scanner := New(testScannerConfig(t.TempDir()))
	result, err := scanner.Scan()
	require.NoError(t, err)
	assert.NotNil(t, result.Links)
	assert.Empty(t, result.Links)
}

func TestScanMissingRootIsAnError(t *testing.T) {
	cfg := testScannerConfig(filepath.Join(t.TempDir(), "does-not-exist"))
	_, err := New(cfg).Scan()
	assert.Error(t, err)
}

func TestScanSkipsNonLinkSchemes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "contactless.html",
		`<a href="mailto:x@example.test">mail</a><a href="tel:+15551234">call</a><a href="/real">real</a>`)

	result, err := New(testScannerConfig(root)).Scan()
	require.NoError(t, err)
	assert.Equal(t, []string{"/real"}, linkURLs(result.Links))
}
