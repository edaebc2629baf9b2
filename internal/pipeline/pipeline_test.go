package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sitepulse/linkaudit/internal/config"
	"github.com/sitepulse/linkaudit/internal/db"
	"github.com/sitepulse/linkaudit/internal/notify"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&db.ScannedLink{},
		&db.ValidationResult{},
		&db.AppliedCorrection{},
		&db.AuditHistory{},
		&db.LinkHealthMetric{},
	))
	return conn
}

func newTestConfig(root, baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Scanner.ContentRoot = root
	cfg.Scanner.BaseURL = baseURL
	cfg.Validator.RateLimitDelay = time.Millisecond
	return cfg
}

// siteServer serves 200 for the given paths and 404 for everything else.
func siteServer(t *testing.T, okPaths ...string) *httptest.Server {
	t.Helper()
	ok := map[string]bool{}
	for _, p := range okPaths {
		ok[p] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ok[r.URL.Path] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writePage(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFullAuditCorrectsTypoEndToEnd(t *testing.T) {
	srv := siteServer(t, "/products")
	root := t.TempDir()
	page := writePage(t, root, "page.html", `<html><body>
<a href="/products">catalog</a>
<a href="/productz">typo</a>
</body></html>`)

	conn := newTestDB(t)
	p := New(conn, newTestConfig(root, srv.URL), &notify.LogNotifier{}, nil)

	result := p.RunFullAudit(context.Background())
	require.True(t, result.Success, "message: %s", result.Message)
	require.NotNil(t, result.Report)
	assert.NotZero(t, result.AuditID)

	assert.Equal(t, 2, result.Report.Summary.TotalLinks)
	assert.Equal(t, 1, result.Report.Summary.ValidLinks)
	assert.Equal(t, 1, result.Report.Summary.BrokenLinks)
	assert.Equal(t, 1, result.Report.Summary.CorrectedLinks)

	updated, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.NotContains(t, string(updated), "/productz")

	var corrections []db.AppliedCorrection
	require.NoError(t, conn.Find(&corrections).Error)
	require.Len(t, corrections, 1)
	assert.Equal(t, "/productz", corrections[0].OriginalURL)
	assert.Equal(t, "/products", corrections[0].CorrectedURL)
	assert.GreaterOrEqual(t, corrections[0].Confidence, 0.8)
	assert.NotEmpty(t, corrections[0].RollbackID)
	assert.NotEmpty(t, corrections[0].RollbackData)

	var historyCount int64
	require.NoError(t, conn.Model(&db.AuditHistory{}).Count(&historyCount).Error)
	assert.Equal(t, int64(1), historyCount)
}

func TestFullAuditNeverAppliesBelowGate(t *testing.T) {
	srv := siteServer(t, "/products")
	root := t.TempDir()
	original := `<html><body>
<a href="/products">catalog</a>
<a href="/prodcuts">two edits away</a>
</body></html>`
	page := writePage(t, root, "page.html", original)

	conn := newTestDB(t)
	p := New(conn, newTestConfig(root, srv.URL), &notify.LogNotifier{}, nil)

	result := p.RunFullAudit(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 0, result.Report.Summary.CorrectedLinks)

	content, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Equal(t, original, string(content), "a low-confidence candidate must never touch the file")

	var correctionCount int64
	require.NoError(t, conn.Model(&db.AppliedCorrection{}).Count(&correctionCount).Error)
	assert.Equal(t, int64(0), correctionCount)
}

func TestFullAuditLeavesValidSubstringLinksAlone(t *testing.T) {
	srv := siteServer(t, "/guide.html")
	root := t.TempDir()
	page := writePage(t, root, "page.html", `<html><body>
<a href="/guide.html">guide</a>
<a href="/guide">old reference</a>
</body></html>`)

	conn := newTestDB(t)
	p := New(conn, newTestConfig(root, srv.URL), &notify.LogNotifier{}, nil)

	result := p.RunFullAudit(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Report.Summary.CorrectedLinks)

	updated, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.NotContains(t, string(updated), "/guide.html.html",
		"the already-valid longer link must survive the correction")
	assert.NotContains(t, string(updated), `href="/guide"`)
	assert.Contains(t, string(updated), `<a href="/guide.html">guide</a>`)
}

func TestQuickCheckWithoutPriorScanIsHealthy(t *testing.T) {
	conn := newTestDB(t)
	p := New(conn, newTestConfig(t.TempDir(), "https://example.test"), &notify.LogNotifier{}, nil)

	result := p.RunQuickCheck(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 0, result.Report.Summary.TotalLinks)
	assert.Equal(t, 100, result.Report.Summary.SeoHealthScore)
}
