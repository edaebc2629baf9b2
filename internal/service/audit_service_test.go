package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sitepulse/linkaudit/internal/db"
)

func newAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&db.ValidationResult{}))
	return conn
}

func TestRecentValidURLsDistinctAndNewestFirst(t *testing.T) {
	conn := newAuditTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, conn.Create(&db.ValidationResult{URL: "/a", Status: db.StatusValid, CheckedAt: now.Add(-3 * time.Hour)}).Error)
	require.NoError(t, conn.Create(&db.ValidationResult{URL: "/b", Status: db.StatusValid, CheckedAt: now.Add(-2 * time.Hour)}).Error)
	require.NoError(t, conn.Create(&db.ValidationResult{URL: "/a", Status: db.StatusValid, CheckedAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, conn.Create(&db.ValidationResult{URL: "/c", Status: db.StatusBroken, CheckedAt: now}).Error)

	urls, err := RecentValidURLs(conn, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b"}, urls,
		"each URL appears once, ranked by its most recent valid check")
}

func TestRecentValidURLsHonorsLimit(t *testing.T) {
	conn := newAuditTestDB(t)
	now := time.Now().UTC()

	require.NoError(t, conn.Create(&db.ValidationResult{URL: "/old", Status: db.StatusValid, CheckedAt: now.Add(-time.Hour)}).Error)
	require.NoError(t, conn.Create(&db.ValidationResult{URL: "/new", Status: db.StatusValid, CheckedAt: now}).Error)

	urls, err := RecentValidURLs(conn, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/new"}, urls)
}
