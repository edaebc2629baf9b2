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

func newJobTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&db.ScheduledJob{}))
	return conn
}

func TestTransitionJobGuardsOnCurrentStatus(t *testing.T) {
	conn := newJobTestDB(t)

	job, err := CreateJob(conn, db.JobFullAudit, 5, time.Now().UTC())
	require.NoError(t, err)

	ok, err := TransitionJob(conn, job.ID, db.JobPending, db.JobRunning, "")
	require.NoError(t, err)
	assert.True(t, ok)

	// A second promotion from pending must lose: the row is running now.
	ok, err = TransitionJob(conn, job.ID, db.JobPending, db.JobRunning, "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = TransitionJob(conn, job.ID, db.JobRunning, db.JobFailed, "probe exploded")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := GetJobByID(conn, job.ID)
	require.NoError(t, err)
	assert.Equal(t, db.JobFailed, got.Status)
	assert.Equal(t, "probe exploded", got.Error)
}

func TestNextRunnableJobOrdering(t *testing.T) {
	conn := newJobTestDB(t)
	now := time.Now().UTC()

	_, err := CreateJob(conn, db.JobFullAudit, 3, now.Add(-2*time.Hour))
	require.NoError(t, err)
	first, err := CreateJob(conn, db.JobQuickCheck, 8, now.Add(-time.Hour))
	require.NoError(t, err)
	_, err = CreateJob(conn, db.JobFullAudit, 8, now.Add(-30*time.Minute))
	require.NoError(t, err)
	_, err = CreateJob(conn, db.JobFullAudit, 9, now.Add(time.Hour))
	require.NoError(t, err)

	next, err := NextRunnableJob(conn, now)
	require.NoError(t, err)
	assert.Equal(t, first.ID, next.ID,
		"highest due priority wins, earliest schedule breaks the tie, future jobs wait")
}

func TestAnyJobRunning(t *testing.T) {
	conn := newJobTestDB(t)

	running, err := AnyJobRunning(conn)
	require.NoError(t, err)
	assert.False(t, running)

	job, err := CreateJob(conn, db.JobFullAudit, 5, time.Now().UTC())
	require.NoError(t, err)
	_, err = TransitionJob(conn, job.ID, db.JobPending, db.JobRunning, "")
	require.NoError(t, err)

	running, err = AnyJobRunning(conn)
	require.NoError(t, err)
	assert.True(t, running)
}
