package catalog

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineleof/eof/pkg/products"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testOrbit(t *testing.T, name string) products.Orbit {
	t.Helper()
	o, err := products.ParseOrbit(name)
	require.NoError(t, err)
	return o
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/eof/catalog.db", DefaultPath())
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate())

	var version int
	require.NoError(t, db.conn.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 2, version)
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)

	id, err := db.StartRun("esa", "S1A 2021-02-05", "/data/orbits")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := db.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunRunning, run.Status)
	assert.Equal(t, "S1A 2021-02-05", run.Target)
	assert.Nil(t, run.FinishedAt)

	require.NoError(t, db.FinishRun(id, 2, nil))
	run, err = db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, RunFinished, run.Status)
	assert.Equal(t, 2, run.Saved)
	assert.NotNil(t, run.FinishedAt)

	failedID, err := db.StartRun("asf", "/tmp/scenes", "/tmp")
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(failedID, 0, errors.New("boom")))

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failedID, runs[0].ID)
	assert.Equal(t, RunFailed, runs[0].Status)
	assert.Equal(t, "boom", runs[0].Error)

	missing, err := db.GetRun("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordAndListDownloads(t *testing.T) {
	db := openTestDB(t)

	runID, err := db.StartRun("esa", "/data", "/data")
	require.NoError(t, err)

	a := testOrbit(t, "S1A_OPER_AUX_POEORB_OPOD_20210310T121945_V20210217T225942_20210219T005942.EOF")
	b := testOrbit(t, "S1B_OPER_AUX_RESORB_OPOD_20210218T033005_V20210217T231442_20210218T023212.EOF")
	require.NoError(t, db.RecordDownload(runID, a, "/data/"+a.Filename, "esa", "http://x/"+a.Filename, 4_500_000))
	require.NoError(t, db.RecordDownload("", b, "/data/"+b.Filename, "esa", "", 300_000))

	all, err := db.ListDownloads(Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.Filename, all[0].Filename)
	assert.Empty(t, all[0].RunID)

	s1a, err := db.ListDownloads(Filter{Mission: "S1A"})
	require.NoError(t, err)
	require.Len(t, s1a, 1)
	assert.Equal(t, runID, s1a[0].RunID)
	assert.Equal(t, "POEORB", s1a[0].OrbitType)
	assert.Equal(t, int64(4_500_000), s1a[0].Size)
	assert.True(t, a.Start.Equal(s1a[0].ValidFrom))
	assert.True(t, a.Stop.Equal(s1a[0].ValidTo))

	byRun, err := db.ListDownloads(Filter{RunID: runID})
	require.NoError(t, err)
	assert.Len(t, byRun, 1)

	limited, err := db.ListDownloads(Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	has, err := db.Has(a.Filename)
	require.NoError(t, err)
	assert.True(t, has)
	has, err = db.Has("other.EOF")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPurge(t *testing.T) {
	db := openTestDB(t)

	o := testOrbit(t, "S1A_OPER_AUX_POEORB_OPOD_20210310T121945_V20210217T225942_20210219T005942.EOF")
	require.NoError(t, db.RecordDownload("", o, "/x", "esa", "", 1))

	n, err := db.Purge(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = db.Purge(-time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := db.ListDownloads(Filter{})
	require.NoError(t, err)
	assert.Empty(t, left)
}
