package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineleof/eof/internal/source"
	"github.com/sentineleof/eof/pkg/products"
)

// fakeSource returns one precise orbit spanning the acquisition day.
type fakeSource struct {
	mu       sync.Mutex
	fetched  []string
	missing  map[string]bool
	broken   map[string]bool
	fail     error
	fetchErr error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FindOrbits(ctx context.Context, mission products.Mission, t time.Time, orbitType products.OrbitType) ([]source.Link, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if f.broken[t.Format(time.DateOnly)] {
		return nil, fmt.Errorf("archive error for %s", t.Format(time.DateOnly))
	}
	if f.missing[t.Format(time.DateOnly)] {
		return nil, fmt.Errorf("%w for %s", source.ErrNoOrbits, t.Format(time.DateOnly))
	}
	if mission == "" {
		mission = products.MissionS1A
	}
	name := fmt.Sprintf("%s_OPER_AUX_POEORB_OPOD_%s_V%s_%s.EOF", mission,
		t.AddDate(0, 0, 20).Format(products.TimeLayout),
		t.AddDate(0, 0, -1).Format("20060102")+"T225942",
		t.AddDate(0, 0, 1).Format("20060102")+"T005942")
	o, err := products.ParseOrbit(name)
	if err != nil {
		return nil, err
	}
	return []source.Link{{URL: "http://fake/" + name, Orbit: o}}, nil
}

func (f *fakeSource) Fetch(ctx context.Context, link source.Link, dst io.Writer) (int64, error) {
	if f.fetchErr != nil {
		return 0, f.fetchErr
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, link.Filename())
	f.mu.Unlock()
	n, err := io.WriteString(dst, "<Earth_Explorer_File/>")
	return int64(n), err
}

func (f *fakeSource) Ping(ctx context.Context) error { return nil }

type memRecorder struct {
	mu    sync.Mutex
	files []string
}

func (m *memRecorder) RecordDownload(runID string, orbit products.Orbit, path, source, url string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, runID+":"+orbit.Filename)
	return nil
}

func day(d int) time.Time {
	return time.Date(2021, 2, d, 4, 30, 0, 0, time.UTC)
}

func TestDownloadEOFsPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	rec := &memRecorder{}
	d := &Downloader{Source: src, SaveDir: dir, Workers: 3, Recorder: rec, RunID: "run-1"}

	var times []time.Time
	for i := 1; i <= 10; i++ {
		times = append(times, day(i+1))
	}
	saved, err := d.DownloadEOFs(context.Background(), Request{Times: times})
	require.NoError(t, err)
	require.Len(t, saved, 10)

	for i, path := range saved {
		o, err := products.ParseOrbit(path)
		require.NoError(t, err)
		assert.True(t, o.Contains(times[i]), "orbit %s for %s", o.Filename, times[i])
		assert.FileExists(t, path)
	}
	assert.Len(t, rec.files, 10)
	assert.Contains(t, rec.files[0], "run-1:")

	// No partial files left behind.
	parts, _ := filepath.Glob(filepath.Join(dir, ".*.part"))
	assert.Empty(t, parts)
}

func TestDownloadEOFsSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{}
	d := &Downloader{Source: src, SaveDir: dir}

	first, err := d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(5)}, Missions: []products.Mission{products.MissionS1B}})
	require.NoError(t, err)
	second, err := d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(5)}, Missions: []products.Mission{products.MissionS1B}})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, src.fetched, 1)
}

func TestDownloadEOFsSkipsMissingDates(t *testing.T) {
	src := &fakeSource{missing: map[string]bool{day(3).Format(time.DateOnly): true}}
	d := &Downloader{Source: src, SaveDir: t.TempDir()}

	saved, err := d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(2), day(3), day(4)}})
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestDownloadEOFsPropagatesErrors(t *testing.T) {
	d := &Downloader{Source: &fakeSource{fail: errors.New("connection reset")}, SaveDir: t.TempDir()}
	_, err := d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(2)}})
	assert.ErrorContains(t, err, "connection reset")

	dir := t.TempDir()
	d = &Downloader{Source: &fakeSource{fetchErr: errors.New("truncated")}, SaveDir: dir}
	_, err = d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(2)}})
	assert.ErrorContains(t, err, "truncated")

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestDownloadEOFsReturnsSavedOnError(t *testing.T) {
	rec := &memRecorder{}
	src := &fakeSource{broken: map[string]bool{day(5).Format(time.DateOnly): true}}
	d := &Downloader{Source: src, SaveDir: t.TempDir(), Workers: 1, Recorder: rec, RunID: "run"}

	saved, err := d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(3), day(4), day(5)}})
	assert.ErrorContains(t, err, "archive error")
	require.Len(t, saved, 2)
	for _, p := range saved {
		assert.FileExists(t, p)
	}
	assert.Len(t, rec.files, len(saved))
}

func TestDownloadEOFsValidation(t *testing.T) {
	d := &Downloader{Source: &fakeSource{}, SaveDir: t.TempDir()}

	_, err := d.DownloadEOFs(context.Background(), Request{Times: []time.Time{day(2)}, Missions: []products.Mission{"S2A"}})
	assert.ErrorIs(t, err, products.ErrInvalidMission)

	_, err = d.DownloadEOFs(context.Background(), Request{
		Times:    []time.Time{day(2), day(3)},
		Missions: []products.Mission{products.MissionS1A},
	})
	assert.ErrorContains(t, err, "same length")

	_, err = d.DownloadEOFs(context.Background(), Request{SentinelFile: "not-a-product.zip"})
	assert.ErrorIs(t, err, products.ErrUnrecognized)
}

func TestDownloadEOFsSentinelFile(t *testing.T) {
	d := &Downloader{Source: &fakeSource{}, SaveDir: t.TempDir()}

	saved, err := d.DownloadEOFs(context.Background(), Request{
		SentinelFile: "S1B_IW_SLC__1SDV_20210211T014456_20210211T014523_010427_01300B_3B5E.zip",
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Contains(t, filepath.Base(saved[0]), "S1B_OPER_AUX_POEORB")
}

func TestDownloaderMain(t *testing.T) {
	t.Run("date and mission must come together", func(t *testing.T) {
		d := &Downloader{Source: &fakeSource{}}
		_, err := d.Main(context.Background(), Options{SaveDir: t.TempDir(), Date: "20210205"})
		assert.ErrorContains(t, err, "together")
	})

	t.Run("date and mission", func(t *testing.T) {
		save := filepath.Join(t.TempDir(), "orbits")
		d := &Downloader{Source: &fakeSource{}}
		saved, err := d.Main(context.Background(), Options{SaveDir: save, Date: "2021-02-05", Mission: "s1a"})
		require.NoError(t, err)
		require.Len(t, saved, 1)
		assert.DirExists(t, save)
	})

	t.Run("empty search path", func(t *testing.T) {
		d := &Downloader{Source: &fakeSource{}}
		saved, err := d.Main(context.Background(), Options{SaveDir: t.TempDir(), SearchPath: t.TempDir()})
		require.NoError(t, err)
		assert.Empty(t, saved)
	})

	t.Run("directory scan", func(t *testing.T) {
		search := t.TempDir()
		touch(t, search, "S1A_IW_SLC__1SDV_20210206T043025_20210206T043053_036471_0447F1_AB12.zip")
		touch(t, search, "S1B_IW_SLC__1SDV_20210208T014456_20210208T014523_025537_030B3E_CD34.zip")

		src := &fakeSource{}
		d := &Downloader{Source: src}
		saved, err := d.Main(context.Background(), Options{SaveDir: t.TempDir(), SearchPath: search})
		require.NoError(t, err)
		assert.Len(t, saved, 2)
		assert.Len(t, src.fetched, 2)
	})
}

func TestOptionsDescribe(t *testing.T) {
	assert.Equal(t, "S1A 2021-02-05", Options{Mission: "s1a", Date: "2021-02-05"}.Describe())
	assert.Equal(t, "x.zip", Options{SentinelFile: "/a/x.zip"}.Describe())
	assert.Equal(t, "/data", Options{SearchPath: "/data"}.Describe())
}
