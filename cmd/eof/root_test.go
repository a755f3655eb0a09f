package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineleof/eof/internal/asf"
	"github.com/sentineleof/eof/internal/catalog"
	"github.com/sentineleof/eof/internal/config"
	"github.com/sentineleof/eof/internal/download"
	"github.com/sentineleof/eof/internal/esa"
	"github.com/sentineleof/eof/internal/scihub"
	"github.com/sentineleof/eof/internal/source"
	"github.com/sentineleof/eof/pkg/products"
)

const testOrbit = "S1A_OPER_AUX_POEORB_OPOD_20210225T121438_V20210204T225942_20210206T005942.EOF"

type stubSource struct{}

func (stubSource) Name() string { return "stub" }

func (stubSource) FindOrbits(ctx context.Context, m products.Mission, t time.Time, ot products.OrbitType) ([]source.Link, error) {
	o, err := products.ParseOrbit(testOrbit)
	if err != nil {
		return nil, err
	}
	if !o.Contains(t) {
		return nil, source.ErrNoOrbits
	}
	return []source.Link{{URL: "http://stub/" + testOrbit, Orbit: o}}, nil
}

func (stubSource) Fetch(ctx context.Context, link source.Link, dst io.Writer) (int64, error) {
	n, err := io.WriteString(dst, "<Earth_Explorer_File/>")
	return int64(n), err
}

func (stubSource) Ping(ctx context.Context) error { return nil }

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
			f.Value.Set(f.DefValue)
			f.Changed = false
		})
	})
}

func TestApplyFlags(t *testing.T) {
	resetFlags(t)

	require.NoError(t, rootCmd.ParseFlags([]string{
		"--save-dir", "/data/orbits",
		"--source", "asf",
		"--workers", "4",
		"--no-catalog",
	}))

	c := config.Default()
	c.OrbitType = "restituted"
	applyFlags(rootCmd, c)

	assert.Equal(t, "/data/orbits", c.SaveDir)
	assert.Equal(t, "asf", c.Source)
	assert.Equal(t, 4, c.Workers)
	assert.False(t, c.Catalog.Enabled)
	// Unset flags keep the configured value.
	assert.Equal(t, "restituted", c.OrbitType)
	assert.Equal(t, ".", c.SearchPath)
}

func TestNewSource(t *testing.T) {
	c := config.Default()

	tests := []struct {
		name string
		want any
	}{
		{"esa", &esa.Client{}},
		{"", &esa.Client{}},
		{"ASF", &asf.Client{}},
		{"scihub", &scihub.Client{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := newSource(c, tt.name)
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}

	_, err := newSource(c, "nasa")
	assert.ErrorContains(t, err, "unknown source")
}

func TestRecordRun(t *testing.T) {
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	saveDir := t.TempDir()
	d := &download.Downloader{Source: stubSource{}, SaveDir: saveDir}
	req := download.Request{
		Times:    []time.Time{time.Date(2021, 2, 5, 4, 30, 0, 0, time.UTC)},
		Missions: []products.Mission{products.MissionS1A},
	}

	saved, err := recordRun(db, d, "S1A 2021-02-05", saveDir, func() ([]string, error) {
		return d.DownloadEOFs(context.Background(), req)
	})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Nil(t, d.Recorder)

	runs, err := db.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.RunFinished, runs[0].Status)
	assert.Equal(t, "S1A 2021-02-05", runs[0].Target)
	assert.Equal(t, "stub", runs[0].Source)
	assert.Equal(t, 1, runs[0].Saved)

	downloads, err := db.ListDownloads(catalog.Filter{RunID: runs[0].ID})
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, testOrbit, downloads[0].Filename)

	has, err := db.Has(testOrbit)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRecordRunFailure(t *testing.T) {
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	d := &download.Downloader{Source: stubSource{}}
	_, err = recordRun(db, d, "x", "/tmp", func() ([]string, error) {
		return nil, errors.New("archive down")
	})
	assert.ErrorContains(t, err, "archive down")

	runs, err := db.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.RunFailed, runs[0].Status)
	assert.Equal(t, "archive down", runs[0].Error)
}

func TestRecordRunCountsPartialSaves(t *testing.T) {
	db, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	d := &download.Downloader{Source: stubSource{}}
	saved, err := recordRun(db, d, "x", "/tmp", func() ([]string, error) {
		return []string{"a.EOF"}, errors.New("archive down")
	})
	assert.ErrorContains(t, err, "archive down")
	assert.Equal(t, []string{"a.EOF"}, saved)

	runs, err := db.ListRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, catalog.RunFailed, runs[0].Status)
	assert.Equal(t, 1, runs[0].Saved)
}

func TestRecordRunWithoutCatalog(t *testing.T) {
	d := &download.Downloader{Source: stubSource{}}
	saved, err := recordRun(nil, d, "x", "/tmp", func() ([]string, error) {
		return []string{"a.EOF"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.EOF"}, saved)
}

func TestWriteStructured(t *testing.T) {
	v := map[string]int{"saved": 2}

	var buf bytes.Buffer
	done, err := writeStructured(&buf, "json", v)
	require.NoError(t, err)
	assert.True(t, done)
	assert.JSONEq(t, `{"saved": 2}`, buf.String())

	buf.Reset()
	done, err = writeStructured(&buf, "yaml", v)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, "saved: 2\n", buf.String())

	buf.Reset()
	done, err = writeStructured(&buf, "text", v)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, buf.String())

	_, err = writeStructured(&buf, "xml", v)
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"MISSION", "FILE"}, [][]string{
		{"S1A", "a.EOF"},
		{"S1B", "longer-name.EOF"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "MISSION")
	assert.Contains(t, lines[2], "longer-name.EOF")
	// Second column starts at the same offset on every row.
	assert.Equal(t, strings.Index(lines[1], "a.EOF"), strings.Index(lines[2], "longer-name.EOF"))
}
