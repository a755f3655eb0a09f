// Package download finds and saves orbit files for Sentinel-1 acquisitions.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/internal/source"
	"github.com/sentineleof/eof/pkg/products"
)

// MaxWorkers is the default number of parallel lookups.
const MaxWorkers = 20

var logger = logging.New("download")

// Recorder receives every saved orbit file. The catalog implements it.
type Recorder interface {
	RecordDownload(runID string, orbit products.Orbit, path, source, url string, size int64) error
}

// Downloader saves orbit files from one source into a directory.
type Downloader struct {
	Source    source.Source
	SaveDir   string
	OrbitType products.OrbitType
	Workers   int
	Recorder  Recorder
	RunID     string
}

// Request lists acquisitions to download orbits for.
type Request struct {
	// Times and Missions are parallel. Missions may be empty to match both
	// satellites; otherwise it must be as long as Times.
	Times    []time.Time
	Missions []products.Mission
	// SentinelFile overrides Times and Missions with the product's start and mission.
	SentinelFile string
}

// normalize applies SentinelFile and validates lengths and missions.
func (r Request) normalize() ([]time.Time, []products.Mission, error) {
	for _, m := range r.Missions {
		if !m.Valid() {
			return nil, nil, fmt.Errorf("%w: %q", products.ErrInvalidMission, m)
		}
	}

	times, missions := r.Times, r.Missions
	if r.SentinelFile != "" {
		p, err := products.ParseProduct(r.SentinelFile)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid sentinel file: %w", err)
		}
		times, missions = []time.Time{p.Start}, []products.Mission{p.Mission}
	}

	if len(missions) > 0 && len(missions) != len(times) {
		return nil, nil, fmt.Errorf("missions arg must be same length as times: %d != %d", len(missions), len(times))
	}
	if len(missions) == 0 {
		missions = make([]products.Mission, len(times))
	}
	return times, missions, nil
}

// DownloadEOFs saves the orbit files for every requested acquisition and
// returns the saved paths in request order. Acquisitions without an orbit
// are logged and skipped. On error the paths saved before the failure are
// returned alongside it.
func (d *Downloader) DownloadEOFs(ctx context.Context, req Request) ([]string, error) {
	times, missions, err := req.normalize()
	if err != nil {
		return nil, err
	}

	workers := d.Workers
	if workers <= 0 {
		workers = MaxWorkers
	}

	results := make([][]string, len(times))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range times {
		g.Go(func() error {
			saved, err := d.downloadAndWrite(gctx, missions[i], times[i])
			results[i] = saved
			if err != nil {
				return err
			}
			logger.Infof("Finished %s, saved to %v", times[i].Format(time.DateOnly), saved)
			return nil
		})
	}
	err = g.Wait()

	var filenames []string
	for _, r := range results {
		filenames = append(filenames, r...)
	}
	return filenames, err
}

// downloadAndWrite saves the orbit files for one acquisition. A file already
// present in SaveDir short-circuits the remaining links.
func (d *Downloader) downloadAndWrite(ctx context.Context, mission products.Mission, t time.Time) ([]string, error) {
	orbitType := d.OrbitType
	if orbitType == "" {
		orbitType = products.Precise
	}

	found, err := d.Source.FindOrbits(ctx, mission, t, orbitType)
	if err != nil {
		if errors.Is(err, source.ErrNoOrbits) || errors.Is(err, source.ErrNotAvailable) {
			logger.Warnf("%v", err)
			logger.Warnf("Skipping %s", t.Format(time.DateOnly))
			return nil, nil
		}
		return nil, fmt.Errorf("find orbits for %s: %w", t.Format(time.RFC3339), err)
	}

	var saved []string
	for _, link := range found {
		path := filepath.Join(d.SaveDir, link.Filename())
		if _, err := os.Stat(path); err == nil {
			logger.Infof("%s already exists, skipping download.", link.Filename())
			return []string{path}, nil
		}

		logger.Infof("Downloading %s", link.URL)
		size, err := d.save(ctx, link, path)
		if err != nil {
			return saved, err
		}
		logger.Infof("Saving to %s", path)

		if d.Recorder != nil {
			if err := d.Recorder.RecordDownload(d.RunID, link.Orbit, path, d.Source.Name(), link.URL, size); err != nil {
				logger.Warnf("catalog: %v", err)
			}
		}
		saved = append(saved, path)
	}
	return saved, nil
}

// save writes through a temporary file that is renamed into place once
// the transfer completes.
func (d *Downloader) save(ctx context.Context, link source.Link, path string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := d.Source.Fetch(ctx, link, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", link.URL, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("save %s: %w", path, err)
	}
	return n, nil
}

// Options drives Main.
type Options struct {
	SearchPath   string
	SaveDir      string
	SentinelFile string
	Mission      string
	Date         string
}

// Main resolves what to download from opts: a product file, a date and
// mission, or else every Sentinel-1 product found in SearchPath.
func (d *Downloader) Main(ctx context.Context, opts Options) ([]string, error) {
	if opts.SaveDir == "" {
		opts.SaveDir = "."
	}
	if opts.SearchPath == "" {
		opts.SearchPath = "."
	}
	d.SaveDir = opts.SaveDir

	if _, err := os.Stat(opts.SaveDir); os.IsNotExist(err) {
		logger.Infof("Creating directory for output: %s", opts.SaveDir)
		if err := os.MkdirAll(opts.SaveDir, 0755); err != nil {
			return nil, fmt.Errorf("create save dir: %w", err)
		}
	}

	if (opts.Mission != "") != (opts.Date != "") {
		return nil, errors.New("must specify date and mission together")
	}

	var req Request
	switch {
	case opts.SentinelFile != "":
		req.SentinelFile = opts.SentinelFile
	case opts.Date != "":
		t, err := products.ParseTime(opts.Date)
		if err != nil {
			return nil, err
		}
		m, err := products.ParseMission(opts.Mission)
		if err != nil {
			return nil, err
		}
		req.Times = []time.Time{t}
		req.Missions = []products.Mission{m}
	default:
		scenes, err := FindScenesToDownload(opts.SearchPath, opts.SaveDir)
		if err != nil {
			return nil, err
		}
		if len(scenes) == 0 {
			logger.Infof("No Sentinel products found in directory %s, exiting", opts.SearchPath)
			return nil, nil
		}
		for _, s := range scenes {
			req.Times = append(req.Times, s.Start)
			req.Missions = append(req.Missions, s.Mission)
		}
	}

	return d.DownloadEOFs(ctx, req)
}

// Describe summarises a request target for run records.
func (o Options) Describe() string {
	switch {
	case o.SentinelFile != "":
		return filepath.Base(o.SentinelFile)
	case o.Date != "":
		return strings.ToUpper(o.Mission) + " " + o.Date
	default:
		return o.SearchPath
	}
}
