package main

import (
	"fmt"
	"strings"

	"github.com/sentineleof/eof/internal/asf"
	"github.com/sentineleof/eof/internal/catalog"
	"github.com/sentineleof/eof/internal/config"
	"github.com/sentineleof/eof/internal/download"
	"github.com/sentineleof/eof/internal/esa"
	"github.com/sentineleof/eof/internal/fetch"
	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/internal/scihub"
	"github.com/sentineleof/eof/internal/source"
)

var logger = logging.New("eof")

// newHTTPClient creates the shared HTTP client from the http.* settings.
func newHTTPClient(c *config.Config) *fetch.Client {
	return fetch.New(fetch.Options{
		Timeout:   c.HTTP.Timeout,
		Retries:   c.HTTP.Retries,
		UserAgent: c.HTTP.UserAgent,
	})
}

// newSource creates the named orbit archive client.
func newSource(c *config.Config, name string) (source.Source, error) {
	hc := newHTTPClient(c)
	switch strings.ToLower(name) {
	case "", "esa":
		return esa.New(c.ESA.BaseURL, hc), nil
	case "asf":
		return asf.New(c.ASF.BaseURL, hc), nil
	case "scihub":
		return newScihub(c, hc), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want one of %s)", name, strings.Join(source.Names, ", "))
	}
}

func newScihub(c *config.Config, hc *fetch.Client) *scihub.Client {
	user, password := config.ScihubCredentials(c)
	return scihub.New(c.Scihub.APIURL, user, password, hc)
}

// openCatalogIfEnabled opens the download catalog. A catalog that cannot be
// opened is logged and skipped; downloads still proceed.
func openCatalogIfEnabled(c *config.Config) *catalog.DB {
	if !c.Catalog.Enabled {
		return nil
	}
	path := c.Catalog.Path
	if path == "" {
		path = catalog.DefaultPath()
	}
	db, err := catalog.Open(path)
	if err != nil {
		logger.Warnf("Catalog disabled: %v", err)
		return nil
	}
	return db
}

// recordRun wraps fn in a catalog run when db is non-nil, wiring the
// downloader to record every saved file under that run.
func recordRun(db *catalog.DB, d *download.Downloader, target, saveDir string, fn func() ([]string, error)) ([]string, error) {
	if db == nil {
		return fn()
	}

	runID, err := db.StartRun(d.Source.Name(), target, saveDir)
	if err != nil {
		logger.Warnf("Not recording run: %v", err)
		return fn()
	}
	d.Recorder = db
	d.RunID = runID
	defer func() {
		d.Recorder = nil
		d.RunID = ""
	}()

	saved, runErr := fn()
	if err := db.FinishRun(runID, len(saved), runErr); err != nil {
		logger.Warnf("%v", err)
	}
	return saved, runErr
}
