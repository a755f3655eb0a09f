// Package asf looks up orbit files in the ASF Sentinel-1 QC listing.
package asf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sentineleof/eof/internal/fetch"
	"github.com/sentineleof/eof/internal/links"
	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/internal/source"
	"github.com/sentineleof/eof/pkg/products"
)

// DefaultBaseURL is the root of the ASF orbit listings.
const DefaultBaseURL = "https://s1qc.asf.alaska.edu"

var logger = logging.New("asf")

// Client reads the ASF listings.
type Client struct {
	baseURL string
	http    *fetch.Client
}

// New creates a Client. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, http *fetch.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: http}
}

// Name implements source.Source.
func (c *Client) Name() string { return "asf" }

// ListURL returns the listing page for an orbit type.
func (c *Client) ListURL(orbitType products.OrbitType) string {
	return fmt.Sprintf("%s/aux_%s/", c.baseURL, strings.ToLower(string(orbitType)))
}

// EOFList returns every orbit file in the listing. Names that do not parse
// are skipped.
func (c *Client) EOFList(ctx context.Context, orbitType products.OrbitType) ([]products.Orbit, error) {
	url := c.ListURL(orbitType)
	logger.Debugf("listing %s", url)

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	names, err := links.FindEOFLinks(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read listing %s: %w", url, err)
	}

	out := make([]products.Orbit, 0, len(names))
	for _, name := range names {
		o, err := products.ParseOrbit(name)
		if err != nil {
			logger.Debugf("skipping %s: %v", name, err)
			continue
		}
		out = append(out, o)
	}
	products.SortOrbits(out)
	return out, nil
}

// DownloadURL returns the URL of the freshest orbit of the mission whose
// validity contains t.
func (c *Client) DownloadURL(ctx context.Context, t time.Time, mission products.Mission, orbitType products.OrbitType) (string, error) {
	all, err := c.EOFList(ctx, orbitType)
	if err != nil {
		return "", err
	}
	var candidates []products.Orbit
	for _, o := range all {
		if mission == "" || o.Mission == mission {
			candidates = append(candidates, o)
		}
	}
	best, err := products.LastValidityCover(t, t, candidates)
	if err != nil {
		return "", err
	}
	return c.ListURL(orbitType) + best.Filename, nil
}

// FindOrbits implements source.Source.
func (c *Client) FindOrbits(ctx context.Context, mission products.Mission, t time.Time, orbitType products.OrbitType) ([]source.Link, error) {
	types := []products.OrbitType{products.Restituted}
	if orbitType == products.Precise {
		types = []products.OrbitType{products.Precise, products.Restituted}
	}

	for _, ot := range types {
		url, err := c.DownloadURL(ctx, t, mission, ot)
		if errors.Is(err, products.ErrNoCover) {
			if ot == products.Precise {
				logger.Warnf("No precise orbit for %s at %s, searching RESORB", mission, t.Format(time.RFC3339))
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		o, err := products.ParseOrbit(url)
		if err != nil {
			return nil, err
		}
		return []source.Link{{URL: url, Orbit: o}}, nil
	}
	return nil, fmt.Errorf("%w on asf for %s", source.ErrNoOrbits, t.Format(time.RFC3339))
}

// Fetch implements source.Source.
func (c *Client) Fetch(ctx context.Context, link source.Link, dst io.Writer) (int64, error) {
	return c.http.Download(ctx, link.URL, dst)
}

// Ping implements source.Source.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.ListURL(products.Precise))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
