// Package esa looks up orbit files in the ESA auxiliary data archive.
//
// The archive is organised by the orbit file's creation date, e.g.
// http://aux.sentinel1.eo.esa.int/POEORB/2021/03/18/, while callers care about
// the validity date. Precise orbits are reliably published about three weeks
// after the acquisition, restituted orbits within a few hours, so the page to
// search is the acquisition time plus a fixed offset.
package esa

import (
	"context"
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

// DefaultBaseURL is the root of the ESA auxiliary archive.
const DefaultBaseURL = "http://aux.sentinel1.eo.esa.int"

const (
	dateLayout = "2006/01/02"

	preciseOffset    = 20*24*time.Hour + 12*time.Hour
	restitutedOffset = 4 * time.Hour
)

var logger = logging.New("esa")

// Client searches the ESA archive.
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
func (c *Client) Name() string { return "esa" }

// SearchOffset returns how long after an acquisition the archive page holding
// its orbit file is dated.
func SearchOffset(orbitType products.OrbitType) time.Duration {
	if orbitType == products.Precise {
		return preciseOffset
	}
	return restitutedOffset
}

// PageURL returns the archive page searched for an acquisition at start.
func (c *Client) PageURL(start time.Time, orbitType products.OrbitType) string {
	search := start.Add(SearchOffset(orbitType))
	return fmt.Sprintf("%s/%s/%s/", c.baseURL, orbitType, search.Format(dateLayout))
}

// EOFList returns absolute URLs of the orbit files listed on the page for
// start. A precise lookup that finds no page or no files for the mission
// falls back to restituted orbits; the orbit type actually used is returned.
func (c *Client) EOFList(ctx context.Context, start time.Time, mission products.Mission, orbitType products.OrbitType) ([]string, products.OrbitType, error) {
	url := c.PageURL(start, orbitType)
	logger.Infof("Searching for EOFs at %s", url)

	resp, err := c.http.Get(ctx, url)
	if err != nil {
		if fetch.IsNotFound(err) {
			if orbitType == products.Precise {
				logger.Warnf("Precise orbits not available yet for %s, trying RESORB",
					start.Add(SearchOffset(orbitType)).Format(time.DateOnly))
				return c.EOFList(ctx, start, mission, products.Restituted)
			}
			return nil, orbitType, fmt.Errorf("%w for %s", source.ErrNotAvailable,
				start.Add(SearchOffset(orbitType)).Format(time.DateOnly))
		}
		return nil, orbitType, err
	}
	defer resp.Body.Close()

	names, err := links.FindEOFLinks(resp.Body)
	if err != nil {
		return nil, orbitType, fmt.Errorf("read listing %s: %w", url, err)
	}

	prefix := string(mission)
	if prefix == "" {
		prefix = "S1"
	}
	var out []string
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			out = append(out, url+name)
		}
	}

	if len(out) == 0 {
		if orbitType == products.Precise {
			logger.Warnf("No precise orbit files found for %s on %s, searching RESORB",
				missionLabel(mission), start.Format(dateLayout))
			return c.EOFList(ctx, start, mission, products.Restituted)
		}
		return nil, orbitType, fmt.Errorf("%w for %s on %s at %s", source.ErrNoOrbits,
			missionLabel(mission), start.Format(dateLayout), url)
	}
	return out, orbitType, nil
}

// DedupeLinks drops links whose orbit validity date repeats an earlier link.
// Unparsable links are dropped.
func DedupeLinks(urls []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range urls {
		o, err := products.ParseOrbit(u)
		if err != nil {
			logger.Debugf("skipping %s: %v", u, err)
			continue
		}
		key := string(o.Mission) + o.Date().Format(time.DateOnly)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

// PickPrecise keeps the precise orbits whose validity starts the day before
// and ends the day after the acquisition date.
func PickPrecise(urls []string, t time.Time) []string {
	before := t.AddDate(0, 0, -1).Format(time.DateOnly)
	after := t.AddDate(0, 0, 1).Format(time.DateOnly)

	var out []string
	for _, u := range urls {
		o, err := products.ParseOrbit(u)
		if err != nil {
			continue
		}
		if o.Start.Format(time.DateOnly) == before && o.Stop.Format(time.DateOnly) == after {
			out = append(out, u)
		}
	}
	return out
}

// FindOrbits implements source.Source.
func (c *Client) FindOrbits(ctx context.Context, mission products.Mission, t time.Time, orbitType products.OrbitType) ([]source.Link, error) {
	urls, used, err := c.EOFList(ctx, t, mission, orbitType)
	if err != nil {
		return nil, err
	}

	if used == products.Precise {
		urls = PickPrecise(DedupeLinks(urls), t)
		if len(urls) == 0 {
			return nil, fmt.Errorf("%w: no precise orbit spans %s", source.ErrNoOrbits, t.Format(time.DateOnly))
		}
		return toLinks(urls), nil
	}

	// Restituted files overlap heavily; take the freshest one covering t.
	var orbits []products.Orbit
	byName := make(map[string]string)
	for _, u := range urls {
		o, err := products.ParseOrbit(u)
		if err != nil {
			continue
		}
		orbits = append(orbits, o)
		byName[o.Filename] = u
	}
	best, err := products.LastValidityCover(t, t.Add(time.Minute), orbits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", source.ErrNoOrbits, err)
	}
	return toLinks([]string{byName[best.Filename]}), nil
}

// Fetch implements source.Source.
func (c *Client) Fetch(ctx context.Context, link source.Link, dst io.Writer) (int64, error) {
	return c.http.Download(ctx, link.URL, dst)
}

// Ping implements source.Source.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.http.Get(ctx, c.baseURL+"/")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func toLinks(urls []string) []source.Link {
	out := make([]source.Link, 0, len(urls))
	for _, u := range urls {
		o, err := products.ParseOrbit(u)
		if err != nil {
			continue
		}
		out = append(out, source.Link{URL: u, Orbit: o})
	}
	return out
}

func missionLabel(m products.Mission) string {
	if m == "" {
		return "S1A/S1B"
	}
	return string(m)
}
