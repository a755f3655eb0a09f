// Package scihub queries the Copernicus GNSS hub for orbit products.
package scihub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sentineleof/eof/internal/fetch"
	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/pkg/products"
)

const (
	// DefaultAPIURL is the GNSS hub endpoint.
	DefaultAPIURL = "https://scihub.copernicus.eu/gnss/"
	// DefaultUser and DefaultPassword are the public guest credentials.
	DefaultUser     = "gnssguest"
	DefaultPassword = "gnssguest"

	// DefaultMargin widens precise orbit searches on both sides of the acquisition.
	DefaultMargin = 24 * time.Hour

	pageSize       = 100
	queryTimeFmt   = "2006-01-02T15:04:05.000Z"
	coverageWindow = time.Minute
)

var logger = logging.New("scihub")

// Product is one entry of a hub search result.
type Product struct {
	ID            string    `json:"id" yaml:"id"`
	Title         string    `json:"title" yaml:"title"`
	Identifier    string    `json:"identifier" yaml:"identifier"`
	Filename      string    `json:"filename" yaml:"filename"`
	ProductType   string    `json:"product_type" yaml:"product_type"`
	Size          string    `json:"size,omitempty" yaml:"size,omitempty"`
	BeginPosition time.Time `json:"begin_position" yaml:"begin_position"`
	EndPosition   time.Time `json:"end_position" yaml:"end_position"`
}

// Products maps product ID to product.
type Products map[string]Product

// Merge copies all of other into p.
func (p Products) Merge(other Products) {
	for k, v := range other {
		p[k] = v
	}
}

// Query is a search over orbit products.
type Query struct {
	ProductType string
	Mission     products.Mission
	// Orbits must start before End and stop after Start.
	Start time.Time
	End   time.Time
}

// String renders the OpenSearch query expression.
func (q Query) String() string {
	var parts []string
	if q.ProductType != "" {
		parts = append(parts, "producttype:"+q.ProductType)
	}
	if q.Mission != "" {
		parts = append(parts, "platformserialidentifier:"+q.Mission.SerialID())
	}
	if !q.End.IsZero() {
		parts = append(parts, fmt.Sprintf("beginposition:[* TO %s]", q.End.UTC().Format(queryTimeFmt)))
	}
	if !q.Start.IsZero() {
		parts = append(parts, fmt.Sprintf("endposition:[%s TO *]", q.Start.UTC().Format(queryTimeFmt)))
	}
	return strings.Join(parts, " ")
}

// Client talks to the GNSS hub.
type Client struct {
	apiURL string
	http   *fetch.Client
}

// New creates a Client. Empty values fall back to the public defaults.
func New(apiURL, user, password string, http *fetch.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	if user == "" {
		user, password = DefaultUser, DefaultPassword
	}
	return &Client{apiURL: apiURL, http: http.WithAuth(user, password)}
}

// Name implements source.Source.
func (c *Client) Name() string { return "scihub" }

// Query runs a search and follows pagination until all results are read.
func (c *Client) Query(ctx context.Context, q Query) (Products, error) {
	logger.Debugf("query parameter: %s", q)

	out := make(Products)
	for start := 0; ; start += pageSize {
		v := url.Values{}
		v.Set("format", "json")
		v.Set("rows", strconv.Itoa(pageSize))
		v.Set("start", strconv.Itoa(start))
		v.Set("q", q.String())

		res, err := c.http.GetJSON(ctx, c.apiURL+"search?"+v.Encode())
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", q, err)
		}
		feed := res.Get("feed")
		if !feed.Exists() {
			return nil, fmt.Errorf("query %s: response has no feed", q)
		}

		page := parseEntries(feed.Get("entry"))
		for _, p := range page {
			out[p.ID] = p
		}

		total := int(feed.Get(`opensearch:totalResults`).Int())
		if len(page) == 0 || start+pageSize >= total {
			break
		}
	}
	return out, nil
}

// parseEntries handles both a single entry object and an array of entries.
func parseEntries(entries gjson.Result) []Product {
	var out []Product
	each(entries, func(e gjson.Result) {
		p := Product{
			ID:    e.Get("id").String(),
			Title: e.Get("title").String(),
		}
		each(e.Get("str"), func(s gjson.Result) {
			switch s.Get("name").String() {
			case "identifier":
				p.Identifier = s.Get("content").String()
			case "filename":
				p.Filename = s.Get("content").String()
			case "producttype":
				p.ProductType = s.Get("content").String()
			case "size":
				p.Size = s.Get("content").String()
			}
		})
		each(e.Get("date"), func(d gjson.Result) {
			t, err := products.ParseTime(d.Get("content").String())
			if err != nil {
				return
			}
			switch d.Get("name").String() {
			case "beginposition":
				p.BeginPosition = t
			case "endposition":
				p.EndPosition = t
			}
		})
		if p.Identifier == "" {
			p.Identifier = p.Title
		}
		if p.Filename == "" && p.Identifier != "" {
			p.Filename = p.Identifier + ".EOF"
		}
		if p.ID != "" {
			out = append(out, p)
		}
	})
	return out
}

func each(r gjson.Result, fn func(gjson.Result)) {
	switch {
	case !r.Exists():
	case r.IsArray():
		r.ForEach(func(_, v gjson.Result) bool {
			fn(v)
			return true
		})
	default:
		fn(r)
	}
}

// QueryOrbit searches for orbits of one type whose validity intersects [t0, t1].
func (c *Client) QueryOrbit(ctx context.Context, t0, t1 time.Time, mission products.Mission, orbitType products.OrbitType) (Products, error) {
	if !mission.Valid() {
		return nil, fmt.Errorf("%w: %q", products.ErrInvalidMission, mission)
	}
	if orbitType != products.Precise && orbitType != products.Restituted {
		return nil, fmt.Errorf("%w: %q", products.ErrInvalidOrbitType, orbitType)
	}
	return c.Query(ctx, Query{
		ProductType: orbitType.ProductType(),
		Mission:     mission,
		Start:       t0,
		End:         t1,
	})
}

// SelectOrbit keeps the most recently created product covering [t0, t1].
func SelectOrbit(found Products, t0, t1 time.Time) (Products, error) {
	if len(found) == 0 {
		return Products{}, nil
	}
	orbits := make([]products.Orbit, 0, len(found))
	for _, p := range found {
		o, err := products.ParseOrbit(p.Identifier)
		if err != nil {
			logger.Debugf("skipping %s: %v", p.Identifier, err)
			continue
		}
		orbits = append(orbits, o)
	}
	best, err := products.LastValidityCover(t0, t1, orbits)
	if err != nil {
		return nil, err
	}

	out := make(Products)
	for id, p := range found {
		if p.Identifier == strings.TrimSuffix(best.Filename, ".EOF") || p.Identifier == best.Filename {
			out[id] = p
		}
	}
	return out, nil
}

// QueryOrbitForProduct finds the orbit for a Sentinel-1 product.
func (c *Client) QueryOrbitForProduct(ctx context.Context, product products.Product, orbitType products.OrbitType, t0Margin, t1Margin time.Duration) (Products, error) {
	return c.QueryOrbitByDT(ctx, []products.Mission{product.Mission}, []time.Time{product.Start}, orbitType, t0Margin, t1Margin)
}

// QueryOrbitByDT finds one orbit per (mission, time) pair. Precise lookups
// search [t-t0Margin, t+t1Margin] and fall back to restituted orbits within an
// hour of t. Pairs with no orbit are logged, not returned as errors.
func (c *Client) QueryOrbitByDT(ctx context.Context, missions []products.Mission, times []time.Time, orbitType products.OrbitType, t0Margin, t1Margin time.Duration) (Products, error) {
	if len(missions) != len(times) {
		return nil, fmt.Errorf("got %d missions for %d times", len(missions), len(times))
	}
	if t0Margin == 0 {
		t0Margin = DefaultMargin
	}
	if t1Margin == 0 {
		t1Margin = DefaultMargin
	}

	query := make(Products)
	var remaining []string
	for i, t := range times {
		mission := missions[i]

		var result Products
		if orbitType == products.Precise {
			found, err := c.QueryOrbit(ctx, t.Add(-t0Margin), t.Add(t1Margin), mission, products.Precise)
			if err != nil {
				return nil, err
			}
			result, err = selectCovering(found, t)
			if err != nil {
				return nil, err
			}
		}

		if len(result) == 0 {
			found, err := c.QueryOrbit(ctx, t.Add(-time.Hour), t.Add(time.Hour), mission, products.Restituted)
			if err != nil {
				return nil, err
			}
			result, err = selectCovering(found, t)
			if err != nil {
				return nil, err
			}
		}

		if len(result) == 0 {
			remaining = append(remaining, fmt.Sprintf("(%s, %s)", mission, t.Format(time.RFC3339)))
			continue
		}
		query.Merge(result)
	}

	if len(remaining) > 0 {
		logger.Warnf("The following dates were not found: %s", strings.Join(remaining, ", "))
	}
	return query, nil
}

// selectCovering treats "no product covers t" as an empty result.
func selectCovering(found Products, t time.Time) (Products, error) {
	result, err := SelectOrbit(found, t, t.Add(coverageWindow))
	if errors.Is(err, products.ErrNoCover) {
		return Products{}, nil
	}
	return result, err
}

// ServerIsUp pings the hub with a small query.
func (c *Client) ServerIsUp(ctx context.Context) bool {
	if err := c.Ping(ctx); err != nil {
		logger.Warnf("Cannot connect to the server: %v", err)
		return false
	}
	return true
}

// Ping implements source.Source.
func (c *Client) Ping(ctx context.Context) error {
	v := url.Values{}
	v.Set("format", "json")
	v.Set("rows", "1")
	v.Set("q", Query{ProductType: products.Precise.ProductType(), Mission: products.MissionS1A}.String())
	_, err := c.http.GetJSON(ctx, c.apiURL+"search?"+v.Encode())
	return err
}
