package products

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrNoCover is returned when no orbit spans the requested interval.
var ErrNoCover = errors.New("no orbit covers the requested interval")

// SortOrbits orders orbits by validity start, then by creation time.
func SortOrbits(orbits []Orbit) {
	sort.SliceStable(orbits, func(i, j int) bool {
		if !orbits[i].Start.Equal(orbits[j].Start) {
			return orbits[i].Start.Before(orbits[j].Start)
		}
		return orbits[i].Created.Before(orbits[j].Created)
	})
}

// LastValidityCover returns the most recently created orbit whose validity
// window covers [t0, t1].
func LastValidityCover(t0, t1 time.Time, orbits []Orbit) (Orbit, error) {
	var (
		best  Orbit
		found bool
	)
	for _, o := range orbits {
		if !o.Covers(t0, t1) {
			continue
		}
		if !found || o.Created.After(best.Created) {
			best = o
			found = true
		}
	}
	if !found {
		return Orbit{}, fmt.Errorf("%w: [t0=%s, t1=%s]", ErrNoCover,
			t0.Format(time.RFC3339), t1.Format(time.RFC3339))
	}
	return best, nil
}

// ParseTime parses dates such as 2020-01-01, 20200101, 20200101T120000 or
// RFC 3339 timestamps. Times without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	// dateparse does not know the compact Sentinel layout.
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.UTC(), nil
}
