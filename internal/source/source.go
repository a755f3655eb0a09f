// Package source defines the contract between the downloader and the remote
// archives that publish orbit files.
package source

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sentineleof/eof/pkg/products"
)

var (
	// ErrNoOrbits means the archive answered but holds no matching orbit file.
	ErrNoOrbits = errors.New("no orbit files found")
	// ErrNotAvailable means the archive has not published orbits for the date yet.
	ErrNotAvailable = errors.New("orbits not available yet")
)

// Link is a downloadable orbit file.
type Link struct {
	URL   string
	Orbit products.Orbit
	// ID is the archive-specific product identifier, when there is one.
	ID string
}

// Filename is the name the orbit file is saved under.
func (l Link) Filename() string {
	return l.Orbit.Filename
}

// Source finds and fetches orbit files from one archive.
type Source interface {
	Name() string
	// FindOrbits returns the orbit files to download for an acquisition at t.
	// An empty mission matches both satellites. Precise lookups fall back
	// to restituted orbits when no precise file exists.
	FindOrbits(ctx context.Context, mission products.Mission, t time.Time, orbitType products.OrbitType) ([]Link, error)
	Fetch(ctx context.Context, link Link, dst io.Writer) (int64, error)
	// Ping checks that the archive is reachable.
	Ping(ctx context.Context) error
}

// Names lists the supported archives.
var Names = []string{"esa", "scihub", "asf"}
