package download

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/sentineleof/eof/pkg/products"
)

// FindCurrentEOFs returns the orbit files in dir, sorted by validity start.
func FindCurrentEOFs(dir string) ([]products.Orbit, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*EOF"))
	if err != nil {
		return nil, fmt.Errorf("list orbit files in %s: %w", dir, err)
	}

	var out []products.Orbit
	for _, m := range matches {
		o, err := products.ParseOrbit(m)
		if err != nil {
			logger.Debugf("Skipping %s, not an orbit file", m)
			continue
		}
		out = append(out, o)
	}
	products.SortOrbits(out)
	return out, nil
}

// FindUniqueSAFEs returns the Sentinel-1 products in dir, one per product ID
// even when both the .SAFE directory and the .zip are present.
func FindUniqueSAFEs(dir string) ([]products.Product, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "S1*"))
	if err != nil {
		return nil, fmt.Errorf("list products in %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	var out []products.Product
	for _, m := range matches {
		p, err := products.ParseProduct(m)
		if err != nil {
			logger.Debugf("Skipping %s, not a Sentinel 1 file", m)
			continue
		}
		if seen[p.ID()] {
			continue
		}
		seen[p.ID()] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// Scene is an acquisition that still needs an orbit file.
type Scene struct {
	Mission products.Mission `json:"mission" yaml:"mission"`
	Start   time.Time        `json:"start" yaml:"start"`
	Product string           `json:"product" yaml:"product"`
}

// FindScenesToDownload lists the acquisitions in searchPath whose start time
// is not already covered by an orbit file in saveDir.
func FindScenesToDownload(searchPath, saveDir string) ([]Scene, error) {
	current, err := FindCurrentEOFs(saveDir)
	if err != nil {
		return nil, err
	}
	found, err := FindUniqueSAFEs(searchPath)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var scenes []Scene
	for _, p := range found {
		key := string(p.Mission) + p.Start.Format(products.TimeLayout)
		if seen[key] {
			continue
		}
		if covered(p, current) {
			logger.Infof("Skipping %s, already have EOF file", p.ID())
			continue
		}

		logger.Infof("Downloading precise orbits for %s on %s", p.Mission, p.Start.Format(time.DateOnly))
		seen[key] = true
		scenes = append(scenes, Scene{Mission: p.Mission, Start: p.Start, Product: p.ID()})
	}
	return scenes, nil
}

func covered(p products.Product, orbits []products.Orbit) bool {
	for _, o := range orbits {
		if o.Mission == p.Mission && o.Contains(p.Start) {
			return true
		}
	}
	return false
}
