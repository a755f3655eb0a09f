package scihub

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sentineleof/eof/internal/source"
	"github.com/sentineleof/eof/pkg/products"
)

// DownloadWorkers bounds concurrent transfers in DownloadAll.
const DownloadWorkers = 4

// Result describes one downloaded product.
type Result struct {
	ID      string
	Path    string
	Size    int64
	Skipped bool
}

func (c *Client) valueURL(id string) string {
	return fmt.Sprintf("%sodata/v1/Products('%s')/$value", c.apiURL, id)
}

func (c *Client) metadataURL(id string) string {
	return fmt.Sprintf("%sodata/v1/Products('%s')?$format=json", c.apiURL, id)
}

// Checksum returns the MD5 published for a product, or "" when the hub has none.
func (c *Client) Checksum(ctx context.Context, id string) (string, error) {
	res, err := c.http.GetJSON(ctx, c.metadataURL(id))
	if err != nil {
		return "", fmt.Errorf("get metadata for %s: %w", id, err)
	}
	if algo := res.Get("d.Checksum.Algorithm").String(); algo != "" && !strings.EqualFold(algo, "MD5") {
		return "", nil
	}
	return strings.ToLower(res.Get("d.Checksum.Value").String()), nil
}

// Download saves one product into dir. Existing files are left alone.
func (c *Client) Download(ctx context.Context, p Product, dir string) (Result, error) {
	path := filepath.Join(dir, p.Filename)
	if info, err := os.Stat(path); err == nil {
		logger.Infof("%s already exists, skipping download.", path)
		return Result{ID: p.ID, Path: path, Size: info.Size(), Skipped: true}, nil
	}

	want, err := c.Checksum(ctx, p.ID)
	if err != nil {
		logger.Warnf("no checksum for %s: %v", p.ID, err)
	}

	tmp, err := os.CreateTemp(dir, "."+p.Filename+".*.part")
	if err != nil {
		return Result{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	logger.Infof("Downloading %s", p.Filename)
	n, err := c.http.Download(ctx, c.valueURL(p.ID), io.MultiWriter(tmp, h))
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return Result{}, fmt.Errorf("download %s: %w", p.ID, err)
	}

	if got := hex.EncodeToString(h.Sum(nil)); want != "" && got != want {
		return Result{}, fmt.Errorf("checksum mismatch for %s: got %s, want %s", p.Filename, got, want)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Result{}, fmt.Errorf("save %s: %w", path, err)
	}
	logger.Infof("Saving to %s", path)

	return Result{ID: p.ID, Path: path, Size: n}, nil
}

// DownloadAll saves every product into dir, DownloadWorkers at a time.
// Failed products are reported in the second map and do not stop the others.
func (c *Client) DownloadAll(ctx context.Context, found Products, dir string) (map[string]Result, map[string]error) {
	var (
		mu      sync.Mutex
		results = make(map[string]Result)
		failed  = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(DownloadWorkers)
	for id, p := range found {
		g.Go(func() error {
			r, err := c.Download(gctx, p, dir)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[id] = err
				return nil
			}
			results[id] = r
			return nil
		})
	}
	g.Wait()

	return results, failed
}

// FindOrbits implements source.Source.
func (c *Client) FindOrbits(ctx context.Context, mission products.Mission, t time.Time, orbitType products.OrbitType) ([]source.Link, error) {
	missions := []products.Mission{mission}
	if mission == "" {
		missions = []products.Mission{products.MissionS1A, products.MissionS1B}
	}

	var out []source.Link
	for _, m := range missions {
		found, err := c.QueryOrbitByDT(ctx, []products.Mission{m}, []time.Time{t}, orbitType, 0, 0)
		if err != nil {
			return nil, err
		}
		for id, p := range found {
			o, err := products.ParseOrbit(p.Filename)
			if err != nil {
				continue
			}
			out = append(out, source.Link{URL: c.valueURL(id), Orbit: o, ID: id})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w on %s for %s", source.ErrNoOrbits, c.Name(), t.Format(time.RFC3339))
	}
	return out, nil
}

// Fetch implements source.Source. Links carrying a product ID are checked
// against the published MD5; dst holds the bytes either way, so callers
// must discard it on error.
func (c *Client) Fetch(ctx context.Context, link source.Link, dst io.Writer) (int64, error) {
	if link.ID == "" {
		return c.http.Download(ctx, link.URL, dst)
	}

	want, err := c.Checksum(ctx, link.ID)
	if err != nil {
		logger.Warnf("no checksum for %s: %v", link.ID, err)
	}

	h := md5.New()
	n, err := c.http.Download(ctx, link.URL, io.MultiWriter(dst, h))
	if err != nil {
		return n, err
	}
	if got := hex.EncodeToString(h.Sum(nil)); want != "" && got != want {
		return n, fmt.Errorf("checksum mismatch for %s: got %s, want %s", link.Filename(), got, want)
	}
	return n, nil
}
