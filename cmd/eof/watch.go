package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/catalog"
	"github.com/sentineleof/eof/internal/download"
	"github.com/sentineleof/eof/internal/source"
	"github.com/sentineleof/eof/internal/watch"
	"github.com/sentineleof/eof/pkg/products"
)

var (
	watchSearchPath string
	watchDebounce   time.Duration
	watchSkipSync   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Download orbits as new Sentinel-1 products arrive",
	Long: `Watch the search path and download the orbit file for every new
Sentinel-1 product that appears in it.

Before watching, orbits are fetched for any scene already present that lacks
one (skip with --no-sync). Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchSearchPath, "search-path", "p", "", "Directory to watch for Sentinel-1 products")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 0, "Quiet period before a new product is handled")
	watchCmd.Flags().BoolVar(&watchSkipSync, "no-sync", false, "Do not download orbits for products already present")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	search := cfg.SearchPath
	if watchSearchPath != "" {
		search = watchSearchPath
	}
	debounce := cfg.Watch.Debounce
	if cmd.Flags().Changed("debounce") {
		debounce = watchDebounce
	}

	ot, err := products.ParseOrbitType(cfg.OrbitType)
	if err != nil {
		return err
	}
	src, err := newSource(cfg, cfg.Source)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}

	db := openCatalogIfEnabled(cfg)
	if db != nil {
		defer db.Close()
	}

	h := &watchHandler{src: src, orbitType: ot, saveDir: cfg.SaveDir, workers: cfg.Workers, db: db}
	w := watch.New(search, debounce, h.handle)

	existing, err := download.FindUniqueSAFEs(search)
	if err != nil {
		return err
	}
	for _, p := range existing {
		w.MarkSeen(p.ID())
	}

	if !watchSkipSync && len(existing) > 0 {
		d := h.downloader()
		opts := download.Options{SearchPath: search, SaveDir: cfg.SaveDir}
		saved, err := recordRun(db, d, opts.Describe(), opts.SaveDir, func() ([]string, error) {
			return d.Main(ctx, opts)
		})
		if err != nil {
			return err
		}
		printSaved(saved)
	}

	return w.Run(ctx)
}

// watchHandler downloads the orbit for each product the watcher reports.
type watchHandler struct {
	src       source.Source
	orbitType products.OrbitType
	saveDir   string
	workers   int
	db        *catalog.DB
}

// downloader returns a fresh Downloader; handlers may run concurrently.
func (h *watchHandler) downloader() *download.Downloader {
	return &download.Downloader{
		Source:    h.src,
		SaveDir:   h.saveDir,
		OrbitType: h.orbitType,
		Workers:   h.workers,
	}
}

func (h *watchHandler) handle(ctx context.Context, p products.Product) {
	d := h.downloader()
	req := download.Request{
		Times:    []time.Time{p.Start},
		Missions: []products.Mission{p.Mission},
	}
	saved, err := recordRun(h.db, d, p.ID(), h.saveDir, func() ([]string, error) {
		return d.DownloadEOFs(ctx, req)
	})
	if err != nil {
		logger.Warnf("%s: %v", p.ID(), err)
		return
	}
	printSaved(saved)
}
