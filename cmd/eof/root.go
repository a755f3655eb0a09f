package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/config"
	"github.com/sentineleof/eof/internal/download"
	"github.com/sentineleof/eof/internal/logging"
	"github.com/sentineleof/eof/pkg/products"
)

var (
	searchPath   string
	saveDir      string
	sentinelFile string
	date         string
	mission      string
	orbitType    string
	sourceName   string
	workers      int
	noCatalog    bool
	verbose      bool
)

// cfg is loaded before any command runs, with flag overrides applied.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "eof",
	Short: "Download Sentinel-1 precise orbit files",
	Long: `Download Sentinel-1 precise orbit (.EOF) files for the acquisition times
of Sentinel-1 products.

With no flags, searches the current directory for Sentinel-1 products
(.zip files or .SAFE directories) and downloads orbit files for every
scene that is not already covered by an orbit in the save directory.

Orbit files come from one of three archives:
  esa     ESA auxiliary data archive (default)
  scihub  Copernicus GNSS hub
  asf     ASF Sentinel-1 QC archive

Examples:
  eof                                   # orbits for products in ./
  eof -p /data/scenes --save-dir /data/orbits
  eof --date 20200101 --mission S1A
  eof --sentinel-file S1A_IW_SLC__1SDV_20180408T043025_..._1B70.zip
  eof --source scihub --orbit-type restituted -d 2021-02-05 -m S1B`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runDownload,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&saveDir, "save-dir", "", "Directory to save output files (default from config, or .)")
	rootCmd.PersistentFlags().StringVar(&orbitType, "orbit-type", "", "Orbit type: precise or restituted")
	rootCmd.PersistentFlags().StringVar(&sourceName, "source", "", "Orbit archive: esa, scihub or asf")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Maximum parallel lookups")
	rootCmd.PersistentFlags().BoolVar(&noCatalog, "no-catalog", false, "Do not record downloads in the catalog")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug output")

	rootCmd.Flags().StringVarP(&searchPath, "search-path", "p", "", "Directory to search for Sentinel-1 products")
	rootCmd.Flags().StringVar(&sentinelFile, "sentinel-file", "", "Download the orbit for one Sentinel-1 product file")
	rootCmd.Flags().StringVarP(&date, "date", "d", "", "Acquisition date (e.g. 20200101 or 2020-01-01T04:30:00); requires --mission")
	rootCmd.Flags().StringVarP(&mission, "mission", "m", "", "Satellite: S1A or S1B; requires --date")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration and layers explicitly set flags on top.
func setup(cmd *cobra.Command, args []string) error {
	logging.SetVerbose(verbose)

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, loaded)
	cfg = loaded
	return nil
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("save-dir") {
		c.SaveDir = saveDir
	}
	if flags.Changed("search-path") {
		c.SearchPath = searchPath
	}
	if flags.Changed("orbit-type") {
		c.OrbitType = orbitType
	}
	if flags.Changed("source") {
		c.Source = sourceName
	}
	if flags.Changed("workers") {
		c.Workers = workers
	}
	if flags.Changed("no-catalog") && noCatalog {
		c.Catalog.Enabled = false
	}
}

func runDownload(cmd *cobra.Command, args []string) error {
	ot, err := products.ParseOrbitType(cfg.OrbitType)
	if err != nil {
		return err
	}
	src, err := newSource(cfg, cfg.Source)
	if err != nil {
		return err
	}

	d := &download.Downloader{
		Source:    src,
		OrbitType: ot,
		Workers:   cfg.Workers,
	}
	opts := download.Options{
		SearchPath:   cfg.SearchPath,
		SaveDir:      cfg.SaveDir,
		SentinelFile: sentinelFile,
		Mission:      mission,
		Date:         date,
	}

	db := openCatalogIfEnabled(cfg)
	if db != nil {
		defer db.Close()
	}

	saved, err := recordRun(db, d, opts.Describe(), opts.SaveDir, func() ([]string, error) {
		return d.Main(cmd.Context(), opts)
	})
	if err != nil {
		return err
	}

	printSaved(saved)
	return nil
}

func printSaved(saved []string) {
	if len(saved) == 0 {
		fmt.Println("No orbit files downloaded.")
		return
	}
	for _, path := range saved {
		fmt.Printf("%s %s\n", color.GreenString("✓"), path)
	}
	fmt.Printf("\n%d orbit file(s) saved.\n", len(saved))
}
