package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/scihub"
	"github.com/sentineleof/eof/pkg/products"
)

var (
	queryDate         string
	queryMission      string
	querySentinelFile string
	queryOutput       string
	queryDownload     bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the GNSS hub for orbit products",
	Long: `Search the Copernicus GNSS hub for the orbit covering an acquisition.

Precise orbits are searched a day either side of the acquisition; when none
covers it, restituted orbits within an hour are tried.

Examples:
  eof query --date 2021-02-05T04:30:00 --mission S1A
  eof query --sentinel-file S1B_IW_SLC__1SDV_20210211T014456_..._3B5E.zip -o json
  eof query -d 20210205 -m S1A --download --save-dir /data/orbits`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryDate, "date", "d", "", "Acquisition time")
	queryCmd.Flags().StringVarP(&queryMission, "mission", "m", "", "Satellite: S1A or S1B")
	queryCmd.Flags().StringVar(&querySentinelFile, "sentinel-file", "", "Query for one Sentinel-1 product file")
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", outputText, "Output format: text, json or yaml")
	queryCmd.Flags().BoolVar(&queryDownload, "download", false, "Download the selected orbit files to --save-dir")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ot, err := products.ParseOrbitType(cfg.OrbitType)
	if err != nil {
		return err
	}
	hub := newScihub(cfg, newHTTPClient(cfg))

	var found scihub.Products
	switch {
	case querySentinelFile != "":
		p, err := products.ParseProduct(querySentinelFile)
		if err != nil {
			return err
		}
		found, err = hub.QueryOrbitForProduct(ctx, p, ot, 0, 0)
		if err != nil {
			return fmt.Errorf("query orbit: %w", err)
		}
	case queryDate != "" && queryMission != "":
		t, err := products.ParseTime(queryDate)
		if err != nil {
			return err
		}
		m, err := products.ParseMission(queryMission)
		if err != nil {
			return err
		}
		found, err = hub.QueryOrbitByDT(ctx, []products.Mission{m}, []time.Time{t}, ot, 0, 0)
		if err != nil {
			return fmt.Errorf("query orbit: %w", err)
		}
	default:
		return errors.New("specify --sentinel-file, or --date and --mission")
	}

	list := sortedProducts(found)
	done, err := writeStructured(os.Stdout, queryOutput, list)
	if err != nil {
		return err
	}
	if !done {
		printProducts(list)
	}

	if !queryDownload || len(found) == 0 {
		return nil
	}
	if err := os.MkdirAll(cfg.SaveDir, 0755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}
	results, failed := hub.DownloadAll(ctx, found, cfg.SaveDir)
	for _, r := range results {
		fmt.Fprintf(os.Stderr, "%s %s (%s)\n", color.GreenString("✓"), r.Path, humanize.Bytes(uint64(r.Size)))
	}
	for id, err := range failed {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", color.RedString("✗"), id, err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d downloads failed", len(failed), len(found))
	}
	return nil
}

// sortedProducts orders a result set by validity start.
func sortedProducts(found scihub.Products) []scihub.Product {
	list := make([]scihub.Product, 0, len(found))
	for _, p := range found {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].BeginPosition.Equal(list[j].BeginPosition) {
			return list[i].BeginPosition.Before(list[j].BeginPosition)
		}
		return list[i].ID < list[j].ID
	})
	return list
}

func printProducts(list []scihub.Product) {
	if len(list) == 0 {
		fmt.Println("No orbit products found.")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, p := range list {
		rows = append(rows, []string{
			p.ID,
			p.Identifier,
			p.BeginPosition.Format(time.RFC3339),
			p.EndPosition.Format(time.RFC3339),
		})
	}
	renderTable(os.Stdout, []string{"ID", "IDENTIFIER", "VALID FROM", "VALID TO"}, rows)
}
