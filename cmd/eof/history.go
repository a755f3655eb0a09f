package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/catalog"
	"github.com/sentineleof/eof/pkg/products"
)

var (
	historyLimit   int
	historyMission string
	historyRuns    bool
	historyPurge   time.Duration
	historyOutput  string
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show previously downloaded orbit files",
	Long: `Show orbit files recorded in the download catalog.

Usage:
  eof history                    # Recent downloads
  eof history --runs             # Recent runs
  eof history <run-id>           # Downloads of one run
  eof history --mission S1B      # Filter by satellite
  eof history --purge 720h       # Forget records older than 30 days`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of entries")
	historyCmd.Flags().StringVarP(&historyMission, "mission", "m", "", "Only show orbits for this satellite")
	historyCmd.Flags().BoolVar(&historyRuns, "runs", false, "List runs instead of files")
	historyCmd.Flags().DurationVar(&historyPurge, "purge", 0, "Delete records older than this duration")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", outputText, "Output format: text, json or yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	path := cfg.Catalog.Path
	if path == "" {
		path = catalog.DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No downloads recorded yet.")
		return nil
	}

	db, err := catalog.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if historyPurge > 0 {
		n, err := db.Purge(historyPurge)
		if err != nil {
			return err
		}
		printStatus("✓", fmt.Sprintf("Removed %d download record(s) older than %s", n, historyPurge), color.FgGreen)
		return nil
	}

	if historyRuns {
		return showRuns(db)
	}

	f := catalog.Filter{Limit: historyLimit}
	if historyMission != "" {
		m, err := products.ParseMission(historyMission)
		if err != nil {
			return err
		}
		f.Mission = string(m)
	}
	if len(args) == 1 {
		run, err := db.GetRun(args[0])
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("run not found: %s", args[0])
		}
		f.RunID = run.ID
	}
	return showDownloads(db, f)
}

func showDownloads(db *catalog.DB, f catalog.Filter) error {
	downloads, err := db.ListDownloads(f)
	if err != nil {
		return err
	}
	if done, err := writeStructured(os.Stdout, historyOutput, downloads); err != nil || done {
		return err
	}

	if len(downloads) == 0 {
		fmt.Println("No downloads recorded.")
		return nil
	}

	var total int64
	rows := make([][]string, 0, len(downloads))
	for _, d := range downloads {
		total += d.Size
		rows = append(rows, []string{
			humanize.Time(d.DownloadedAt),
			d.Mission,
			d.ValidFrom.Format(time.DateOnly),
			d.Source,
			humanize.Bytes(uint64(d.Size)),
			d.Filename,
		})
	}
	renderTable(os.Stdout, []string{"WHEN", "MISSION", "VALID FROM", "SOURCE", "SIZE", "FILE"}, rows)
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d file(s), %s", len(downloads), humanize.Bytes(uint64(total)))))
	return nil
}

func showRuns(db *catalog.DB) error {
	runs, err := db.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if done, err := writeStructured(os.Stdout, historyOutput, runs); err != nil || done {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := string(r.Status)
		switch r.Status {
		case catalog.RunFinished:
			status = color.GreenString(status)
		case catalog.RunFailed:
			status = color.RedString(status)
		}
		rows = append(rows, []string{
			r.ID,
			humanize.Time(r.StartedAt),
			r.Source,
			status,
			strconv.Itoa(r.Saved),
			r.Target,
		})
	}
	renderTable(os.Stdout, []string{"RUN", "STARTED", "SOURCE", "STATUS", "SAVED", "TARGET"}, rows)
	return nil
}
