package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/download"
	"github.com/sentineleof/eof/pkg/products"
)

var (
	listSearchPath string
	listOutput     string
)

var listCmd = &cobra.Command{
	Use:   "list [save-dir]",
	Short: "List local orbit files and scenes still missing one",
	Long: `List the orbit files already saved and the Sentinel-1 scenes in the search
path that no saved orbit covers yet.

The save directory defaults to --save-dir (or the save_dir setting).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listSearchPath, "search-path", "p", "", "Directory to search for Sentinel-1 products")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", outputText, "Output format: text, json or yaml")
}

type listing struct {
	Orbits  []products.Orbit `json:"orbits" yaml:"orbits"`
	Missing []download.Scene `json:"missing" yaml:"missing"`
}

func runList(cmd *cobra.Command, args []string) error {
	dir := cfg.SaveDir
	if len(args) == 1 {
		dir = args[0]
	}
	search := cfg.SearchPath
	if listSearchPath != "" {
		search = listSearchPath
	}

	orbits, err := download.FindCurrentEOFs(dir)
	if err != nil {
		return err
	}
	missing, err := download.FindScenesToDownload(search, dir)
	if err != nil {
		return err
	}

	done, err := writeStructured(os.Stdout, listOutput, listing{Orbits: orbits, Missing: missing})
	if err != nil || done {
		return err
	}

	if len(orbits) == 0 {
		fmt.Printf("No orbit files in %s\n", dir)
	} else {
		rows := make([][]string, 0, len(orbits))
		for _, o := range orbits {
			rows = append(rows, []string{
				string(o.Mission),
				string(o.OrbitType),
				o.Start.Format(time.RFC3339),
				o.Stop.Format(time.RFC3339),
				o.Filename,
			})
		}
		renderTable(os.Stdout, []string{"MISSION", "TYPE", "VALID FROM", "VALID TO", "FILE"}, rows)
	}

	fmt.Println()
	if len(missing) == 0 {
		fmt.Printf("%s every scene in %s has an orbit\n", color.GreenString("✓"), search)
		return nil
	}
	fmt.Printf("%s %d scene(s) in %s without an orbit:\n", color.YellowString("⚠"), len(missing), search)
	for _, s := range missing {
		fmt.Printf("  %s %s  %s\n", s.Mission, s.Start.Format(time.RFC3339), dimStyle.Render(s.Product))
	}
	return nil
}
