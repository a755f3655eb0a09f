package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sentineleof/eof/internal/scihub"
	"github.com/sentineleof/eof/internal/source"
)

var pingAll bool

var pingCmd = &cobra.Command{
	Use:   "ping [source...]",
	Short: "Check that orbit archives are reachable",
	Long: `Check that orbit archives respond.

Without arguments, checks the configured source. Use --all to check every
archive (esa, scihub, asf).`,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().BoolVar(&pingAll, "all", false, "Check every archive")
}

func runPing(cmd *cobra.Command, args []string) error {
	names := args
	switch {
	case pingAll:
		names = source.Names
	case len(names) == 0:
		names = []string{cfg.Source}
	}

	down := 0
	for _, name := range names {
		src, err := newSource(cfg, name)
		if err != nil {
			return err
		}

		start := time.Now()
		var up bool
		if hub, ok := src.(*scihub.Client); ok {
			up = hub.ServerIsUp(cmd.Context())
		} else if err := src.Ping(cmd.Context()); err != nil {
			logger.Warnf("%s: %v", name, err)
		} else {
			up = true
		}
		elapsed := time.Since(start).Round(time.Millisecond)

		if up {
			printStatus("✓", fmt.Sprintf("%s is up (%s)", src.Name(), elapsed), color.FgGreen)
			continue
		}
		down++
		printStatus("✗", fmt.Sprintf("%s is unreachable", src.Name()), color.FgRed)
	}

	if down > 0 {
		return fmt.Errorf("%d of %d archives unreachable", down, len(names))
	}
	return nil
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
