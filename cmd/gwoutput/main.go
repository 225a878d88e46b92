// Command gwoutput harvests processed GW results for the setup described
// by spec.in in the current directory and rewrites the plots file with
// one "structure key value" row per result.
package main

import (
	"fmt"
	"os"

	"github.com/ctoher/pseudodojo/internal/gw"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A stale plots file from an earlier harvest would mix runs.
	if err := os.Remove("plots"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale plots file: %w", err)
	}

	spec, err := gw.ReadSpec("spec.in")
	if err != nil {
		return err
	}
	fmt.Printf("Found setup for %s\n", spec.Code)

	out, err := os.Create("plots")
	if err != nil {
		return fmt.Errorf("creating plots file: %w", err)
	}
	defer out.Close()

	return spec.LoopStructures(gw.ModeOutput, &gw.PlotHarvester{Out: out})
}
