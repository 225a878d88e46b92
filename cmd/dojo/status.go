package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctoher/pseudodojo/internal/config"
	"github.com/ctoher/pseudodojo/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status <pseudo-file>...",
	Short: "Show the training level of each pseudopotential",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("failed to load dojo.yml: %w", err)
	}
	if workRoot != "" {
		cfg.WorkRoot = workRoot
	}

	for i, path := range args {
		if i > 0 {
			fmt.Println()
		}
		ps, err := status.GetPseudoStatus(path, cfg.WorkRoot)
		if err != nil {
			return err
		}
		printLevelTable(ps)
	}
	return nil
}

func printLevelTable(ps *status.PseudoStatus) {
	fmt.Printf("Pseudopotential: %s\n", ps.Name)
	for _, li := range ps.Levels {
		marker := "  "
		label := "pending"
		if li.Trained {
			label = "trained"
		}
		if li.Level == ps.NextLevel {
			marker = "->"
			label = "next"
		}
		fmt.Printf("  %s level %d: %-14s [%s]\n", marker, li.Level, li.Key, label)
		if li.AuditDir != "" {
			fmt.Printf("       audit: %s\n", li.AuditDir)
		}
	}
	if ps.NextLevel == -1 {
		fmt.Println("  All levels trained.")
	}
}
